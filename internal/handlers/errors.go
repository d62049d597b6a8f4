package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/status"
)

// apiError converts a service error into the PocketBase API error returned to the client.
func apiError(err error) error {
	var domain *status.Error
	if !errors.As(err, &domain) {
		slog.Error("request failed", "error", err)
		return apis.NewApiError(http.StatusServiceUnavailable, "Temporarily unavailable, please retry", nil)
	}

	switch domain.Kind {
	case status.KindValidation:
		return apis.NewBadRequestError(domain.Message, map[string]any{"code": domain.Code})
	case status.KindNotFound:
		return apis.NewNotFoundError(domain.Message, map[string]any{"code": domain.Code})
	case status.KindConflict:
		return apis.NewApiError(http.StatusConflict, domain.Message, map[string]any{"code": domain.Code})
	default:
		return apis.NewApiError(http.StatusServiceUnavailable, domain.Message, nil)
	}
}

func requireAuth(e *core.RequestEvent) (string, error) {
	if e.Auth == nil {
		return "", apis.NewUnauthorizedError("Authentication required", nil)
	}
	return e.Auth.Id, nil
}

func requireSuperuser(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Admin access required", nil)
	}
	return nil
}
