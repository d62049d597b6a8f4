package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/services"
)

type WalletHandler struct {
	ledger   *services.LedgerService
	notifier services.UserNotifier
}

func NewWalletHandler(ledger *services.LedgerService, notifier services.UserNotifier) *WalletHandler {
	return &WalletHandler{ledger: ledger, notifier: notifier}
}

// GetBalance - current balance of the caller's wallet
func (h *WalletHandler) GetBalance(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	wallet, err := h.ledger.OpenWallet(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"owner_id": wallet.OwnerID,
		"balance":  wallet.Balance,
	})
}

// GetHistory - ledger entries of the caller's wallet, oldest first
func (h *WalletHandler) GetHistory(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	history, err := h.ledger.History(e.Request.Context(), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, history)
}

// Withdraw - move the whole balance to an external destination
func (h *WalletHandler) Withdraw(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	var req struct {
		Destination string `json:"destination"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if req.Destination == "" {
		return apis.NewBadRequestError("Destination required", nil)
	}

	ctx := e.Request.Context()
	amount, err := h.ledger.DrainToExternal(ctx, userID, req.Destination)
	if err != nil {
		return apiError(err)
	}

	if amount.IsPositive() {
		slog.Info("wallet withdrawn", "user_id", userID, "amount", amount.String())
		h.notifier.Notify(ctx, services.Notification{
			Category: services.CategoryWallet,
			Title:    "Withdrawal sent",
			Body:     amount.StringFixed(2) + " is on its way to " + req.Destination + ".",
			UserID:   userID,
			Data:     map[string]any{"amount": amount.String()},
		})
	}
	return e.JSON(http.StatusOK, map[string]any{"withdrawn": amount})
}
