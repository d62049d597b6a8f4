package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/services"
)

type FeedbackHandler struct {
	feedback *services.FeedbackService
}

func NewFeedbackHandler(feedback *services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

// Submit - rate an attended event. The token from the feedback link
// authenticates the request, so no session is required.
func (h *FeedbackHandler) Submit(e *core.RequestEvent) error {
	var req struct {
		Token   string `json:"token"`
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Token == "" {
		return apis.NewBadRequestError("Token required", nil)
	}

	f, err := h.feedback.Submit(e.Request.Context(), req.Token, req.Rating, req.Comment)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, f)
}
