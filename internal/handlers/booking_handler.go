package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/services"
)

type BookingHandler struct {
	bookings *services.BookingService
}

func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking - reserve seats for the caller
func (h *BookingHandler) CreateBooking(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	var req services.CreateBookingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" {
		return apis.NewBadRequestError("Event ID required", nil)
	}
	req.UserID = userID

	booking, err := h.bookings.CreateBooking(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, booking)
}

// CancelBooking - release the seats of one of the caller's bookings
func (h *BookingHandler) CancelBooking(e *core.RequestEvent) error {
	userID, err := requireAuth(e)
	if err != nil {
		return err
	}

	booking, err := h.bookings.CancelBooking(e.Request.Context(), e.Request.PathValue("bookingId"), userID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, booking)
}
