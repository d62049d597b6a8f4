package handlers

import (
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-ledger/internal/services"
)

type AdminHandler struct {
	scheduler *services.LifecycleScheduler
	bookings  *services.BookingService
	ledger    *services.LedgerService
}

func NewAdminHandler(scheduler *services.LifecycleScheduler, bookings *services.BookingService, ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{
		scheduler: scheduler,
		bookings:  bookings,
		ledger:    ledger,
	}
}

// ForceSweep - run one lifecycle sweep now. Skipped if a sweep is already running.
func (h *AdminHandler) ForceSweep(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	log.Printf("Admin %s triggered a lifecycle sweep", e.Auth.Id)
	report, err := h.scheduler.RunOnce(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, report)
}

// CompleteBooking - mark a booking as attended
func (h *AdminHandler) CompleteBooking(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	booking, err := h.bookings.CompleteBooking(e.Request.Context(), e.Request.PathValue("bookingId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, booking)
}

// GetPlatformWallet - balance and history of the wallet that funds rewards
func (h *AdminHandler) GetPlatformWallet(e *core.RequestEvent) error {
	if err := requireSuperuser(e); err != nil {
		return err
	}

	ctx := e.Request.Context()
	owner := h.ledger.PlatformOwner()
	balance, err := h.ledger.GetBalance(ctx, owner)
	if err != nil {
		return apiError(err)
	}
	history, err := h.ledger.History(ctx, owner)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"owner_id":     owner,
		"balance":      balance,
		"transactions": history,
	})
}
