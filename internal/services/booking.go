package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
)

type CreateBookingRequest struct {
	EventID     string          `json:"event_id"`
	UserID      string          `json:"-"`
	NoOfPeople  int             `json:"no_of_people"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// BookingService reserves event capacity. Booking creation and the capacity
// change are written in one store transaction.
type BookingService struct {
	store store.Store
	now   func() time.Time
}

func NewBookingService(st store.Store) *BookingService {
	return &BookingService{store: st, now: time.Now}
}

func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if req.NoOfPeople <= 0 {
		return nil, status.ErrInvalidSeatCount
	}
	if req.TotalAmount.IsNegative() {
		return nil, status.ErrInvalidAmount
	}

	var booking *models.Booking
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		event, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		if event.EventCapacity < req.NoOfPeople {
			return status.ErrInsufficientCapacity
		}

		b := &models.Booking{
			EventID:     event.ID,
			UserID:      req.UserID,
			NoOfPeople:  req.NoOfPeople,
			TotalAmount: req.TotalAmount,
			Status:      models.BookingBooked,
			BookingDate: s.now().UTC(),
			EventTitle:  event.Title,
			EventDate:   event.EventDate,
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}

		event.EventCapacity -= req.NoOfPeople
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return fmt.Errorf("reserve seats: %w", err)
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("booking created", "booking_id", booking.ID, "event_id", booking.EventID, "user_id", booking.UserID, "seats", booking.NoOfPeople)
	return booking, nil
}

// CancelBooking releases the booking's seats. actorID, when set, must own the booking.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := s.transition(ctx, tx, bookingID, actorID, models.BookingCancelled)
		if err != nil {
			return err
		}
		booking = b

		event, err := tx.GetEvent(ctx, b.EventID)
		if errors.Is(err, status.ErrEventNotFound) {
			slog.Warn("cancelled booking for missing event", "booking_id", b.ID, "event_id", b.EventID)
			return nil
		}
		if err != nil {
			return err
		}

		event.EventCapacity += b.NoOfPeople
		if event.EventCapacity > event.TotalEventCapacity {
			slog.Warn("capacity above total after cancellation, clamping",
				"event_id", event.ID,
				"capacity", event.EventCapacity,
				"total", event.TotalEventCapacity,
			)
			event.EventCapacity = event.TotalEventCapacity
		}
		return tx.UpdateEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) CompleteBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking *models.Booking
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		b, err := s.transition(ctx, tx, bookingID, "", models.BookingCompleted)
		booking = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) transition(ctx context.Context, tx store.Store, bookingID, actorID string, next models.BookingStatus) (*models.Booking, error) {
	b, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != "" && b.UserID != actorID {
		return nil, status.ErrBookingNotFound
	}
	if !b.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%s -> %s: %w", b.Status, next, status.ErrInvalidTransition)
	}
	if err := tx.UpdateBookingStatus(ctx, b.ID, next); err != nil {
		return nil, err
	}
	b.Status = next
	return b, nil
}
