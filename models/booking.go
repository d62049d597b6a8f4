package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingBooked    BookingStatus = "Booked"
	BookingCancelled BookingStatus = "Cancelled"
	BookingCompleted BookingStatus = "Completed"
)

// CanTransitionTo reports whether a booking may move from s to next.
// Only a Booked booking can change status.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s != BookingBooked {
		return false
	}
	return next == BookingCancelled || next == BookingCompleted
}

type Booking struct {
	ID          string          `db:"id" json:"id"`
	EventID     string          `db:"event_id" json:"event_id"`
	UserID      string          `db:"user_id" json:"user_id"`
	NoOfPeople  int             `db:"no_of_people" json:"no_of_people"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status      BookingStatus   `db:"status" json:"status"`
	BookingDate time.Time       `db:"booking_date" json:"booking_date"`

	// copied from the event when the booking is created
	EventTitle string    `db:"event_title" json:"event_title"`
	EventDate  time.Time `db:"event_date" json:"event_date"`
}
