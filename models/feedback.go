package models

import "time"

type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "Pending"
	FeedbackCompleted FeedbackStatus = "Completed"
)

type Feedback struct {
	ID        string         `db:"id" json:"id"`
	BookingID string         `db:"booking_id" json:"booking_id"`
	EventID   string         `db:"event_id" json:"event_id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Status    FeedbackStatus `db:"status" json:"status"`
	Rating    int            `db:"rating" json:"rating"`
	Comment   string         `db:"comment" json:"comment"`
	CreatedAt time.Time      `db:"created" json:"created_at"`
}
