// Package store defines the persistence contract shared by the services.
// Not-found lookups return the matching status sentinel (status.ErrWalletNotFound,
// status.ErrEventNotFound, ...); other failures are infrastructure errors.
package store

import (
	"context"
	"time"

	"ticket-ledger/models"
)

// Store is the full persistence surface. RunInTx executes fn atomically: every
// write made through the Store passed to fn is committed together or not at all.
// Calling RunInTx on a transactional Store joins the surrounding transaction.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Store) error) error

	WalletStore
	UserStore
	RewardStore
	EventStore
	BookingStore
	FeedbackStore
	AdminNotificationStore
}

type WalletStore interface {
	GetWalletByOwner(ctx context.Context, ownerID string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, w *models.Wallet) error
	UpdateWalletBalance(ctx context.Context, w *models.Wallet) error
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	ListTransactions(ctx context.Context, walletID string) ([]models.Transaction, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
}

type RewardFilter struct {
	UserID   string
	Revealed *bool
	Redeemed *bool
}

type RewardStore interface {
	CreateReward(ctx context.Context, r *models.Reward) error
	GetReward(ctx context.Context, id string) (*models.Reward, error)
	UpdateReward(ctx context.Context, r *models.Reward) error
	ListRewards(ctx context.Context, filter RewardFilter) ([]models.Reward, error)
	MarkRewardsRedeemed(ctx context.Context, ids []string) error
	// DeleteUnredeemedRewardsExpiredBefore removes rewards that were never
	// redeemed and expired before cutoff.
	DeleteUnredeemedRewardsExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type EventStore interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	DeleteEvent(ctx context.Context, id string) error
	// EventFileKey returns the storage key of the event image, or "" if it has none.
	EventFileKey(ctx context.Context, e *models.Event) string
}

type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error
	ListBookingsByEvent(ctx context.Context, eventID string, status models.BookingStatus) ([]models.Booking, error)
	// ListBookedBefore returns Booked bookings whose event date is before day.
	ListBookedBefore(ctx context.Context, day time.Time) ([]models.Booking, error)
	CountUserBookingsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type FeedbackStore interface {
	// CreateFeedback fails with status.ErrFeedbackExists if the booking already has feedback.
	CreateFeedback(ctx context.Context, f *models.Feedback) error
	GetFeedbackByBooking(ctx context.Context, bookingID string) (*models.Feedback, error)
	UpdateFeedback(ctx context.Context, f *models.Feedback) error
}

type AdminNotificationStore interface {
	DeleteAdminNotificationsForEvent(ctx context.Context, eventID string) (int, error)
}

func Bool(v bool) *bool {
	return &v
}
