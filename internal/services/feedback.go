package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
)

type TokenIssuer interface {
	Issue(ctx context.Context, purpose, subjectID, userID string) (*models.Token, error)
	Consume(ctx context.Context, raw, purpose string) (*models.Token, error)
	Release(ctx context.Context, raw string) error
}

type FeedbackService struct {
	store       store.Store
	tokens      TokenIssuer
	notifier    UserNotifier
	feedbackURL string
}

func NewFeedbackService(st store.Store, tokens TokenIssuer, notifier UserNotifier, feedbackURL string) *FeedbackService {
	return &FeedbackService{
		store:       st,
		tokens:      tokens,
		notifier:    notifier,
		feedbackURL: feedbackURL,
	}
}

// RequestFeedback creates the pending feedback for a completed booking and
// sends the rating link. It reports false when the booking already has feedback.
func (s *FeedbackService) RequestFeedback(ctx context.Context, b models.Booking) (bool, error) {
	if b.Status != models.BookingCompleted {
		return false, fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, status.ErrInvalidTransition)
	}

	_, err := s.store.GetFeedbackByBooking(ctx, b.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, status.ErrFeedbackNotFound) {
		return false, err
	}

	tok, err := s.tokens.Issue(ctx, models.TokenPurposeFeedback, b.ID, b.UserID)
	if err != nil {
		return false, fmt.Errorf("issue feedback token: %w", err)
	}

	f := &models.Feedback{
		BookingID: b.ID,
		EventID:   b.EventID,
		UserID:    b.UserID,
		Status:    models.FeedbackPending,
	}
	if err := s.store.CreateFeedback(ctx, f); err != nil {
		if errors.Is(err, status.ErrFeedbackExists) {
			return false, nil
		}
		return false, err
	}

	s.notifier.Notify(ctx, Notification{
		Category: CategoryFeedback,
		Title:    "How was " + b.EventTitle + "?",
		Body:     "Tell us about your experience.",
		UserID:   b.UserID,
		Data: map[string]any{
			"booking_id": b.ID,
			"event_id":   b.EventID,
			"link":       s.link(tok.Value),
		},
	})
	return true, nil
}

func (s *FeedbackService) link(raw string) string {
	return s.feedbackURL + "?token=" + url.QueryEscape(raw)
}

// Submit records a rating using the token from the feedback link. The token is
// only spent if the feedback is saved.
func (s *FeedbackService) Submit(ctx context.Context, rawToken string, rating int, comment string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, status.ErrInvalidRating
	}

	tok, err := s.tokens.Consume(ctx, rawToken, models.TokenPurposeFeedback)
	if err != nil {
		return nil, err
	}

	var feedback *models.Feedback
	err = s.store.RunInTx(ctx, func(tx store.Store) error {
		f, err := tx.GetFeedbackByBooking(ctx, tok.SubjectID)
		if err != nil {
			return err
		}
		if f.Status == models.FeedbackCompleted {
			return status.ErrFeedbackExists
		}

		f.Status = models.FeedbackCompleted
		f.Rating = rating
		f.Comment = comment
		if err := tx.UpdateFeedback(ctx, f); err != nil {
			return err
		}
		feedback = f
		return nil
	})
	if err != nil {
		if rerr := s.tokens.Release(ctx, rawToken); rerr != nil {
			slog.Warn("release feedback token", "booking_id", tok.SubjectID, "error", rerr)
		}
		return nil, err
	}

	slog.Info("feedback submitted", "booking_id", feedback.BookingID, "rating", rating)
	return feedback, nil
}
