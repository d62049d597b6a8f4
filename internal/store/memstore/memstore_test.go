package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
)

func TestRunInTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	w := models.NewWallet("alice")
	require.NoError(t, s.CreateWallet(ctx, w))

	err := s.RunInTx(ctx, func(tx store.Store) error {
		w.Balance = decimal.NewFromInt(10)
		return tx.UpdateWalletBalance(ctx, w)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.RunInTx(ctx, func(tx store.Store) error {
		w.Balance = decimal.NewFromInt(99)
		if err := tx.UpdateWalletBalance(ctx, w); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetWalletByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Balance))
}

func TestRunInTx_Nested(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(tx store.Store) error {
		return tx.RunInTx(ctx, func(inner store.Store) error {
			return inner.CreateWallet(ctx, models.NewWallet("bob"))
		})
	})
	require.NoError(t, err)

	_, err = s.GetWalletByOwner(ctx, "bob")
	assert.NoError(t, err)
}

func TestFailWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailWrites(func(op string) error {
		if op == "AppendTransaction" {
			return errors.New("disk full")
		}
		return nil
	})

	err := s.RunInTx(ctx, func(tx store.Store) error {
		w := models.NewWallet("carol")
		if err := tx.CreateWallet(ctx, w); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, &models.Transaction{WalletID: w.ID, Amount: decimal.NewFromInt(1)})
	})
	require.Error(t, err)
	assert.Equal(t, status.KindTransient, status.KindOf(err))

	_, err = s.GetWalletByOwner(ctx, "carol")
	assert.ErrorIs(t, err, status.ErrWalletNotFound)

	s.FailWrites(nil)
	assert.NoError(t, s.CreateWallet(ctx, models.NewWallet("carol")))
}

func TestCreateWallet_OnePerOwner(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateWallet(ctx, models.NewWallet("dave")))
	assert.Error(t, s.CreateWallet(ctx, models.NewWallet("dave")))
}

func TestCreateFeedback_UniquePerBooking(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateFeedback(ctx, &models.Feedback{BookingID: "b1", Status: models.FeedbackPending}))
	err := s.CreateFeedback(ctx, &models.Feedback{BookingID: "b1", Status: models.FeedbackPending})
	assert.ErrorIs(t, err, status.ErrFeedbackExists)
	assert.Equal(t, 1, s.CountFeedback())
}

func TestListRewards_Filter(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.CreateReward(ctx, &models.Reward{UserID: "u1", IsRevealed: true, IssuedAt: now}))
	require.NoError(t, s.CreateReward(ctx, &models.Reward{UserID: "u1", IsRevealed: false, IssuedAt: now.Add(time.Second)}))
	require.NoError(t, s.CreateReward(ctx, &models.Reward{UserID: "u1", IsRevealed: true, IsRedeemed: true, IssuedAt: now}))
	require.NoError(t, s.CreateReward(ctx, &models.Reward{UserID: "u2", IsRevealed: true, IssuedAt: now}))

	got, err := s.ListRewards(ctx, store.RewardFilter{UserID: "u1", Revealed: store.Bool(true), Redeemed: store.Bool(false)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	all, err := s.ListRewards(ctx, store.RewardFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListBookedBefore(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateBooking(ctx, &models.Booking{ID: "past", Status: models.BookingBooked, EventDate: day.AddDate(0, 0, -1)}))
	require.NoError(t, s.CreateBooking(ctx, &models.Booking{ID: "today", Status: models.BookingBooked, EventDate: day}))
	require.NoError(t, s.CreateBooking(ctx, &models.Booking{ID: "cancelled", Status: models.BookingCancelled, EventDate: day.AddDate(0, 0, -1)}))

	got, err := s.ListBookedBefore(ctx, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "past", got[0].ID)
}
