package services

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
	"ticket-ledger/internal/store/memstore"
	"ticket-ledger/models"
)

type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(int) int     { return r.n }

var (
	alwaysWin  = fixedRand{f: 0.05, n: 4} // amount 5
	alwaysLose = fixedRand{f: 0.95}
)

type rewardFixture struct {
	svc      *RewardService
	st       *memstore.Store
	ledger   *LedgerService
	notifier *recordingNotifier
	now      time.Time
}

func newRewardFixture(t *testing.T, platformFunds string) *rewardFixture {
	t.Helper()
	ctx := context.Background()

	f := &rewardFixture{
		st:       memstore.New(),
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	f.ledger = NewLedgerService(f.st, "platform", nil)
	f.svc = NewRewardService(f.st, f.ledger, f.notifier, RewardConfig{
		Cooldown:       15 * 24 * time.Hour,
		MinBookings:    2,
		WinProbability: 0.2,
		MaxAmount:      20,
		TTL:            7 * 24 * time.Hour,
	}, nil)
	f.svc.now = func() time.Time { return f.now }
	f.svc.rand = alwaysWin

	_, err := f.ledger.OpenWallet(ctx, "platform")
	require.NoError(t, err)
	if amount := dec(platformFunds); amount.IsPositive() {
		_, err = f.ledger.Credit(ctx, "platform", amount, "funding")
		require.NoError(t, err)
	}
	return f
}

func (f *rewardFixture) addUserWithBookings(t *testing.T, userID string, bookings int) {
	t.Helper()
	f.st.PutUser(models.User{ID: userID, Name: "User " + userID})
	for i := 0; i < bookings; i++ {
		require.NoError(t, f.st.CreateBooking(context.Background(), &models.Booking{
			EventID:     "e1",
			UserID:      userID,
			NoOfPeople:  1,
			Status:      models.BookingBooked,
			BookingDate: f.now.Add(-time.Duration(i+1) * 24 * time.Hour),
		}))
	}
}

func (f *rewardFixture) addReward(t *testing.T, r models.Reward) string {
	t.Helper()
	require.NoError(t, f.st.CreateReward(context.Background(), &r))
	return r.ID
}

func TestGenerateReward_WinThenRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")
	f.addUserWithBookings(t, "u1", 2)

	res, err := f.svc.GenerateRewardIfEligible(ctx, "u1")
	require.NoError(t, err)
	require.True(t, res.Issued)
	assert.Equal(t, models.RewardWin, res.Reward.Type)
	assert.True(t, dec("5").Equal(res.Reward.Amount))
	assert.False(t, res.Reward.IsRevealed)
	assert.False(t, res.Reward.IsRedeemed)
	assert.True(t, f.now.Add(7*24*time.Hour).Equal(res.Reward.ExpiresAt))

	user, err := f.st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, f.now.Equal(user.LastRewardDate))

	res, err = f.svc.GenerateRewardIfEligible(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Issued)
	assert.Equal(t, RejectRateLimited, res.Reason)

	rewards, err := f.svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, rewards, 1)
	assert.Len(t, f.notifier.Sent(), 1)
}

// certainWin always wins but draws the amount from the real generator.
type certainWin struct{ globalRand }

func (certainWin) Float64() float64 { return 0 }

func TestGenerateReward_NonPositiveMaxAmount(t *testing.T) {
	f := newRewardFixture(t, "0")
	f.svc.cfg.MaxAmount = 0
	f.svc.rand = certainWin{}
	f.addUserWithBookings(t, "u1", 2)

	var res GenerateResult
	require.NotPanics(t, func() {
		var err error
		res, err = f.svc.GenerateRewardIfEligible(context.Background(), "u1")
		require.NoError(t, err)
	})
	require.True(t, res.Issued)
	assert.Equal(t, models.RewardWin, res.Reward.Type)
	assert.True(t, dec("1").Equal(res.Reward.Amount))
}

func TestGenerateReward_Lose(t *testing.T) {
	f := newRewardFixture(t, "0")
	f.svc.rand = alwaysLose
	f.addUserWithBookings(t, "u1", 3)

	res, err := f.svc.GenerateRewardIfEligible(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, res.Issued)
	assert.Equal(t, models.RewardLose, res.Reward.Type)
	assert.True(t, res.Reward.Amount.IsZero())
}

func TestGenerateReward_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")
	f.addUserWithBookings(t, "few", 1)

	// bookings outside the window do not count
	f.st.PutUser(models.User{ID: "old"})
	for i := 0; i < 3; i++ {
		require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{UserID: "old", Status: models.BookingBooked, BookingDate: f.now.AddDate(0, 0, -20)}))
	}

	tests := []struct {
		userID string
		reason string
	}{
		{userID: "missing", reason: RejectUserNotFound},
		{userID: "few", reason: RejectInsufficientBookings},
		{userID: "old", reason: RejectInsufficientBookings},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			res, err := f.svc.GenerateRewardIfEligible(ctx, tt.userID)
			require.NoError(t, err)
			assert.False(t, res.Issued)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	user, err := f.st.GetUser(ctx, "few")
	require.NoError(t, err)
	assert.True(t, user.LastRewardDate.IsZero())
}

func TestGenerateReward_NeverTwiceInWindow(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")
	f.addUserWithBookings(t, "u1", 2)

	issued := 0
	for day := 0; day < 40; day++ {
		// keep the user active so only the cooldown limits issuance
		require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{UserID: "u1", Status: models.BookingBooked, BookingDate: f.now}))
		require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{UserID: "u1", Status: models.BookingBooked, BookingDate: f.now}))

		res, err := f.svc.GenerateRewardIfEligible(ctx, "u1")
		require.NoError(t, err)
		if res.Issued {
			issued++
		}
		f.now = f.now.Add(24 * time.Hour)
	}

	rewards, err := f.svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, issued, len(rewards))
	for i := 1; i < len(rewards); i++ {
		gap := rewards[i].IssuedAt.Sub(rewards[i-1].IssuedAt)
		assert.GreaterOrEqual(t, gap, 15*24*time.Hour)
	}
	assert.Equal(t, 3, issued)
}

func TestGenerateReward_IsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")
	f.addUserWithBookings(t, "u1", 2)

	f.st.FailWrites(func(op string) error {
		if op == "UpdateUser" {
			return errors.New("write conflict")
		}
		return nil
	})
	_, err := f.svc.GenerateRewardIfEligible(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, status.KindTransient, status.KindOf(err))
	f.st.FailWrites(nil)

	rewards, err := f.svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rewards)
	assert.Empty(t, f.notifier.Sent())
}

func TestListRewards_State(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")

	issued := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("3"), IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})
	revealed := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("4"), IsRevealed: true, IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})
	redeemed := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("5"), IsRevealed: true, IsRedeemed: true, IssuedAt: f.now, ExpiresAt: f.now.Add(-time.Hour)})
	expired := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardLose, Amount: dec("0"), IssuedAt: f.now.AddDate(0, 0, -8), ExpiresAt: f.now.Add(-time.Hour)})
	f.addReward(t, models.Reward{UserID: "u2", Type: models.RewardWin, Amount: dec("9"), IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})

	rewards, err := f.svc.ListRewards(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rewards, 4)

	states := make(map[string]models.RewardState)
	for _, r := range rewards {
		assert.Equal(t, "u1", r.UserID)
		states[r.ID] = r.State
	}
	assert.Equal(t, models.RewardIssued, states[issued])
	assert.Equal(t, models.RewardRevealed, states[revealed])
	assert.Equal(t, models.RewardRedeemed, states[redeemed])
	assert.Equal(t, models.RewardExpired, states[expired])
}

func TestRevealReward(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")

	fresh := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("3"), IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})
	stale := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("3"), IssuedAt: f.now.AddDate(0, 0, -8), ExpiresAt: f.now.Add(-time.Hour)})

	_, err := f.svc.RevealReward(ctx, "u2", fresh)
	assert.ErrorIs(t, err, status.ErrRewardNotFound)

	_, err = f.svc.RevealReward(ctx, "u1", stale)
	assert.ErrorIs(t, err, status.ErrRewardExpired)

	r, err := f.svc.RevealReward(ctx, "u1", fresh)
	require.NoError(t, err)
	assert.True(t, r.IsRevealed)

	again, err := f.svc.RevealReward(ctx, "u1", fresh)
	require.NoError(t, err)
	assert.True(t, again.IsRevealed)
}

func TestRedeemAllRewards(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "100")

	a := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("5"), IsRevealed: true, IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})
	b := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("3"), IsRevealed: true, IssuedAt: f.now})
	expired := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("7"), IsRevealed: true, IssuedAt: f.now.AddDate(0, 0, -8), ExpiresAt: f.now.Add(-time.Hour)})
	hidden := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("9"), IssuedAt: f.now, ExpiresAt: f.now.Add(time.Hour)})

	res, err := f.svc.RedeemAllRewards(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("8").Equal(res.RedeemedAmount))
	assert.ElementsMatch(t, []string{a, b}, res.RedeemedRewardIDs)
	assert.Equal(t, []string{expired}, res.ExpiredRewardIDs)
	assert.True(t, dec("8").Equal(res.Balance))

	platform, err := f.ledger.GetBalance(ctx, "platform")
	require.NoError(t, err)
	assert.True(t, dec("92").Equal(platform))

	for id, redeemed := range map[string]bool{a: true, b: true, expired: false, hidden: false} {
		r, err := f.st.GetReward(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, redeemed, r.IsRedeemed, id)
	}
	assert.Len(t, f.notifier.Sent(), 1)

	// a second call moves nothing
	res, err = f.svc.RedeemAllRewards(ctx, "u1")
	assert.ErrorIs(t, err, status.ErrNothingToRedeem)
	assert.Equal(t, []string{expired}, res.ExpiredRewardIDs)
	assert.True(t, res.RedeemedAmount.IsZero())

	balance, err := f.ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, dec("8").Equal(balance))
	assertReplays(t, f.ledger, "u1")
	assertReplays(t, f.ledger, "platform")
}

func TestRedeemAllRewards_InsufficientPlatformFunds(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "2")
	_, err := f.ledger.OpenWallet(ctx, "u1")
	require.NoError(t, err)

	id := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("5"), IsRevealed: true, IssuedAt: f.now})

	_, err = f.svc.RedeemAllRewards(ctx, "u1")
	assert.ErrorIs(t, err, status.ErrInsufficientPlatformFunds)
	assert.Equal(t, status.KindConflict, status.KindOf(err))

	r, err := f.st.GetReward(ctx, id)
	require.NoError(t, err)
	assert.False(t, r.IsRedeemed)

	platform, err := f.ledger.GetBalance(ctx, "platform")
	require.NoError(t, err)
	assert.True(t, dec("2").Equal(platform))
	user, err := f.ledger.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.IsZero())
	assert.Empty(t, f.notifier.Sent())
}

func TestRedeemAllRewards_OnlyLosingCards(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "0")

	id := f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardLose, Amount: decimal.Zero, IsRevealed: true, IssuedAt: f.now})

	res, err := f.svc.RedeemAllRewards(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.RedeemedAmount.IsZero())
	assert.Equal(t, []string{id}, res.RedeemedRewardIDs)

	_, err = f.ledger.GetBalance(ctx, "u1")
	assert.ErrorIs(t, err, status.ErrWalletNotFound)
}

func TestRedeemAllRewards_RollsBackOnMarkFailure(t *testing.T) {
	ctx := context.Background()
	f := newRewardFixture(t, "50")
	f.addReward(t, models.Reward{UserID: "u1", Type: models.RewardWin, Amount: dec("5"), IsRevealed: true, IssuedAt: f.now})

	f.st.FailWrites(func(op string) error {
		if op == "MarkRewardsRedeemed" {
			return errors.New("lock timeout")
		}
		return nil
	})
	_, err := f.svc.RedeemAllRewards(ctx, "u1")
	require.Error(t, err)
	f.st.FailWrites(nil)

	platform, err := f.ledger.GetBalance(ctx, "platform")
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(platform))

	unredeemed, err := f.st.ListRewards(ctx, store.RewardFilter{UserID: "u1", Redeemed: store.Bool(false)})
	require.NoError(t, err)
	assert.Len(t, unredeemed, 1)
}
