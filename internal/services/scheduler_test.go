package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ticket-ledger/internal/store/memstore"
	"ticket-ledger/models"
	"ticket-ledger/utils"
)

var schedTZ = time.FixedZone("IST", 5*3600+30*60)

type fakeFiles struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeFiles) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Unlock(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type schedulerFixture struct {
	sched    *LifecycleScheduler
	st       *memstore.Store
	ledger   *LedgerService
	files    *fakeFiles
	notifier *recordingNotifier
	now      time.Time
}

func newSchedulerFixture(t *testing.T, locker Locker) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		st:       memstore.New(),
		files:    &fakeFiles{},
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 3, 14, 22, 0, 0, 0, schedTZ),
	}
	f.ledger = NewLedgerService(f.st, "platform", nil)
	bookings := NewBookingService(f.st)
	feedback := NewFeedbackService(f.st, newFakeTokens(), f.notifier, "https://tickets.example/feedback")

	f.sched = NewLifecycleScheduler(f.st, f.ledger, bookings, feedback, f.files, locker, f.notifier, SchedulerConfig{
		Interval:        time.Minute,
		LockTTL:         time.Minute,
		EventRetention:  48 * time.Hour,
		RewardRetention: 30 * 24 * time.Hour,
		Location:        schedTZ,
	}, nil)
	f.sched.now = func() time.Time { return f.now }
	return f
}

// jazzNight runs from 18:00 to 21:00 IST on 14 March 2025.
func jazzNight() models.Event {
	return models.Event{
		ID:                 "e1",
		Title:              "Jazz Night",
		UserID:             "org1",
		EventCapacity:      40,
		TotalEventCapacity: 50,
		HoldAmount:         dec("500"),
		IsLive:             true,
		EventDate:          time.Date(2025, 3, 14, 0, 0, 0, 0, schedTZ),
		EventTime:          "06:00 PM - 09:00 PM",
		Image:              "poster.png",
	}
}

func (f *schedulerFixture) sweep(t *testing.T) SweepReport {
	t.Helper()
	report, err := f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	return report
}

func TestScheduler_EndsLiveEventAndRefundsHoldOnce(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)
	f.st.PutEvent(jazzNight())

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsEnded)
	assert.Equal(t, 1, report.HoldsRefunded)
	assert.Equal(t, 0, report.EventsDeleted)

	ev, err := f.st.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ev.IsLive)
	assert.True(t, ev.HoldAmount.IsZero())

	balance, err := f.ledger.GetBalance(ctx, "org1")
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(balance), "balance %s", balance)

	report = f.sweep(t)
	assert.Equal(t, 0, report.EventsEnded)
	assert.Equal(t, 0, report.HoldsRefunded)

	balance, err = f.ledger.GetBalance(ctx, "org1")
	require.NoError(t, err)
	assert.True(t, dec("500").Equal(balance), "balance %s", balance)

	history, err := f.ledger.History(ctx, "org1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	var walletNotes int
	for _, n := range f.notifier.Sent() {
		if n.Category == CategoryWallet {
			walletNotes++
			assert.Equal(t, "org1", n.UserID)
		}
	}
	assert.Equal(t, 1, walletNotes)
}

func TestScheduler_HoldKeptBeforeEventEnds(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)
	f.now = time.Date(2025, 3, 14, 19, 0, 0, 0, schedTZ)
	f.st.PutEvent(jazzNight())

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsEnded)
	assert.Equal(t, 0, report.HoldsRefunded)

	ev, err := f.st.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, ev.IsLive)
	assert.True(t, dec("500").Equal(ev.HoldAmount))

	_, err = f.ledger.GetBalance(ctx, "org1")
	assert.Error(t, err)
}

func TestScheduler_FeedbackRequestedOncePerCompletedBooking(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)
	ev := jazzNight()
	ev.IsLive = false
	ev.HoldAmount = dec("0")
	f.st.PutEvent(ev)

	require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{ID: "b1", EventID: "e1", UserID: "u1", NoOfPeople: 2, Status: models.BookingCompleted, EventDate: ev.EventDate}))
	require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{ID: "b2", EventID: "e1", UserID: "u2", NoOfPeople: 1, Status: models.BookingBooked, EventDate: ev.EventDate}))
	require.NoError(t, f.st.CreateBooking(ctx, &models.Booking{ID: "b3", EventID: "e1", UserID: "u3", NoOfPeople: 1, Status: models.BookingCancelled, EventDate: ev.EventDate}))

	report := f.sweep(t)
	assert.Equal(t, 1, report.FeedbackRequested)
	assert.Equal(t, 0, report.BookingsCompleted)

	report = f.sweep(t)
	assert.Equal(t, 0, report.FeedbackRequested)
	assert.Equal(t, 1, f.st.CountFeedback())

	// next morning the booked seat is completed and asked for feedback too
	f.now = time.Date(2025, 3, 15, 10, 0, 0, 0, schedTZ)
	report = f.sweep(t)
	assert.Equal(t, 1, report.BookingsCompleted)
	assert.Equal(t, 1, report.FeedbackRequested)
	assert.Equal(t, 2, f.st.CountFeedback())

	b2, err := f.st.GetBooking(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, b2.Status)

	_, err = f.st.GetFeedbackByBooking(ctx, "b3")
	assert.Error(t, err)
}

func TestScheduler_DeletesEventAfterRetention(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)
	f.now = time.Date(2025, 3, 16, 18, 0, 0, 0, schedTZ)

	ev := jazzNight()
	ev.IsLive = false
	ev.HoldAmount = dec("0")
	f.st.PutEvent(ev)
	f.st.PutUser(models.User{ID: "org1", EventIDs: []string{"e1", "e2"}})
	f.st.PutAdminNotification(models.AdminNotification{ID: "n1", EventID: "e1", Message: "approve Jazz Night"})
	f.st.PutAdminNotification(models.AdminNotification{ID: "n2", EventID: "e2", Message: "approve Open Mic"})

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsDeleted)
	assert.Equal(t, 0, report.Errors)

	_, err := f.st.GetEvent(ctx, "e1")
	assert.Error(t, err)

	org, err := f.st.GetUser(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, org.EventIDs)
	assert.Equal(t, 1, f.st.CountAdminNotifications())
	assert.Equal(t, []string{"events/e1/poster.png"}, f.files.deleted)
}

func TestScheduler_DeletesEventEvenWhenCleanupFails(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)
	f.now = time.Date(2025, 3, 20, 0, 0, 0, 0, schedTZ)
	f.files.err = errors.New("bucket unavailable")

	ev := jazzNight()
	ev.HoldAmount = dec("0")
	f.st.PutEvent(ev)

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsDeleted)

	_, err := f.st.GetEvent(ctx, "e1")
	assert.Error(t, err)
}

func TestScheduler_BadEventDoesNotStopSweep(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)

	f.st.PutEvent(models.Event{ID: "e0", Title: "Broken", IsLive: true, EventDate: time.Date(2025, 3, 14, 0, 0, 0, 0, schedTZ), EventTime: "whenever"})
	f.st.PutEvent(jazzNight())

	report := f.sweep(t)
	assert.Equal(t, 2, report.EventsScanned)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.EventsEnded)

	broken, err := f.st.GetEvent(ctx, "e0")
	require.NoError(t, err)
	assert.True(t, broken.IsLive)
}

func TestScheduler_PurgesExpiredRewards(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t, nil)

	require.NoError(t, f.st.CreateReward(ctx, &models.Reward{ID: "old", UserID: "u1", Type: models.RewardWin, Amount: dec("5"), ExpiresAt: f.now.AddDate(0, 0, -40)}))
	require.NoError(t, f.st.CreateReward(ctx, &models.Reward{ID: "recent", UserID: "u1", Type: models.RewardWin, Amount: dec("5"), ExpiresAt: f.now.AddDate(0, 0, -3)}))
	require.NoError(t, f.st.CreateReward(ctx, &models.Reward{ID: "spent", UserID: "u1", Type: models.RewardWin, Amount: dec("5"), IsRedeemed: true, ExpiresAt: f.now.AddDate(0, 0, -40)}))

	report := f.sweep(t)
	assert.Equal(t, 1, report.RewardsPurged)

	_, err := f.st.GetReward(ctx, "old")
	assert.Error(t, err)
	_, err = f.st.GetReward(ctx, "recent")
	assert.NoError(t, err)
	_, err = f.st.GetReward(ctx, "spent")
	assert.NoError(t, err)
}

func TestScheduler_SkipsWhileRunning(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	f.st.PutEvent(jazzNight())

	f.sched.running.Store(true)
	report, err := f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	ev, err := f.st.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, ev.IsLive)
}

func TestScheduler_SharedLock(t *testing.T) {
	locker := new(MockLocker)
	locker.On("TryLock", mock.Anything, sweepLockKey, time.Minute).Return(true, nil)
	locker.On("Unlock", mock.Anything, sweepLockKey).Return(nil)

	f := newSchedulerFixture(t, locker)
	f.st.PutEvent(jazzNight())

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsEnded)
	locker.AssertExpectations(t)
}

func TestScheduler_RedisLockHeldElsewhere(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	redisMock.ExpectSetNX(sweepLockKey, "node-a", time.Minute).SetVal(false)

	f := newSchedulerFixture(t, utils.NewRedisLocker(db, "node-a"))
	f.st.PutEvent(jazzNight())

	report, err := f.sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.NoError(t, redisMock.ExpectationsWereMet())

	ev, err := f.st.GetEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, ev.IsLive)
}

func TestScheduler_RedisDownStillSweeps(t *testing.T) {
	db, redisMock := redismock.NewClientMock()
	redisMock.ExpectSetNX(sweepLockKey, "node-a", time.Minute).SetErr(errors.New("connection refused"))

	f := newSchedulerFixture(t, utils.NewRedisLocker(db, "node-a"))
	f.st.PutEvent(jazzNight())

	report := f.sweep(t)
	assert.Equal(t, 1, report.EventsEnded)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestScheduler_StartStop(t *testing.T) {
	f := newSchedulerFixture(t, nil)
	f.sched.cfg.Interval = 10 * time.Millisecond
	f.st.PutEvent(jazzNight())

	f.sched.Start(context.Background())
	require.Eventually(t, func() bool {
		ev, err := f.st.GetEvent(context.Background(), "e1")
		return err == nil && !ev.IsLive
	}, time.Second, 10*time.Millisecond)
	f.sched.Stop()
	f.sched.Stop()
}
