package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"ticket-ledger/config"
	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
	"ticket-ledger/monitoring"
)

const sweepLockKey = "lock:lifecycle-sweep"

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type SchedulerConfig struct {
	Interval        time.Duration
	LockTTL         time.Duration
	EventRetention  time.Duration
	RewardRetention time.Duration
	Location        *time.Location
}

func NewSchedulerConfig(cfg *config.Config, loc *time.Location) SchedulerConfig {
	return SchedulerConfig{
		Interval:        cfg.SweepInterval,
		LockTTL:         cfg.SweepLockTTL,
		EventRetention:  cfg.EventRetention,
		RewardRetention: cfg.RewardRetention,
		Location:        loc,
	}
}

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Skipped           bool `json:"skipped"`
	BookingsCompleted int  `json:"bookings_completed"`
	EventsScanned     int  `json:"events_scanned"`
	EventsEnded       int  `json:"events_ended"`
	HoldsRefunded     int  `json:"holds_refunded"`
	FeedbackRequested int  `json:"feedback_requested"`
	EventsDeleted     int  `json:"events_deleted"`
	RewardsPurged     int  `json:"rewards_purged"`
	Errors            int  `json:"errors"`
}

// LifecycleScheduler periodically moves events and bookings through their
// lifecycle. Only one sweep runs at a time in this process, and across
// processes when a Locker is configured.
type LifecycleScheduler struct {
	store    store.Store
	ledger   *LedgerService
	bookings *BookingService
	feedback *FeedbackService
	files    FileStore
	locker   Locker
	notifier UserNotifier
	monitor  *monitoring.Monitor
	cfg      SchedulerConfig
	now      func() time.Time

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLifecycleScheduler(
	st store.Store,
	ledger *LedgerService,
	bookings *BookingService,
	feedback *FeedbackService,
	files FileStore,
	locker Locker,
	notifier UserNotifier,
	cfg SchedulerConfig,
	monitor *monitoring.Monitor,
) *LifecycleScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &LifecycleScheduler{
		store:    st,
		ledger:   ledger,
		bookings: bookings,
		feedback: feedback,
		files:    files,
		locker:   locker,
		notifier: notifier,
		monitor:  monitor,
		cfg:      cfg,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

func (s *LifecycleScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		slog.Info("lifecycle scheduler started", "interval", s.cfg.Interval.String())
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					slog.Error("lifecycle sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop waits for the current sweep to finish.
func (s *LifecycleScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// RunOnce performs one sweep unless another one is in progress.
func (s *LifecycleScheduler) RunOnce(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.monitor.TrackSweepSkipped("running")
		return SweepReport{Skipped: true}, nil
	}
	defer s.running.Store(false)

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		switch {
		case err != nil:
			// every step is idempotent, so a sweep without the shared lock is still safe
			slog.Warn("sweep lock unavailable, continuing without it", "error", err)
		case !ok:
			s.monitor.TrackSweepSkipped("locked")
			return SweepReport{Skipped: true}, nil
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
					slog.Warn("release sweep lock", "error", err)
				}
			}()
		}
	}

	start := time.Now()
	report, err := s.sweep(ctx)
	s.monitor.TrackSweep(time.Since(start))

	slog.Info("lifecycle sweep finished",
		"duration", time.Since(start).String(),
		"events", report.EventsScanned,
		"ended", report.EventsEnded,
		"refunded", report.HoldsRefunded,
		"feedback", report.FeedbackRequested,
		"deleted", report.EventsDeleted,
		"bookings_completed", report.BookingsCompleted,
		"errors", report.Errors,
	)
	return report, err
}

func (s *LifecycleScheduler) sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now().In(s.cfg.Location)

	n, err := s.completeBookings(ctx, now)
	report.BookingsCompleted = n
	if err != nil {
		report.Errors++
		s.monitor.TrackSweepError("bookings")
		slog.Error("complete past bookings", "error", err)
	}
	s.monitor.TrackSweepAction("booking_completed", n)

	events, err := s.store.ListEvents(ctx)
	if err != nil {
		s.monitor.TrackSweepError("list_events")
		return report, fmt.Errorf("list events: %w", err)
	}

	for _, ev := range events {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.EventsScanned++
		if err := s.processEvent(ctx, ev, now, &report); err != nil {
			report.Errors++
			s.monitor.TrackSweepError("event")
			slog.Error("sweep event", "event_id", ev.ID, "error", err)
		}
	}

	if s.cfg.RewardRetention > 0 {
		purged, err := s.store.DeleteUnredeemedRewardsExpiredBefore(ctx, now.Add(-s.cfg.RewardRetention))
		if err != nil {
			report.Errors++
			s.monitor.TrackSweepError("rewards")
			slog.Error("purge expired rewards", "error", err)
		}
		report.RewardsPurged = purged
		s.monitor.TrackSweepAction("reward_purged", purged)
	}
	return report, nil
}

// completeBookings marks Booked bookings whose event day is over as Completed.
func (s *LifecycleScheduler) completeBookings(ctx context.Context, now time.Time) (int, error) {
	today := models.StartOfDay(now, s.cfg.Location)
	past, err := s.store.ListBookedBefore(ctx, today)
	if err != nil {
		return 0, err
	}

	completed := 0
	var errs []error
	for _, b := range past {
		if _, err := s.bookings.CompleteBooking(ctx, b.ID); err != nil {
			if errors.Is(err, status.ErrInvalidTransition) {
				continue
			}
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		completed++
	}
	return completed, errors.Join(errs...)
}

func (s *LifecycleScheduler) processEvent(ctx context.Context, ev models.Event, now time.Time, report *SweepReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start, end, err := ev.Schedule(s.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidSchedule, err)
	}

	if ev.IsLive && !start.After(now) {
		changed, err := s.endLive(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("end live: %w", err)
		}
		if changed {
			report.EventsEnded++
			s.monitor.TrackSweepAction("event_ended", 1)
		}
		ev.IsLive = false
	}

	ended := !end.After(now)
	if ended && !ev.IsLive && ev.HoldAmount.IsPositive() {
		refunded, err := s.refundHold(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("refund hold: %w", err)
		}
		if refunded {
			report.HoldsRefunded++
		}
	}

	if ended {
		if err := s.requestFeedback(ctx, ev.ID, report); err != nil {
			return fmt.Errorf("request feedback: %w", err)
		}
	}

	if !now.Before(start.Add(s.cfg.EventRetention)) {
		if err := s.deleteEvent(ctx, ev); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		report.EventsDeleted++
		s.monitor.TrackSweepAction("event_deleted", 1)
	}

	return nil
}

func (s *LifecycleScheduler) endLive(ctx context.Context, eventID string) (bool, error) {
	changed := false
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !ev.IsLive {
			return nil
		}
		ev.IsLive = false
		changed = true
		return tx.UpdateEvent(ctx, ev)
	})
	return changed, err
}

// refundHold credits the organizer with the event's hold amount once. The
// amount is re-read inside the transaction so concurrent sweeps cannot pay twice.
func (s *LifecycleScheduler) refundHold(ctx context.Context, eventID string) (bool, error) {
	var (
		refunded  bool
		organizer string
		title     string
		amount    decimal.Decimal
	)
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if !ev.HoldAmount.IsPositive() {
			return nil
		}

		ledger := s.ledger.InTx(tx)
		if _, err := ledger.OpenWallet(ctx, ev.UserID); err != nil {
			return err
		}
		if _, err := ledger.Credit(ctx, ev.UserID, ev.HoldAmount, "hold refund for "+ev.Title); err != nil {
			return err
		}

		amount = ev.HoldAmount
		ev.HoldAmount = decimal.Zero
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}

		refunded, organizer, title = true, ev.UserID, ev.Title
		return nil
	})
	if err != nil || !refunded {
		return false, err
	}

	s.monitor.TrackSweepAction("hold_refunded", 1)
	slog.Info("hold amount refunded", "event_id", eventID, "user_id", organizer, "amount", amount.String())
	s.notifier.Notify(ctx, Notification{
		Category: CategoryWallet,
		Title:    "Event proceeds released",
		Body:     fmt.Sprintf("%s from %s has been added to your wallet.", amount.StringFixed(2), title),
		UserID:   organizer,
		Data:     map[string]any{"event_id": eventID, "amount": amount.String()},
	})
	return true, nil
}

func (s *LifecycleScheduler) requestFeedback(ctx context.Context, eventID string, report *SweepReport) error {
	completed, err := s.store.ListBookingsByEvent(ctx, eventID, models.BookingCompleted)
	if err != nil {
		return err
	}

	var errs []error
	for _, b := range completed {
		created, err := s.feedback.RequestFeedback(ctx, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
			continue
		}
		if created {
			report.FeedbackRequested++
			s.monitor.TrackSweepAction("feedback_requested", 1)
		}
	}
	return errors.Join(errs...)
}

// deleteEvent removes the event after best-effort cleanup of everything that
// references it. Cleanup failures are logged and do not stop the deletion.
func (s *LifecycleScheduler) deleteEvent(ctx context.Context, ev models.Event) error {
	cascade := status.NewCascade("event " + ev.ID)

	if key := s.store.EventFileKey(ctx, &ev); key != "" && s.files != nil {
		cascade.Fail("image", s.files.Delete(ctx, key))
	}

	if ev.UserID != "" {
		cascade.Fail("organizer events", s.removeFromOrganizer(ctx, ev))
	}

	_, err := s.store.DeleteAdminNotificationsForEvent(ctx, ev.ID)
	cascade.Fail("admin notifications", err)

	if err := s.store.DeleteEvent(ctx, ev.ID); err != nil && !errors.Is(err, status.ErrEventNotFound) {
		return err
	}

	if err := cascade.Err(); err != nil {
		s.monitor.TrackSweepError("cascade")
		slog.Warn("event deleted with incomplete cleanup", "event_id", ev.ID, "error", err)
	} else {
		slog.Info("event deleted after retention", "event_id", ev.ID)
	}
	return nil
}

func (s *LifecycleScheduler) removeFromOrganizer(ctx context.Context, ev models.Event) error {
	user, err := s.store.GetUser(ctx, ev.UserID)
	if errors.Is(err, status.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.RemoveEvent(ev.ID) {
		return nil
	}
	return s.store.UpdateUser(ctx, user)
}
