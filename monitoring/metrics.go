package monitoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total ledger operations",
		},
		[]string{"operation", "status"},
	)

	rewardsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_generated_total",
			Help: "Reward eligibility checks by outcome",
		},
		[]string{"outcome"},
	)

	rewardsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_redeemed_amount_total",
			Help: "Total reward value moved into user wallets",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifecycle_sweep_duration_seconds",
			Help:    "Duration of lifecycle sweeps",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	sweepActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_actions_total",
			Help: "State changes made by lifecycle sweeps",
		},
		[]string{"action"},
	)

	sweepErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_errors_total",
			Help: "Errors raised while sweeping",
		},
		[]string{"stage"},
	)

	sweepSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_skipped_total",
			Help: "Sweeps skipped because another one was running",
		},
		[]string{"reason"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "User notifications by category and delivery status",
		},
		[]string{"category", "status"},
	)

	platformWalletBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "platform_wallet_balance",
			Help: "Current balance of the platform wallet",
		},
	)
)

// BalanceFunc reports the platform wallet balance.
type BalanceFunc func(ctx context.Context) (decimal.Decimal, error)

// Monitor records service metrics. A nil *Monitor is valid and records nothing.
type Monitor struct {
	balance  BalanceFunc
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(balance BalanceFunc) *Monitor {
	return &Monitor{
		balance:  balance,
		stopChan: make(chan struct{}),
	}
}

// Start collects gauges every interval until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.collectMetrics(ctx, interval)
	}()
}

func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
}

func (m *Monitor) collectMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CollectOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.CollectOnce(ctx)
		}
	}
}

func (m *Monitor) CollectOnce(ctx context.Context) {
	if m == nil || m.balance == nil {
		return
	}
	bal, err := m.balance(ctx)
	if err != nil {
		slog.Warn("collect platform wallet balance", "error", err)
		return
	}
	platformWalletBalance.Set(bal.InexactFloat64())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Monitor) TrackLedgerOperation(operation string, err error) {
	if m == nil {
		return
	}
	ledgerOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// TrackReward records the result of an eligibility check: "win", "lose" or a rejection reason.
func (m *Monitor) TrackReward(result string) {
	if m == nil {
		return
	}
	rewardsIssued.WithLabelValues(result).Inc()
}

func (m *Monitor) TrackRedemption(amount decimal.Decimal) {
	if m == nil {
		return
	}
	rewardsRedeemed.Add(amount.InexactFloat64())
}

func (m *Monitor) TrackSweep(duration time.Duration) {
	if m == nil {
		return
	}
	sweepDuration.Observe(duration.Seconds())
}

func (m *Monitor) TrackSweepAction(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	sweepActions.WithLabelValues(action).Add(float64(n))
}

func (m *Monitor) TrackSweepError(stage string) {
	if m == nil {
		return
	}
	sweepErrors.WithLabelValues(stage).Inc()
}

func (m *Monitor) TrackSweepSkipped(reason string) {
	if m == nil {
		return
	}
	sweepSkipped.WithLabelValues(reason).Inc()
}

func (m *Monitor) TrackNotification(category string, err error) {
	if m == nil {
		return
	}
	notifications.WithLabelValues(category, outcome(err)).Inc()
}
