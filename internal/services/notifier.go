package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"

	"ticket-ledger/monitoring"
	"ticket-ledger/utils"
)

const (
	CategoryReward   = "reward"
	CategoryWallet   = "wallet"
	CategoryFeedback = "feedback"
)

type Notification struct {
	Category string
	Title    string
	Body     string
	UserID   string
	Data     map[string]any
}

// UserNotifier delivers notifications without reporting failure to the caller.
type UserNotifier interface {
	Notify(ctx context.Context, n Notification)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, message map[string]any) error
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(_ context.Context, channel string, message map[string]any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish %s: %w", channel, err)
	}
	return nil
}

// LogPublisher writes notifications to the log. Used when PubNub is not configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, channel string, message map[string]any) error {
	slog.Info("notification", "channel", channel, "type", message["type"], "title", message["title"])
	return nil
}

type Notifier struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
	monitor   *monitoring.Monitor
	now       func() time.Time
}

func NewNotifier(publisher Publisher, monitor *monitoring.Monitor) *Notifier {
	return &Notifier{
		publisher: publisher,
		breaker: utils.NewCircuitBreaker("notifications", utils.BreakerSettings{
			MinRequests:  5,
			FailureRatio: 0.6,
			Timeout:      30 * time.Second,
		}),
		monitor: monitor,
		now:     time.Now,
	}
}

// Notify publishes n on the recipient's channel. Delivery errors are logged only.
func (n *Notifier) Notify(ctx context.Context, msg Notification) {
	if msg.UserID == "" {
		return
	}

	channel := fmt.Sprintf("user-%s", msg.UserID)
	payload := map[string]any{
		"type":    msg.Category,
		"title":   msg.Title,
		"body":    msg.Body,
		"sent_at": n.now().Unix(),
	}
	for k, v := range msg.Data {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	err := n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, channel, payload)
	})
	n.monitor.TrackNotification(msg.Category, err)
	if err != nil {
		slog.Warn("notification not delivered",
			"user_id", msg.UserID,
			"category", msg.Category,
			"error", err,
		)
	}
}
