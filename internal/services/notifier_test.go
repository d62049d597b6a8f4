package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message map[string]any) error {
	args := m.Called(channel, message)
	return args.Error(0)
}

// recordingNotifier captures notifications sent by the services under test.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

func TestNotifier_PublishesOnUserChannel(t *testing.T) {
	publisher := new(MockPublisher)
	n := NewNotifier(publisher, nil)
	n.now = func() time.Time { return time.Unix(1700000000, 0) }

	expected := map[string]any{
		"type":      CategoryReward,
		"title":     "You won!",
		"body":      "5 credited",
		"sent_at":   int64(1700000000),
		"reward_id": "r1",
	}
	publisher.On("Publish", "user-u1", expected).Return(nil)

	n.Notify(context.Background(), Notification{
		Category: CategoryReward,
		Title:    "You won!",
		Body:     "5 credited",
		UserID:   "u1",
		Data:     map[string]any{"reward_id": "r1", "type": "ignored"},
	})

	publisher.AssertExpectations(t)
}

func TestNotifier_SwallowsFailures(t *testing.T) {
	publisher := new(MockPublisher)
	n := NewNotifier(publisher, nil)
	publisher.On("Publish", "user-u1", mock.Anything).Return(errors.New("pubnub down"))

	assert.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			n.Notify(context.Background(), Notification{Category: CategoryWallet, UserID: "u1"})
		}
	})

	// the breaker opens after five failures and stops calling PubNub
	publisher.AssertNumberOfCalls(t, "Publish", 5)
}

func TestNotifier_SkipsAnonymous(t *testing.T) {
	publisher := new(MockPublisher)
	n := NewNotifier(publisher, nil)

	n.Notify(context.Background(), Notification{Category: CategoryWallet, Title: "Event proceeds released"})

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
