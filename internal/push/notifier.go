package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/serene/internal/model"
)

const (
	notifierQueueSize = 64
	sendTimeout       = 15 * time.Second
)

// Subscriptions is the subscription storage the notifier needs.
type Subscriptions interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Sender delivers one payload to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

type job struct {
	userID  string
	payload Payload
}

// Notifier delivers notifications to every push subscription of a user off
// the caller's goroutine. Expired subscriptions are deleted.
type Notifier struct {
	mu     sync.RWMutex
	sender Sender
	subs   Subscriptions
	logger *slog.Logger
	queue  chan job
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNotifier(sender Sender, subs Subscriptions, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		subs:   subs,
		logger: logger,
		queue:  make(chan job, notifierQueueSize),
	}
}

// Start begins the delivery loop.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	n.mu.Unlock()

	go func() {
		defer close(n.done)
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-n.queue:
				n.deliver(ctx, j)
			}
		}
	}()
}

// Stop gracefully stops the delivery loop.
func (n *Notifier) Stop() {
	n.mu.RLock()
	cancel := n.cancel
	done := n.done
	n.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Notify queues a notification for push delivery. It never blocks; when
// the queue is full the push is dropped and the notification is still
// available in the app.
func (n *Notifier) Notify(userID string, notif model.Notification) {
	select {
	case n.queue <- job{userID: userID, payload: PayloadFor(notif)}:
	default:
		n.logger.Warn("push queue full, notification not pushed", "user_id", userID, "type", notif.Type)
	}
}

func (n *Notifier) deliver(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	subs, err := n.subs.ListByUser(ctx, j.userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", j.userID, "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, j.payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Error("delete expired push subscription", "user_id", j.userID, "error", err)
			} else {
				n.logger.Info("removed expired push subscription", "user_id", j.userID, "subscription_id", sub.ID)
			}
		default:
			n.logger.Warn("send push", "user_id", j.userID, "subscription_id", sub.ID, "error", err)
		}
	}
}
