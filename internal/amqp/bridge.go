package amqp

import (
	"context"
	"log/slog"
	"sync"

	"grana/internal/store"
)

// changePublisher is the slice of Client the bridge needs outbound.
type changePublisher interface {
	PublishChange(ctx context.Context, msg *ChangeMessage) error
	Origin() string
}

// Bridge connects a local notifier to the broker in both directions: local
// change events are published, and remote ones are injected back into the
// notifier so watch subscriptions fire as if the write were local.
type Bridge struct {
	notifier  *store.Notifier
	publisher changePublisher
	logger    *slog.Logger

	mu        sync.Mutex
	injecting bool
}

func NewBridge(publisher changePublisher, n *store.Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{notifier: n, publisher: publisher, logger: logger}
}

// Start subscribes to the local notifier and publishes every local event.
// The returned subscription must be cancelled on shutdown.
func (b *Bridge) Start(ctx context.Context) store.Subscription {
	return b.notifier.Subscribe(func(e store.Event) {
		// Events the bridge itself injected stay local; the remote side
		// already has them.
		b.mu.Lock()
		skip := b.injecting
		b.mu.Unlock()
		if skip {
			return
		}

		msg := NewChangeMessage(b.publisher.Origin(), e)
		if err := b.publisher.PublishChange(ctx, msg); err != nil {
			b.logger.Error("failed to publish change event",
				"error", err,
				"collection", e.Collection,
				"owner_id", e.OwnerID)
		}
	})
}

// HandleRemote injects a remote change message into the local notifier.
// Notifier delivery is synchronous and the consume loop is a single
// goroutine, so the injecting flag covers exactly the handlers triggered by
// this event. The lock must not be held across Publish: the bridge's own
// subscriber reads the flag under the same lock.
func (b *Bridge) HandleRemote(msg *ChangeMessage) error {
	b.mu.Lock()
	b.injecting = true
	b.mu.Unlock()

	b.notifier.Publish(msg.Event())

	b.mu.Lock()
	b.injecting = false
	b.mu.Unlock()
	return nil
}
