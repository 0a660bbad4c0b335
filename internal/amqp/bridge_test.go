package amqp

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"grana/internal/store"
)

type fakePublisher struct {
	origin    string
	published []*ChangeMessage
}

func (p *fakePublisher) PublishChange(_ context.Context, msg *ChangeMessage) error {
	p.published = append(p.published, msg)
	return nil
}

func (p *fakePublisher) Origin() string { return p.origin }

func TestBridgePublishesLocalEvents(t *testing.T) {
	n := store.NewNotifier()
	pub := &fakePublisher{origin: "instance-a"}
	b := NewBridge(pub, n, slog.Default())

	sub := b.Start(context.Background())
	defer sub.Cancel()

	n.Publish(store.Event{OwnerID: "u1", Collection: store.CollectionTransactions, At: time.Now()})

	if len(pub.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.published))
	}
	msg := pub.published[0]
	if msg.Origin != "instance-a" || msg.OwnerID != "u1" || msg.Collection != store.CollectionTransactions {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestBridgeInjectsRemoteEventsWithoutEcho(t *testing.T) {
	n := store.NewNotifier()
	pub := &fakePublisher{origin: "instance-a"}
	b := NewBridge(pub, n, slog.Default())

	sub := b.Start(context.Background())
	defer sub.Cancel()

	var delivered []store.Event
	local := n.Subscribe(func(e store.Event) { delivered = append(delivered, e) })
	defer local.Cancel()

	remote := NewChangeMessage("instance-b", store.Event{
		OwnerID:    "u1",
		Collection: store.CollectionGoals,
		At:         time.Now(),
	})
	if err := b.HandleRemote(remote); err != nil {
		t.Fatalf("HandleRemote: %v", err)
	}

	if len(delivered) != 1 {
		t.Fatalf("local subscriber got %d events, want 1", len(delivered))
	}
	if delivered[0].Collection != store.CollectionGoals {
		t.Errorf("delivered collection = %q", delivered[0].Collection)
	}
	// The injected event must not be republished to the broker.
	if len(pub.published) != 0 {
		t.Errorf("bridge echoed %d remote events back to the broker", len(pub.published))
	}
}

// HandleRemote publishes into a notifier whose subscribers include the
// bridge's own; it must return even though that subscriber runs on the same
// goroutine and inspects the bridge state.
func TestHandleRemoteReturnsWhileBridgeSubscribed(t *testing.T) {
	n := store.NewNotifier()
	pub := &fakePublisher{origin: "instance-a"}
	b := NewBridge(pub, n, slog.Default())

	sub := b.Start(context.Background())
	defer sub.Cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.HandleRemote(NewChangeMessage("instance-b", store.Event{
			OwnerID:    "u1",
			Collection: store.CollectionTransactions,
			At:         time.Now(),
		}))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("HandleRemote: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HandleRemote did not return")
	}
}

func TestChangeMessageRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	msg := NewChangeMessage("origin-1", store.Event{OwnerID: "u1", Collection: store.CollectionRules, At: at})

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	got, err := ChangeMessageFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.Origin != "origin-1" || got.OwnerID != "u1" || got.Collection != store.CollectionRules || !got.At.Equal(at) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
