package store

import (
	"sync"
	"time"
)

// Collections that emit change events.
const (
	CollectionTransactions = "transactions"
	CollectionRules        = "recurrence_rules"
	CollectionGoals        = "goals"
)

// Event announces that a collection changed for an owner. Subscribers re-read
// the snapshot; events carry no payload so derived state is always recomputed
// from a full read, never patched incrementally.
type Event struct {
	OwnerID    string
	Collection string
	At         time.Time
}

// Notifier is an in-process fan-out used by backends without native change
// streams. Firestore uses its own snapshot listeners instead.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]func(Event)
	next int
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]func(Event))}
}

// Publish delivers the event to all subscribers synchronously, in the
// caller's goroutine. Handlers must not block.
func (n *Notifier) Publish(e Event) {
	n.mu.Lock()
	handlers := make([]func(Event), 0, len(n.subs))
	for _, fn := range n.subs {
		handlers = append(handlers, fn)
	}
	n.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}

// Subscribe registers a handler and returns its cancellation handle.
func (n *Notifier) Subscribe(fn func(Event)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return &notifierSub{n: n, id: id}
}

type notifierSub struct {
	n    *Notifier
	id   int
	once sync.Once
}

func (s *notifierSub) Cancel() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s.id)
		s.n.mu.Unlock()
	})
}
