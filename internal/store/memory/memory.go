// Package memory implements the store ports in process memory. It backs
// tests and local development; data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"grana/internal/core"
	"grana/internal/store"
)

type Store struct {
	mu           sync.Mutex
	transactions map[string]core.Transaction
	rules        map[string]core.RecurrenceRule
	goals        map[string]core.Goal
	notifier     *store.Notifier
}

// New creates an empty store publishing change events on the notifier.
// A nil notifier disables notifications (and Watch methods still deliver
// the initial snapshot).
func New(n *store.Notifier) *Store {
	if n == nil {
		n = store.NewNotifier()
	}
	return &Store{
		transactions: make(map[string]core.Transaction),
		rules:        make(map[string]core.RecurrenceRule),
		goals:        make(map[string]core.Goal),
		notifier:     n,
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) publish(ownerID, collection string) {
	s.notifier.Publish(store.Event{OwnerID: ownerID, Collection: collection, At: time.Now()})
}

// Transactions returns the owner's transactions ordered by timestamp
// descending, matching the store contract.
func (s *Store) Transactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactionsLocked(ownerID), nil
}

func (s *Store) transactionsLocked(ownerID string) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (s *Store) WatchTransactions(ctx context.Context, ownerID string, fn func([]core.Transaction)) (store.Subscription, error) {
	snapshot, _ := s.Transactions(ctx, ownerID)
	fn(snapshot)
	return s.notifier.Subscribe(func(e store.Event) {
		if e.OwnerID != ownerID || e.Collection != store.CollectionTransactions {
			return
		}
		snapshot, _ := s.Transactions(ctx, ownerID)
		fn(snapshot)
	}), nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	t.ID = uuid.NewString()
	s.transactions[t.ID] = t
	s.mu.Unlock()
	s.publish(t.OwnerID, store.CollectionTransactions)
	return t.ID, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	existing, ok := s.transactions[t.ID]
	if !ok || existing.OwnerID != t.OwnerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	s.transactions[t.ID] = t
	s.mu.Unlock()
	s.publish(t.OwnerID, store.CollectionTransactions)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	existing, ok := s.transactions[id]
	if !ok || existing.OwnerID != ownerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.transactions, id)
	s.mu.Unlock()
	s.publish(ownerID, store.CollectionTransactions)
	return nil
}

func (s *Store) Rules(_ context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurrenceRule, 0)
	for _, r := range s.rules {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ActiveRules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	all, err := s.Rules(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) CreateRule(_ context.Context, r core.RecurrenceRule) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	r.ID = uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.rules[r.ID] = r
	s.mu.Unlock()
	s.publish(r.OwnerID, store.CollectionRules)
	return r.ID, nil
}

func (s *Store) UpdateRule(_ context.Context, r core.RecurrenceRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	existing, ok := s.rules[r.ID]
	if !ok || existing.OwnerID != r.OwnerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	// LastFulfilled belongs to the materializer; keep the stored stamp.
	r.LastFulfilled = existing.LastFulfilled
	r.CreatedAt = existing.CreatedAt
	s.rules[r.ID] = r
	s.mu.Unlock()
	s.publish(r.OwnerID, store.CollectionRules)
	return nil
}

func (s *Store) DeleteRule(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	existing, ok := s.rules[id]
	if !ok || existing.OwnerID != ownerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.rules, id)
	s.mu.Unlock()
	s.publish(ownerID, store.CollectionRules)
	return nil
}

func (s *Store) MarkFulfilled(_ context.Context, ownerID, id string, at time.Time) error {
	s.mu.Lock()
	r, ok := s.rules[id]
	if !ok || r.OwnerID != ownerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	r.LastFulfilled = at
	s.rules[id] = r
	s.mu.Unlock()
	s.publish(ownerID, store.CollectionRules)
	return nil
}

func (s *Store) Goals(_ context.Context, ownerID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goalsLocked(ownerID), nil
}

func (s *Store) goalsLocked(ownerID string) []core.Goal {
	out := make([]core.Goal, 0)
	for _, g := range s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) WatchGoals(ctx context.Context, ownerID string, fn func([]core.Goal)) (store.Subscription, error) {
	snapshot, _ := s.Goals(ctx, ownerID)
	fn(snapshot)
	return s.notifier.Subscribe(func(e store.Event) {
		if e.OwnerID != ownerID || e.Collection != store.CollectionGoals {
			return
		}
		snapshot, _ := s.Goals(ctx, ownerID)
		fn(snapshot)
	}), nil
}

func (s *Store) CreateGoal(_ context.Context, g core.Goal) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	s.goals[g.ID] = g
	s.mu.Unlock()
	s.publish(g.OwnerID, store.CollectionGoals)
	return g.ID, nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	existing, ok := s.goals[g.ID]
	if !ok || existing.OwnerID != g.OwnerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	g.CreatedAt = existing.CreatedAt
	// The accumulated value is owned by IncrementGoalValue; an edit must not
	// clobber it, matching the column exclusion in the other backends.
	if g.Kind == core.GoalSavings && g.Savings != nil && existing.Savings != nil {
		sv := *g.Savings
		sv.Accumulated = existing.Savings.Accumulated
		g.Savings = &sv
	}
	s.goals[g.ID] = g
	s.mu.Unlock()
	s.publish(g.OwnerID, store.CollectionGoals)
	return nil
}

func (s *Store) DeleteGoal(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	existing, ok := s.goals[id]
	if !ok || existing.OwnerID != ownerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.goals, id)
	s.mu.Unlock()
	s.publish(ownerID, store.CollectionGoals)
	return nil
}

// IncrementGoalValue adds delta to a savings goal's accumulated value. The
// whole read-modify-write happens under the store lock, giving the atomic
// increment the port requires.
func (s *Store) IncrementGoalValue(_ context.Context, ownerID, id string, delta core.Money) error {
	if delta.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	s.mu.Lock()
	g, ok := s.goals[id]
	if !ok || g.OwnerID != ownerID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	// Only savings goals carry an accumulated value; treat everything else
	// as not found, like the kind-guarded update in the SQL backend.
	if g.Kind != core.GoalSavings || g.Savings == nil {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	sv := *g.Savings
	sv.Accumulated.Cents += delta.Cents
	g.Savings = &sv
	s.goals[id] = g
	s.mu.Unlock()
	s.publish(ownerID, store.CollectionGoals)
	return nil
}

var _ store.Store = (*Store)(nil)
