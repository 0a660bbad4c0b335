// Package store defines the ports the dashboard core needs from the document
// store. Implementations live in internal/store/firestore,
// internal/store/memory and internal/storage (SQLite).
package store

import (
	"context"
	"errors"
	"time"

	"grana/internal/core"
)

// ErrNotFound is returned when an id does not exist for the given owner.
var ErrNotFound = errors.New("record not found")

// Subscription is the handle returned by Watch methods. Cancel stops
// delivery; callers must cancel on session teardown.
type Subscription interface {
	Cancel()
}

// TransactionReader reads transactions for one owner, ordered by timestamp
// descending. Watch re-delivers the full snapshot after every change.
type TransactionReader interface {
	Transactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
	WatchTransactions(ctx context.Context, ownerID string, fn func([]core.Transaction)) (Subscription, error)
}

// TransactionWriter mutates the transaction collection.
type TransactionWriter interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (string, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
}

// RuleStore manages recurrence rules. ActiveRules is a point-in-time
// snapshot fetched once per materialization pass, not a live stream.
// MarkFulfilled is reserved for the materializer.
type RuleStore interface {
	Rules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error)
	ActiveRules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error)
	CreateRule(ctx context.Context, r core.RecurrenceRule) (string, error)
	UpdateRule(ctx context.Context, r core.RecurrenceRule) error
	DeleteRule(ctx context.Context, ownerID, id string) error
	MarkFulfilled(ctx context.Context, ownerID, id string, at time.Time) error
}

// GoalStore manages goals. IncrementGoalValue must be atomic at the store
// level; it is the one write that may race with another session and still
// must not lose updates.
type GoalStore interface {
	Goals(ctx context.Context, ownerID string) ([]core.Goal, error)
	WatchGoals(ctx context.Context, ownerID string, fn func([]core.Goal)) (Subscription, error)
	CreateGoal(ctx context.Context, g core.Goal) (string, error)
	UpdateGoal(ctx context.Context, g core.Goal) error
	DeleteGoal(ctx context.Context, ownerID, id string) error
	IncrementGoalValue(ctx context.Context, ownerID, id string, delta core.Money) error
}

// Store is the full document-store surface consumed by the application.
type Store interface {
	TransactionReader
	TransactionWriter
	RuleStore
	GoalStore
	Close() error
}
