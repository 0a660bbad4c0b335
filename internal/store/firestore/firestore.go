// Package firestore implements the store ports on Cloud Firestore. Watch
// methods use native snapshot listeners, so a change made by any session
// (or any other client of the same project) reaches every subscriber.
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cf "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"grana/internal/core"
	"grana/internal/store"
)

const (
	collTransactions = "transactions"
	collRules        = "recurrenceRules"
	collGoals        = "goals"
)

type Store struct {
	client *cf.Client
	logger *slog.Logger
}

// New connects to the Firestore project. credentials may be empty, in which
// case application default credentials are used.
func New(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	client, err := cf.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type txDoc struct {
	Description string    `firestore:"description"`
	AmountCents int64     `firestore:"amountCents"`
	Kind        string    `firestore:"kind"`
	Category    string    `firestore:"category"`
	Timestamp   time.Time `firestore:"timestamp"`
	OwnerID     string    `firestore:"ownerId"`
}

func toTxDoc(t core.Transaction) txDoc {
	return txDoc{
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Kind:        string(t.Kind),
		Category:    t.Category,
		Timestamp:   t.Timestamp,
		OwnerID:     t.OwnerID,
	}
}

func (d txDoc) toDomain(id string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Description: d.Description,
		Amount:      core.Money{Cents: d.AmountCents},
		Kind:        core.Kind(d.Kind),
		Category:    d.Category,
		Timestamp:   d.Timestamp,
		OwnerID:     d.OwnerID,
	}
}

func (s *Store) transactionsQuery(ownerID string) cf.Query {
	return s.client.Collection(collTransactions).
		Where("ownerId", "==", ownerID).
		OrderBy("timestamp", cf.Desc)
}

func (s *Store) Transactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	iter := s.transactionsQuery(ownerID).Documents(ctx)
	defer iter.Stop()

	var out []core.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate transactions: %w", err)
		}
		var d txDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", doc.Ref.ID, err)
		}
		out = append(out, d.toDomain(doc.Ref.ID))
	}
	return out, nil
}

func (s *Store) WatchTransactions(ctx context.Context, ownerID string, fn func([]core.Transaction)) (store.Subscription, error) {
	return s.watch(ctx, s.transactionsQuery(ownerID), func(snap *cf.QuerySnapshot) error {
		var ts []core.Transaction
		for {
			doc, err := snap.Documents.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("iterate transaction snapshot: %w", err)
			}
			var d txDoc
			if err := doc.DataTo(&d); err != nil {
				return fmt.Errorf("decode transaction %s: %w", doc.Ref.ID, err)
			}
			ts = append(ts, d.toDomain(doc.Ref.ID))
		}
		fn(ts)
		return nil
	})
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collTransactions).Add(ctx, toTxDoc(t))
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	return ref.ID, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ref, err := s.ownedDoc(ctx, collTransactions, t.OwnerID, t.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, toTxDoc(t)); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	ref, err := s.ownedDoc(ctx, collTransactions, ownerID, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

type ruleDoc struct {
	Description   string    `firestore:"description"`
	AmountCents   int64     `firestore:"amountCents"`
	Kind          string    `firestore:"kind"`
	Category      string    `firestore:"category"`
	DayOfMonth    int       `firestore:"dayOfMonth"`
	Frequency     string    `firestore:"frequency"`
	Active        bool      `firestore:"active"`
	CreatedAt     time.Time `firestore:"createdAt"`
	LastFulfilled time.Time `firestore:"lastFulfilled"`
	OwnerID       string    `firestore:"ownerId"`
}

func (d ruleDoc) toDomain(id string) core.RecurrenceRule {
	return core.RecurrenceRule{
		ID:            id,
		Description:   d.Description,
		Amount:        core.Money{Cents: d.AmountCents},
		Kind:          core.Kind(d.Kind),
		Category:      d.Category,
		DayOfMonth:    d.DayOfMonth,
		Frequency:     core.Frequency(d.Frequency),
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		LastFulfilled: d.LastFulfilled,
		OwnerID:       d.OwnerID,
	}
}

func (s *Store) rulesQuery(ownerID string) cf.Query {
	return s.client.Collection(collRules).
		Where("ownerId", "==", ownerID).
		OrderBy("createdAt", cf.Asc)
}

func (s *Store) Rules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	return s.queryRules(ctx, s.rulesQuery(ownerID))
}

func (s *Store) ActiveRules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	return s.queryRules(ctx, s.rulesQuery(ownerID).Where("active", "==", true))
}

func (s *Store) queryRules(ctx context.Context, q cf.Query) ([]core.RecurrenceRule, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []core.RecurrenceRule
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate recurrence rules: %w", err)
		}
		var d ruleDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode recurrence rule %s: %w", doc.Ref.ID, err)
		}
		out = append(out, d.toDomain(doc.Ref.ID))
	}
	return out, nil
}

func (s *Store) CreateRule(ctx context.Context, r core.RecurrenceRule) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	doc := ruleDoc{
		Description: r.Description,
		AmountCents: r.Amount.Cents,
		Kind:        string(r.Kind),
		Category:    r.Category,
		DayOfMonth:  r.DayOfMonth,
		Frequency:   string(r.Frequency),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		OwnerID:     r.OwnerID,
	}
	ref, _, err := s.client.Collection(collRules).Add(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("create recurrence rule: %w", err)
	}
	return ref.ID, nil
}

// UpdateRule rewrites the user-editable fields only. lastFulfilled belongs
// to MarkFulfilled.
func (s *Store) UpdateRule(ctx context.Context, r core.RecurrenceRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ref, err := s.ownedDoc(ctx, collRules, r.OwnerID, r.ID)
	if err != nil {
		return err
	}
	_, err = ref.Update(ctx, []cf.Update{
		{Path: "description", Value: r.Description},
		{Path: "amountCents", Value: r.Amount.Cents},
		{Path: "kind", Value: string(r.Kind)},
		{Path: "category", Value: r.Category},
		{Path: "dayOfMonth", Value: r.DayOfMonth},
		{Path: "frequency", Value: string(r.Frequency)},
		{Path: "active", Value: r.Active},
	})
	if err != nil {
		return fmt.Errorf("update recurrence rule: %w", err)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, ownerID, id string) error {
	ref, err := s.ownedDoc(ctx, collRules, ownerID, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete recurrence rule: %w", err)
	}
	return nil
}

func (s *Store) MarkFulfilled(ctx context.Context, ownerID, id string, at time.Time) error {
	ref, err := s.ownedDoc(ctx, collRules, ownerID, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, []cf.Update{{Path: "lastFulfilled", Value: at}}); err != nil {
		return fmt.Errorf("mark rule fulfilled: %w", err)
	}
	return nil
}

type goalDoc struct {
	Name             string    `firestore:"name"`
	Kind             string    `firestore:"kind"`
	TargetCents      int64     `firestore:"targetCents"`
	OwnerID          string    `firestore:"ownerId"`
	CreatedAt        time.Time `firestore:"createdAt"`
	AccumulatedCents int64     `firestore:"accumulatedCents"`
	Deadline         time.Time `firestore:"deadline"`
	Category         string    `firestore:"category"`
	TargetMonth      string    `firestore:"targetMonth"`
}

func (d goalDoc) toDomain(id string) (core.Goal, error) {
	g := core.Goal{
		ID:        id,
		Name:      d.Name,
		Kind:      core.GoalKind(d.Kind),
		Target:    core.Money{Cents: d.TargetCents},
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
	}
	switch g.Kind {
	case core.GoalSavings:
		g.Savings = &core.SavingsGoal{
			Accumulated: core.Money{Cents: d.AccumulatedCents},
			Deadline:    d.Deadline,
		}
	case core.GoalSpendingLimit:
		month, err := core.ParseYearMonth(d.TargetMonth)
		if err != nil {
			return core.Goal{}, fmt.Errorf("goal %s: %w", id, err)
		}
		g.SpendingLimit = &core.SpendingLimitGoal{Category: d.Category, Month: month}
	case core.GoalMonthlyBalance:
		month, err := core.ParseYearMonth(d.TargetMonth)
		if err != nil {
			return core.Goal{}, fmt.Errorf("goal %s: %w", id, err)
		}
		g.MonthlyBalance = &core.MonthlyBalanceGoal{Month: month}
	}
	return g, nil
}

func toGoalDoc(g core.Goal) goalDoc {
	d := goalDoc{
		Name:        g.Name,
		Kind:        string(g.Kind),
		TargetCents: g.Target.Cents,
		OwnerID:     g.OwnerID,
		CreatedAt:   g.CreatedAt,
	}
	switch g.Kind {
	case core.GoalSavings:
		d.AccumulatedCents = g.Savings.Accumulated.Cents
		d.Deadline = g.Savings.Deadline
	case core.GoalSpendingLimit:
		d.Category = g.SpendingLimit.Category
		d.TargetMonth = g.SpendingLimit.Month.String()
	case core.GoalMonthlyBalance:
		d.TargetMonth = g.MonthlyBalance.Month.String()
	}
	return d
}

func (s *Store) goalsQuery(ownerID string) cf.Query {
	return s.client.Collection(collGoals).
		Where("ownerId", "==", ownerID).
		OrderBy("createdAt", cf.Asc)
}

func (s *Store) Goals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	iter := s.goalsQuery(ownerID).Documents(ctx)
	defer iter.Stop()

	var out []core.Goal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate goals: %w", err)
		}
		var d goalDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode goal %s: %w", doc.Ref.ID, err)
		}
		g, err := d.toDomain(doc.Ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) WatchGoals(ctx context.Context, ownerID string, fn func([]core.Goal)) (store.Subscription, error) {
	return s.watch(ctx, s.goalsQuery(ownerID), func(snap *cf.QuerySnapshot) error {
		var gs []core.Goal
		for {
			doc, err := snap.Documents.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return fmt.Errorf("iterate goal snapshot: %w", err)
			}
			var d goalDoc
			if err := doc.DataTo(&d); err != nil {
				return fmt.Errorf("decode goal %s: %w", doc.Ref.ID, err)
			}
			g, err := d.toDomain(doc.Ref.ID)
			if err != nil {
				return err
			}
			gs = append(gs, g)
		}
		fn(gs)
		return nil
	})
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	ref, _, err := s.client.Collection(collGoals).Add(ctx, toGoalDoc(g))
	if err != nil {
		return "", fmt.Errorf("create goal: %w", err)
	}
	return ref.ID, nil
}

// UpdateGoal rewrites the user-editable fields. accumulatedCents is excluded
// so a concurrent atomic increment is never overwritten by an edit.
func (s *Store) UpdateGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	ref, err := s.ownedDoc(ctx, collGoals, g.OwnerID, g.ID)
	if err != nil {
		return err
	}
	d := toGoalDoc(g)
	_, err = ref.Update(ctx, []cf.Update{
		{Path: "name", Value: d.Name},
		{Path: "kind", Value: d.Kind},
		{Path: "targetCents", Value: d.TargetCents},
		{Path: "deadline", Value: d.Deadline},
		{Path: "category", Value: d.Category},
		{Path: "targetMonth", Value: d.TargetMonth},
	})
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return nil
}

func (s *Store) DeleteGoal(ctx context.Context, ownerID, id string) error {
	ref, err := s.ownedDoc(ctx, collGoals, ownerID, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// IncrementGoalValue uses a server-side increment, so concurrent sessions
// never lose updates.
func (s *Store) IncrementGoalValue(ctx context.Context, ownerID, id string, delta core.Money) error {
	if delta.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	ref, err := s.ownedDoc(ctx, collGoals, ownerID, id)
	if err != nil {
		return err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return fmt.Errorf("get goal: %w", err)
	}
	if kind, _ := snap.DataAt("kind"); kind != string(core.GoalSavings) {
		return store.ErrNotFound
	}
	_, err = ref.Update(ctx, []cf.Update{
		{Path: "accumulatedCents", Value: cf.Increment(delta.Cents)},
	})
	if err != nil {
		return fmt.Errorf("increment goal value: %w", err)
	}
	return nil
}

// ownedDoc resolves id to a document reference after checking that it
// belongs to ownerID. Cross-owner access reports ErrNotFound, not forbidden,
// so ids are not probeable.
func (s *Store) ownedDoc(ctx context.Context, coll, ownerID, id string) (*cf.DocumentRef, error) {
	ref := s.client.Collection(coll).Doc(id)
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	owner, err := snap.DataAt("ownerId")
	if err != nil || owner != ownerID {
		return nil, store.ErrNotFound
	}
	return ref, nil
}

type watchSub struct {
	cancel context.CancelFunc
}

func (w *watchSub) Cancel() { w.cancel() }

// watch runs a snapshot listener in its own goroutine and feeds every
// snapshot through deliver until the subscription is cancelled.
func (s *Store) watch(ctx context.Context, q cf.Query, deliver func(*cf.QuerySnapshot) error) (store.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := q.Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil && s.logger != nil {
					s.logger.Error("snapshot listener stopped", "error", err)
				}
				return
			}
			if err := deliver(snap); err != nil && s.logger != nil {
				s.logger.Error("snapshot decode failed", "error", err)
			}
		}
	}()

	return &watchSub{cancel: cancel}, nil
}

var _ store.Store = (*Store)(nil)
