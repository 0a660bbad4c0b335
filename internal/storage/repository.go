// Package storage implements the store ports on SQLite. It is the local
// backend: one file, no external services, change notifications via the
// in-process notifier (optionally bridged across processes over AMQP).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grana/internal/core"
	"grana/internal/store"
)

type SQLiteRepository struct {
	db       *sql.DB
	notifier *store.Notifier
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath,
// runs migrations and wires change events onto the notifier.
func NewSQLiteRepository(dbPath string, n *store.Notifier) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if n == nil {
		n = store.NewNotifier()
	}
	return &SQLiteRepository{db: db, notifier: n}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Notifier exposes the repository's change feed so the AMQP bridge can
// forward remote events into it.
func (r *SQLiteRepository) Notifier() *store.Notifier {
	return r.notifier
}

func (r *SQLiteRepository) publish(ownerID, collection string) {
	r.notifier.Publish(store.Event{OwnerID: ownerID, Collection: collection, At: time.Now()})
}

func (r *SQLiteRepository) Transactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, kind, category, timestamp, owner_id
		FROM transactions WHERE owner_id = ? ORDER BY timestamp DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var ts string
		if err := rows.Scan(&t.ID, &t.Description, &t.Amount.Cents, &t.Kind, &t.Category, &ts, &t.OwnerID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse transaction timestamp: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) WatchTransactions(ctx context.Context, ownerID string, fn func([]core.Transaction)) (store.Subscription, error) {
	snapshot, err := r.Transactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	fn(snapshot)
	return r.notifier.Subscribe(func(e store.Event) {
		if e.OwnerID != ownerID || e.Collection != store.CollectionTransactions {
			return
		}
		if snapshot, err := r.Transactions(ctx, ownerID); err == nil {
			fn(snapshot)
		}
	}), nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	t.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, description, amount_cents, kind, category, timestamp, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount.Cents, t.Kind, t.Category, t.Timestamp.Format(time.RFC3339Nano), t.OwnerID)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	r.publish(t.OwnerID, store.CollectionTransactions)
	return t.ID, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET description = ?, amount_cents = ?, kind = ?, category = ?, timestamp = ?
		WHERE id = ? AND owner_id = ?`,
		t.Description, t.Amount.Cents, t.Kind, t.Category, t.Timestamp.Format(time.RFC3339Nano), t.ID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(t.OwnerID, store.CollectionTransactions)
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(ownerID, store.CollectionTransactions)
	return nil
}

func (r *SQLiteRepository) Rules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	return r.queryRules(ctx, `
		SELECT id, description, amount_cents, kind, category, day_of_month, frequency, active, created_at, last_fulfilled, owner_id
		FROM recurrence_rules WHERE owner_id = ? ORDER BY created_at`, ownerID)
}

func (r *SQLiteRepository) ActiveRules(ctx context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	return r.queryRules(ctx, `
		SELECT id, description, amount_cents, kind, category, day_of_month, frequency, active, created_at, last_fulfilled, owner_id
		FROM recurrence_rules WHERE owner_id = ? AND active = 1 ORDER BY created_at`, ownerID)
}

func (r *SQLiteRepository) queryRules(ctx context.Context, query, ownerID string) ([]core.RecurrenceRule, error) {
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query recurrence rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurrenceRule
	for rows.Next() {
		var rule core.RecurrenceRule
		var createdAt string
		var lastFulfilled sql.NullString
		var active int
		if err := rows.Scan(&rule.ID, &rule.Description, &rule.Amount.Cents, &rule.Kind, &rule.Category,
			&rule.DayOfMonth, &rule.Frequency, &active, &createdAt, &lastFulfilled, &rule.OwnerID); err != nil {
			return nil, fmt.Errorf("scan recurrence rule: %w", err)
		}
		rule.Active = active != 0
		if rule.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse rule created_at: %w", err)
		}
		if lastFulfilled.Valid {
			if rule.LastFulfilled, err = time.Parse(time.RFC3339Nano, lastFulfilled.String); err != nil {
				return nil, fmt.Errorf("parse rule last_fulfilled: %w", err)
			}
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurrenceRule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}
	rule.ID = uuid.NewString()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurrence_rules (id, description, amount_cents, kind, category, day_of_month, frequency, active, created_at, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Description, rule.Amount.Cents, rule.Kind, rule.Category,
		rule.DayOfMonth, rule.Frequency, boolToInt(rule.Active), rule.CreatedAt.Format(time.RFC3339Nano), rule.OwnerID)
	if err != nil {
		return "", fmt.Errorf("insert recurrence rule: %w", err)
	}
	r.publish(rule.OwnerID, store.CollectionRules)
	return rule.ID, nil
}

// UpdateRule writes the user-editable fields. last_fulfilled is deliberately
// excluded; only MarkFulfilled touches it.
func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.RecurrenceRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurrence_rules SET description = ?, amount_cents = ?, kind = ?, category = ?, day_of_month = ?, frequency = ?, active = ?
		WHERE id = ? AND owner_id = ?`,
		rule.Description, rule.Amount.Cents, rule.Kind, rule.Category,
		rule.DayOfMonth, rule.Frequency, boolToInt(rule.Active), rule.ID, rule.OwnerID)
	if err != nil {
		return fmt.Errorf("update recurrence rule: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(rule.OwnerID, store.CollectionRules)
	return nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurrence_rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete recurrence rule: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(ownerID, store.CollectionRules)
	return nil
}

func (r *SQLiteRepository) MarkFulfilled(ctx context.Context, ownerID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurrence_rules SET last_fulfilled = ? WHERE id = ? AND owner_id = ?`,
		at.Format(time.RFC3339Nano), id, ownerID)
	if err != nil {
		return fmt.Errorf("mark rule fulfilled: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(ownerID, store.CollectionRules)
	return nil
}

func (r *SQLiteRepository) Goals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, target_cents, owner_id, created_at, accumulated_cents, deadline, category, target_month
		FROM goals WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGoal(rows *sql.Rows) (core.Goal, error) {
	var g core.Goal
	var createdAt string
	var accumulated int64
	var deadline, category, targetMonth sql.NullString
	if err := rows.Scan(&g.ID, &g.Name, &g.Kind, &g.Target.Cents, &g.OwnerID, &createdAt,
		&accumulated, &deadline, &category, &targetMonth); err != nil {
		return core.Goal{}, fmt.Errorf("scan goal: %w", err)
	}

	var err error
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Goal{}, fmt.Errorf("parse goal created_at: %w", err)
	}

	switch g.Kind {
	case core.GoalSavings:
		sv := &core.SavingsGoal{Accumulated: core.Money{Cents: accumulated}}
		if deadline.Valid {
			if sv.Deadline, err = time.Parse(time.RFC3339Nano, deadline.String); err != nil {
				return core.Goal{}, fmt.Errorf("parse goal deadline: %w", err)
			}
		}
		g.Savings = sv
	case core.GoalSpendingLimit:
		month, err := core.ParseYearMonth(targetMonth.String)
		if err != nil {
			return core.Goal{}, err
		}
		g.SpendingLimit = &core.SpendingLimitGoal{Category: category.String, Month: month}
	case core.GoalMonthlyBalance:
		month, err := core.ParseYearMonth(targetMonth.String)
		if err != nil {
			return core.Goal{}, err
		}
		g.MonthlyBalance = &core.MonthlyBalanceGoal{Month: month}
	}
	return g, nil
}

func (r *SQLiteRepository) WatchGoals(ctx context.Context, ownerID string, fn func([]core.Goal)) (store.Subscription, error) {
	snapshot, err := r.Goals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	fn(snapshot)
	return r.notifier.Subscribe(func(e store.Event) {
		if e.OwnerID != ownerID || e.Collection != store.CollectionGoals {
			return
		}
		if snapshot, err := r.Goals(ctx, ownerID); err == nil {
			fn(snapshot)
		}
	}), nil
}

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	g.ID = uuid.NewString()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	var accumulated int64
	var deadline, category, targetMonth any
	switch g.Kind {
	case core.GoalSavings:
		accumulated = g.Savings.Accumulated.Cents
		if !g.Savings.Deadline.IsZero() {
			deadline = g.Savings.Deadline.Format(time.RFC3339Nano)
		}
	case core.GoalSpendingLimit:
		category = g.SpendingLimit.Category
		targetMonth = g.SpendingLimit.Month.String()
	case core.GoalMonthlyBalance:
		targetMonth = g.MonthlyBalance.Month.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, name, kind, target_cents, owner_id, created_at, accumulated_cents, deadline, category, target_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Kind, g.Target.Cents, g.OwnerID, g.CreatedAt.Format(time.RFC3339Nano),
		accumulated, deadline, category, targetMonth)
	if err != nil {
		return "", fmt.Errorf("insert goal: %w", err)
	}
	r.publish(g.OwnerID, store.CollectionGoals)
	return g.ID, nil
}

// UpdateGoal rewrites the user-editable fields. The accumulated value is
// excluded so a concurrent atomic increment is never overwritten by an edit.
func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}

	var deadline, category, targetMonth any
	switch g.Kind {
	case core.GoalSavings:
		if !g.Savings.Deadline.IsZero() {
			deadline = g.Savings.Deadline.Format(time.RFC3339Nano)
		}
	case core.GoalSpendingLimit:
		category = g.SpendingLimit.Category
		targetMonth = g.SpendingLimit.Month.String()
	case core.GoalMonthlyBalance:
		targetMonth = g.MonthlyBalance.Month.String()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE goals SET name = ?, kind = ?, target_cents = ?, deadline = ?, category = ?, target_month = ?
		WHERE id = ? AND owner_id = ?`,
		g.Name, g.Kind, g.Target.Cents, deadline, category, targetMonth, g.ID, g.OwnerID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(g.OwnerID, store.CollectionGoals)
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(ownerID, store.CollectionGoals)
	return nil
}

// IncrementGoalValue adds delta in a single UPDATE so concurrent increments
// never lose updates.
func (r *SQLiteRepository) IncrementGoalValue(ctx context.Context, ownerID, id string, delta core.Money) error {
	if delta.Cents <= 0 {
		return core.ErrInvalidAmount
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE goals SET accumulated_cents = accumulated_cents + ?
		WHERE id = ? AND owner_id = ? AND kind = ?`,
		delta.Cents, id, ownerID, core.GoalSavings)
	if err != nil {
		return fmt.Errorf("increment goal value: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	r.publish(ownerID, store.CollectionGoals)
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*SQLiteRepository)(nil)
