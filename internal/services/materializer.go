package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"grana/internal/core"
	"grana/internal/store"
)

// RecurrenceSuffix is appended to the description of every materialized
// transaction so users can tell generated records from manual ones.
const RecurrenceSuffix = " (Recorrente)"

// Action is one planned materialization: the transaction to create and the
// rule to stamp. Both writes belong to the same batch but are not atomic;
// if the stamp fails the rule fires again next session and the user sees a
// duplicate. That risk is accepted rather than hidden behind a lock, because
// shouldFire must stay derivable from LastFulfilled alone.
type Action struct {
	Transaction core.Transaction
	RuleID      string
	FulfilledAt time.Time
}

// Plan decides, for a snapshot of rules, which ones fire today. Pure
// function; all I/O happens in Materializer.Run.
func Plan(rules []core.RecurrenceRule, today time.Time) []Action {
	var actions []Action
	for _, r := range rules {
		if !r.Active || !shouldFire(r, today) {
			continue
		}

		day := clampDay(r.DayOfMonth, today)
		actions = append(actions, Action{
			Transaction: core.Transaction{
				Description: r.Description + RecurrenceSuffix,
				Amount:      r.Amount,
				Kind:        r.Kind,
				Category:    r.Category,
				Timestamp:   time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, today.Location()),
				OwnerID:     r.OwnerID,
			},
			RuleID:      r.ID,
			FulfilledAt: today,
		})
	}
	return actions
}

// shouldFire reports whether the rule is due: its scheduled day has passed
// this month and it has not fired this month yet.
func shouldFire(r core.RecurrenceRule, today time.Time) bool {
	if today.Day() < clampDay(r.DayOfMonth, today) {
		return false
	}
	if r.LastFulfilled.IsZero() {
		return true
	}
	sameMonth := r.LastFulfilled.Year() == today.Year() && r.LastFulfilled.Month() == today.Month()
	return !sameMonth
}

// clampDay pulls a scheduled day that does not exist in the current month
// (e.g. 31 in February) back to the month's last day.
func clampDay(day int, today time.Time) int {
	last := core.YearMonthOf(today).LastDay()
	if day > last {
		return last
	}
	return day
}

// Materializer turns due recurrence rules into concrete transactions once
// per session.
type Materializer struct {
	rules  store.RuleStore
	writer store.TransactionWriter
}

func NewMaterializer(rules store.RuleStore, writer store.TransactionWriter) *Materializer {
	return &Materializer{rules: rules, writer: writer}
}

// Run fetches the active-rule snapshot for the owner, plans, and submits the
// whole write batch together. The session guard makes it a no-op after the
// first attempt within the same Session. Returns the number of transactions
// created; a non-nil error means at least one write in the batch failed
// while others may have succeeded.
func (m *Materializer) Run(ctx context.Context, sess *Session, ownerID string, today time.Time) (int, error) {
	if sess == nil {
		return 0, fmt.Errorf("nil session")
	}
	if !sess.TryBegin() {
		slog.DebugContext(ctx, "materialization already attempted this session", "owner_id", ownerID)
		return 0, nil
	}

	rules, err := m.rules.ActiveRules(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("fetch active rules: %w", err)
	}

	actions := Plan(rules, today)
	slog.InfoContext(ctx, "materializing recurrence rules",
		"owner_id", ownerID,
		"active_rules", len(rules),
		"due", len(actions),
		"date", today.Format("2006-01-02"))

	var created atomic.Int64
	var g errgroup.Group
	for _, a := range actions {
		g.Go(func() error {
			id, err := m.writer.CreateTransaction(ctx, a.Transaction)
			if err != nil {
				slog.ErrorContext(ctx, "failed to create transaction from rule",
					"rule_id", a.RuleID, "error", err)
				return fmt.Errorf("create transaction for rule %s: %w", a.RuleID, err)
			}
			created.Add(1)

			if err := m.rules.MarkFulfilled(ctx, ownerID, a.RuleID, a.FulfilledAt); err != nil {
				// The transaction exists but the rule was not stamped, so it
				// may fire again next session. Logged, not rolled back.
				slog.ErrorContext(ctx, "failed to stamp rule after creating transaction",
					"rule_id", a.RuleID, "transaction_id", id, "error", err)
				return fmt.Errorf("mark rule %s fulfilled: %w", a.RuleID, err)
			}

			slog.InfoContext(ctx, "created transaction from recurrence rule",
				"rule_id", a.RuleID,
				"transaction_id", id,
				"amount_cents", a.Transaction.Amount.Cents)
			return nil
		})
	}

	err = g.Wait()
	return int(created.Load()), err
}
