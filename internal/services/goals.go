package services

import (
	"time"

	"grana/internal/core"
)

const (
	StatusActive    GoalStatus = "active"
	StatusCompleted GoalStatus = "completed"
	StatusExpired   GoalStatus = "expired"
)

type (
	// GoalStatus is the derived lifecycle state of a goal.
	GoalStatus string

	// Progress is the evaluated, never-persisted state of one goal. Pct is
	// the raw percentage: bounded below at zero but not capped at 100, so
	// callers can still show how far over target a value is. Kind is echoed
	// so presentation can color by variant; for SPENDING_LIMIT, "completed"
	// means the limit was reached and is a warning, not a win.
	Progress struct {
		GoalID  string
		Kind    core.GoalKind
		Current core.Money
		Pct     float64
		Status  GoalStatus
	}
)

// BarWidth is Pct capped at 100, for progress-bar rendering only.
func (p Progress) BarWidth() float64 {
	if p.Pct > 100 {
		return 100
	}
	return p.Pct
}

// Evaluate computes the current value, percentage and status of one goal
// against a transaction snapshot. Pure function of its inputs; it is
// re-invoked from scratch on every store notification.
func Evaluate(g core.Goal, ts []core.Transaction, now time.Time) Progress {
	p := Progress{GoalID: g.ID, Kind: g.Kind, Status: StatusActive}

	switch g.Kind {
	case core.GoalSavings:
		if g.Savings == nil {
			return p
		}
		p.Current = g.Savings.Accumulated
		if p.Current.Cents >= g.Target.Cents && g.Target.Cents > 0 {
			p.Status = StatusCompleted
		} else if !g.Savings.Deadline.IsZero() && g.Savings.Deadline.Before(now) {
			p.Status = StatusExpired
		}

	case core.GoalSpendingLimit:
		if g.SpendingLimit == nil {
			return p
		}
		for _, t := range ts {
			if t.Kind == core.Expense && t.Category == g.SpendingLimit.Category && g.SpendingLimit.Month.Contains(t.Timestamp) {
				p.Current.Cents += t.Amount.Cents
			}
		}
		if p.Current.Cents >= g.Target.Cents && g.Target.Cents > 0 {
			p.Status = StatusCompleted
		}

	case core.GoalMonthlyBalance:
		if g.MonthlyBalance == nil {
			return p
		}
		inMonth := make([]core.Transaction, 0, len(ts))
		for _, t := range ts {
			if g.MonthlyBalance.Month.Contains(t.Timestamp) {
				inMonth = append(inMonth, t)
			}
		}
		p.Current = Summarize(inMonth).Balance
		if p.Current.Cents >= g.Target.Cents && g.Target.Cents > 0 {
			p.Status = StatusCompleted
		}
	}

	// Guard against target <= 0 instead of trusting upstream validation.
	if g.Target.Cents > 0 {
		p.Pct = float64(p.Current.Cents) / float64(g.Target.Cents) * 100
	}
	if p.Pct < 0 {
		p.Pct = 0
	}
	return p
}

// EvaluateAll evaluates every goal against the same snapshot.
func EvaluateAll(goals []core.Goal, ts []core.Transaction, now time.Time) []Progress {
	out := make([]Progress, len(goals))
	for i, g := range goals {
		out[i] = Evaluate(g, ts, now)
	}
	return out
}
