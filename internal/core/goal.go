package core

import (
	"errors"
	"time"
)

const (
	// GoalSavings accumulates manually added progress toward a target.
	GoalSavings GoalKind = "SAVINGS"
	// GoalSpendingLimit tracks expenses for one category in one month
	// against a ceiling. Reaching the target is a warning, not a win.
	GoalSpendingLimit GoalKind = "SPENDING_LIMIT"
	// GoalMonthlyBalance tracks income minus expense for one month.
	GoalMonthlyBalance GoalKind = "MONTHLY_BALANCE"
)

type (
	// GoalKind discriminates the goal variant.
	GoalKind string

	// Goal is a tagged union: exactly one of the variant fields matching
	// Kind is set. Progress, current value and status are derived at
	// evaluation time and never stored.
	Goal struct {
		ID        string
		Name      string
		Kind      GoalKind
		Target    Money
		OwnerID   string
		CreatedAt time.Time

		Savings        *SavingsGoal
		SpendingLimit  *SpendingLimitGoal
		MonthlyBalance *MonthlyBalanceGoal
	}

	// SavingsGoal carries the manually accumulated value and an optional
	// deadline. A zero Deadline means the goal never expires.
	SavingsGoal struct {
		Accumulated Money
		Deadline    time.Time
	}

	// SpendingLimitGoal scopes the limit to one category in one month.
	SpendingLimitGoal struct {
		Category string
		Month    YearMonth
	}

	// MonthlyBalanceGoal targets the balance of one month.
	MonthlyBalanceGoal struct {
		Month YearMonth
	}
)

func (k GoalKind) Validate() error {
	switch k {
	case GoalSavings, GoalSpendingLimit, GoalMonthlyBalance:
		return nil
	default:
		return ErrUnknownGoalKind
	}
}

// Validate checks the common invariants and that the variant payload matches
// the declared kind.
func (g Goal) Validate() error {
	if g.Name == "" {
		return ErrEmptyName
	}
	if err := g.Kind.Validate(); err != nil {
		return err
	}
	if g.Target.Cents <= 0 {
		return ErrInvalidTarget
	}
	switch g.Kind {
	case GoalSavings:
		if g.Savings == nil {
			return errors.New("savings goal missing savings fields")
		}
		if g.Savings.Accumulated.Cents < 0 {
			// The UI is increment-only, but the store does not enforce
			// monotonicity, so reject plainly bad data here.
			return ErrInvalidAmount
		}
	case GoalSpendingLimit:
		if g.SpendingLimit == nil {
			return errors.New("spending-limit goal missing limit fields")
		}
		if g.SpendingLimit.Category == "" {
			return errors.New("spending-limit goal missing category")
		}
		if g.SpendingLimit.Month.IsZero() {
			return errors.New("spending-limit goal missing target month")
		}
	case GoalMonthlyBalance:
		if g.MonthlyBalance == nil {
			return errors.New("monthly-balance goal missing month field")
		}
		if g.MonthlyBalance.Month.IsZero() {
			return errors.New("monthly-balance goal missing target month")
		}
	}
	return nil
}
