package services

import "grana/internal/core"

// Summary is the aggregate view over a transaction set. Balance is always
// Income minus Expense.
type Summary struct {
	Income  core.Money
	Expense core.Money
	Balance core.Money
}

// Summarize computes totals over the given set. An empty set yields zeros.
func Summarize(ts []core.Transaction) Summary {
	var s Summary
	for _, t := range ts {
		switch t.Kind {
		case core.Income:
			s.Income.Cents += t.Amount.Cents
		case core.Expense:
			s.Expense.Cents += t.Amount.Cents
		}
	}
	s.Balance.Cents = s.Income.Cents - s.Expense.Cents
	return s
}

// ByCategory sums expense amounts per category for the breakdown chart.
// Only expense-kind transactions contribute; categories without expenses are
// absent from the result rather than present with zero.
func ByCategory(ts []core.Transaction) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, t := range ts {
		if t.Kind != core.Expense {
			continue
		}
		m := out[t.Category]
		m.Cents += t.Amount.Cents
		out[t.Category] = m
	}
	return out
}
