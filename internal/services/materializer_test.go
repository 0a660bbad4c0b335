package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"grana/internal/core"
)

type fakeRuleStore struct {
	mu        sync.Mutex
	rules     []core.RecurrenceRule
	fulfilled map[string]time.Time
	markErr   error
}

func (f *fakeRuleStore) Rules(_ context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	return f.ActiveRules(context.Background(), ownerID)
}

func (f *fakeRuleStore) ActiveRules(_ context.Context, ownerID string) ([]core.RecurrenceRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.RecurrenceRule
	for _, r := range f.rules {
		if r.OwnerID == ownerID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleStore) CreateRule(context.Context, core.RecurrenceRule) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeRuleStore) UpdateRule(context.Context, core.RecurrenceRule) error {
	return errors.New("not implemented")
}

func (f *fakeRuleStore) DeleteRule(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *fakeRuleStore) MarkFulfilled(_ context.Context, _, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if f.fulfilled == nil {
		f.fulfilled = make(map[string]time.Time)
	}
	f.fulfilled[id] = at
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules[i].LastFulfilled = at
		}
	}
	return nil
}

type fakeWriter struct {
	mu      sync.Mutex
	created []core.Transaction
	err     error
}

func (f *fakeWriter) CreateTransaction(_ context.Context, t core.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, t)
	return fmt.Sprintf("tx-%d", len(f.created)), nil
}

func (f *fakeWriter) UpdateTransaction(context.Context, core.Transaction) error { return nil }
func (f *fakeWriter) DeleteTransaction(context.Context, string, string) error  { return nil }

func monthlyRule(id string, day int, lastFulfilled time.Time) core.RecurrenceRule {
	return core.RecurrenceRule{
		ID:            id,
		Description:   "Aluguel",
		Amount:        core.Money{Cents: 150000},
		Kind:          core.Expense,
		Category:      "Moradia",
		DayOfMonth:    day,
		Frequency:     core.Monthly,
		Active:        true,
		LastFulfilled: lastFulfilled,
		OwnerID:       "user-1",
	}
}

func TestShouldFire(t *testing.T) {
	tests := []struct {
		name          string
		dayOfMonth    int
		lastFulfilled time.Time
		today         time.Time
		want          bool
	}{
		{
			name:       "never fulfilled and day reached",
			dayOfMonth: 10,
			today:      time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
			want:       true,
		},
		{
			name:       "never fulfilled and day not reached",
			dayOfMonth: 10,
			today:      time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC),
			want:       false,
		},
		{
			name:          "fulfilled this month",
			dayOfMonth:    10,
			lastFulfilled: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			today:         time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
			want:          false,
		},
		{
			name:          "fulfilled last month and day reached",
			dayOfMonth:    10,
			lastFulfilled: time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC),
			today:         time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			want:          true,
		},
		{
			name:          "fulfilled last month but day not reached",
			dayOfMonth:    10,
			lastFulfilled: time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC),
			today:         time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
			want:          false,
		},
		{
			name:          "fulfilled same month previous year",
			dayOfMonth:    10,
			lastFulfilled: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
			today:         time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
			want:          true,
		},
		{
			name:       "day 31 clamped in february",
			dayOfMonth: 31,
			today:      time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC),
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := monthlyRule("r1", tt.dayOfMonth, tt.lastFulfilled)
			if got := shouldFire(r, tt.today); got != tt.want {
				t.Errorf("shouldFire() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	today := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("due rule produces transaction dated on the scheduled day", func(t *testing.T) {
		actions := Plan([]core.RecurrenceRule{monthlyRule("r1", 10, time.Time{})}, today)
		if len(actions) != 1 {
			t.Fatalf("Plan() produced %d actions, want 1", len(actions))
		}
		a := actions[0]
		wantDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		if !a.Transaction.Timestamp.Equal(wantDate) {
			t.Errorf("transaction date = %v, want %v", a.Transaction.Timestamp, wantDate)
		}
		if a.Transaction.Description != "Aluguel (Recorrente)" {
			t.Errorf("description = %q, want suffix applied", a.Transaction.Description)
		}
		if a.Transaction.Amount.Cents != 150000 || a.Transaction.Kind != core.Expense {
			t.Error("amount and kind must be copied from the rule")
		}
		if a.RuleID != "r1" || !a.FulfilledAt.Equal(today) {
			t.Error("action must reference the rule and stamp time")
		}
	})

	t.Run("inactive rules are skipped", func(t *testing.T) {
		r := monthlyRule("r1", 10, time.Time{})
		r.Active = false
		if actions := Plan([]core.RecurrenceRule{r}, today); len(actions) != 0 {
			t.Errorf("Plan() produced %d actions for inactive rule, want 0", len(actions))
		}
	})

	t.Run("day 31 clamps to the last day of the month", func(t *testing.T) {
		feb := time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)
		actions := Plan([]core.RecurrenceRule{monthlyRule("r1", 31, time.Time{})}, feb)
		if len(actions) != 1 {
			t.Fatalf("Plan() produced %d actions, want 1", len(actions))
		}
		if got := actions[0].Transaction.Timestamp.Day(); got != 28 {
			t.Errorf("transaction day = %d, want 28", got)
		}
	})
}

func TestMaterializerRun(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	t.Run("fires once then not again in the same month", func(t *testing.T) {
		rules := &fakeRuleStore{rules: []core.RecurrenceRule{monthlyRule("r1", 10, time.Time{})}}
		writer := &fakeWriter{}
		m := NewMaterializer(rules, writer)

		created, err := m.Run(ctx, NewSession(), "user-1", today)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if created != 1 || len(writer.created) != 1 {
			t.Fatalf("Run() created = %d, want 1", created)
		}
		if _, ok := rules.fulfilled["r1"]; !ok {
			t.Fatal("rule was not stamped")
		}

		// Fresh session, same month: LastFulfilled now blocks the rule.
		created, err = m.Run(ctx, NewSession(), "user-1", today.AddDate(0, 0, 3))
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if created != 0 {
			t.Errorf("second Run() created = %d, want 0", created)
		}
	})

	t.Run("fires again after the month rolls over", func(t *testing.T) {
		lastMonth := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)
		rules := &fakeRuleStore{rules: []core.RecurrenceRule{monthlyRule("r1", 10, lastMonth)}}
		writer := &fakeWriter{}
		m := NewMaterializer(rules, writer)

		created, err := m.Run(ctx, NewSession(), "user-1", today)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if created != 1 {
			t.Errorf("Run() created = %d, want 1", created)
		}
	})

	t.Run("session guard blocks a second attempt", func(t *testing.T) {
		rules := &fakeRuleStore{rules: []core.RecurrenceRule{monthlyRule("r1", 10, time.Time{})}}
		writer := &fakeWriter{}
		m := NewMaterializer(rules, writer)
		sess := NewSession()

		if _, err := m.Run(ctx, sess, "user-1", today); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		// Undo the stamp so only the guard can stop the second run.
		rules.mu.Lock()
		rules.rules[0].LastFulfilled = time.Time{}
		rules.mu.Unlock()

		created, err := m.Run(ctx, sess, "user-1", today)
		if err != nil {
			t.Fatalf("guarded Run() error = %v", err)
		}
		if created != 0 {
			t.Errorf("guarded Run() created = %d, want 0", created)
		}
		if !sess.Attempted() {
			t.Error("session should be marked attempted")
		}
	})

	t.Run("stamp failure is reported but transaction stays", func(t *testing.T) {
		rules := &fakeRuleStore{
			rules:   []core.RecurrenceRule{monthlyRule("r1", 10, time.Time{})},
			markErr: errors.New("store unreachable"),
		}
		writer := &fakeWriter{}
		m := NewMaterializer(rules, writer)

		created, err := m.Run(ctx, NewSession(), "user-1", today)
		if err == nil {
			t.Fatal("Run() should surface the stamp failure")
		}
		if created != 1 || len(writer.created) != 1 {
			t.Errorf("transaction should have been created despite stamp failure, created = %d", created)
		}
	})
}
