package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"grana/internal/core"
	"grana/internal/store"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "grana.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	older := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

	id, err := repo.CreateTransaction(ctx, core.Transaction{
		Description: "Mercado",
		Amount:      core.Money{Cents: 5000},
		Kind:        core.Expense,
		Category:    "Alimentação",
		Timestamp:   older,
		OwnerID:     "u1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		Description: "Salário",
		Amount:      core.Money{Cents: 300000},
		Kind:        core.Income,
		Category:    "Salário",
		Timestamp:   newer,
		OwnerID:     "u1",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		Description: "Outro dono",
		Amount:      core.Money{Cents: 100},
		Kind:        core.Expense,
		Timestamp:   newer,
		OwnerID:     "u2",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := repo.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Transactions returned %d records, want 2 (owner isolation)", len(got))
	}
	if !got[0].Timestamp.Equal(newer) || !got[1].Timestamp.Equal(older) {
		t.Error("transactions must be ordered newest first")
	}
	if got[1].Description != "Mercado" || got[1].Amount.Cents != 5000 {
		t.Errorf("scan mismatch: %+v", got[1])
	}

	updated := got[1]
	updated.Description = "Mercado da esquina"
	if err := repo.UpdateTransaction(ctx, updated); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	if err := repo.DeleteTransaction(ctx, "u2", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-owner delete = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteTransaction(ctx, "u1", id); err != nil {
		t.Errorf("DeleteTransaction: %v", err)
	}

	if _, err := repo.CreateTransaction(ctx, core.Transaction{OwnerID: "u1"}); err == nil {
		t.Error("invalid transaction must be rejected before any write")
	}
}

func TestRuleStampSurvivesEdits(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, err := repo.CreateRule(ctx, core.RecurrenceRule{
		Description: "Aluguel",
		Amount:      core.Money{Cents: 150000},
		Kind:        core.Expense,
		Category:    "Moradia",
		DayOfMonth:  5,
		Frequency:   core.Monthly,
		Active:      true,
		OwnerID:     "u1",
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	at := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	if err := repo.MarkFulfilled(ctx, "u1", id, at); err != nil {
		t.Fatalf("MarkFulfilled: %v", err)
	}

	rules, err := repo.Rules(ctx, "u1")
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules) != 1 || !rules[0].LastFulfilled.Equal(at) {
		t.Fatal("MarkFulfilled did not persist the stamp")
	}

	edit := rules[0]
	edit.Description = "Aluguel novo"
	edit.LastFulfilled = time.Time{}
	if err := repo.UpdateRule(ctx, edit); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	rules, _ = repo.Rules(ctx, "u1")
	if !rules[0].LastFulfilled.Equal(at) {
		t.Error("UpdateRule overwrote last_fulfilled; only MarkFulfilled may write it")
	}

	edit = rules[0]
	edit.Active = false
	if err := repo.UpdateRule(ctx, edit); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	active, err := repo.ActiveRules(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	if len(active) != 0 {
		t.Error("ActiveRules must exclude inactive rules")
	}
}

func TestGoalVariantsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	deadline := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	savingsID, err := repo.CreateGoal(ctx, core.Goal{
		Name:    "Viagem",
		Kind:    core.GoalSavings,
		Target:  core.Money{Cents: 100000},
		OwnerID: "u1",
		Savings: &core.SavingsGoal{Deadline: deadline},
	})
	if err != nil {
		t.Fatalf("CreateGoal savings: %v", err)
	}
	if _, err := repo.CreateGoal(ctx, core.Goal{
		Name:          "Limite mercado",
		Kind:          core.GoalSpendingLimit,
		Target:        core.Money{Cents: 50000},
		OwnerID:       "u1",
		SpendingLimit: &core.SpendingLimitGoal{Category: "Alimentação", Month: core.YearMonth{Year: 2025, Month: 3}},
	}); err != nil {
		t.Fatalf("CreateGoal spending limit: %v", err)
	}
	if _, err := repo.CreateGoal(ctx, core.Goal{
		Name:           "Fechar no azul",
		Kind:           core.GoalMonthlyBalance,
		Target:         core.Money{Cents: 1},
		OwnerID:        "u1",
		MonthlyBalance: &core.MonthlyBalanceGoal{Month: core.YearMonth{Year: 2025, Month: 3}},
	}); err != nil {
		t.Fatalf("CreateGoal monthly balance: %v", err)
	}

	goals, err := repo.Goals(ctx, "u1")
	if err != nil {
		t.Fatalf("Goals: %v", err)
	}
	if len(goals) != 3 {
		t.Fatalf("Goals returned %d, want 3", len(goals))
	}

	byKind := map[core.GoalKind]core.Goal{}
	for _, g := range goals {
		byKind[g.Kind] = g
	}
	sv := byKind[core.GoalSavings]
	if sv.Savings == nil || !sv.Savings.Deadline.Equal(deadline) {
		t.Error("savings variant did not round-trip")
	}
	sl := byKind[core.GoalSpendingLimit]
	if sl.SpendingLimit == nil || sl.SpendingLimit.Category != "Alimentação" ||
		sl.SpendingLimit.Month != (core.YearMonth{Year: 2025, Month: 3}) {
		t.Error("spending limit variant did not round-trip")
	}
	mb := byKind[core.GoalMonthlyBalance]
	if mb.MonthlyBalance == nil || mb.MonthlyBalance.Month != (core.YearMonth{Year: 2025, Month: 3}) {
		t.Error("monthly balance variant did not round-trip")
	}

	if err := repo.IncrementGoalValue(ctx, "u1", savingsID, core.Money{Cents: 2500}); err != nil {
		t.Fatalf("IncrementGoalValue: %v", err)
	}
	if err := repo.IncrementGoalValue(ctx, "u1", savingsID, core.Money{Cents: 1500}); err != nil {
		t.Fatalf("IncrementGoalValue: %v", err)
	}
	goals, _ = repo.Goals(ctx, "u1")
	for _, g := range goals {
		if g.ID == savingsID && g.Savings.Accumulated.Cents != 4000 {
			t.Errorf("accumulated = %d, want 4000", g.Savings.Accumulated.Cents)
		}
	}

	if err := repo.IncrementGoalValue(ctx, "u1", sl.ID, core.Money{Cents: 100}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("increment on non-savings goal = %v, want ErrNotFound", err)
	}
	if err := repo.IncrementGoalValue(ctx, "u1", savingsID, core.Money{Cents: 0}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("non-positive delta = %v, want ErrInvalidAmount", err)
	}

	// An edit must not clobber the accumulated value.
	sv = byKind[core.GoalSavings]
	sv.Name = "Viagem longa"
	sv.Savings = &core.SavingsGoal{Deadline: deadline}
	if err := repo.UpdateGoal(ctx, sv); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}
	goals, _ = repo.Goals(ctx, "u1")
	for _, g := range goals {
		if g.ID == savingsID && g.Savings.Accumulated.Cents != 4000 {
			t.Error("UpdateGoal overwrote the accumulated value")
		}
	}

	if err := repo.DeleteGoal(ctx, "u2", savingsID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-owner delete = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteGoal(ctx, "u1", savingsID); err != nil {
		t.Errorf("DeleteGoal: %v", err)
	}
}

func TestWatchDeliversOnWrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	var snapshots [][]core.Transaction
	sub, err := repo.WatchTransactions(ctx, "u1", func(ts []core.Transaction) {
		snapshots = append(snapshots, ts)
	})
	if err != nil {
		t.Fatalf("WatchTransactions: %v", err)
	}
	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected one empty initial snapshot, got %d", len(snapshots))
	}

	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		Description: "Café",
		Amount:      core.Money{Cents: 800},
		Kind:        core.Expense,
		Timestamp:   time.Now(),
		OwnerID:     "u1",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 1 {
		t.Fatalf("expected snapshot after create, got %d snapshots", len(snapshots))
	}

	sub.Cancel()
	if _, err := repo.CreateTransaction(ctx, core.Transaction{
		Description: "Café",
		Amount:      core.Money{Cents: 800},
		Kind:        core.Expense,
		Timestamp:   time.Now(),
		OwnerID:     "u1",
	}); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if len(snapshots) != 2 {
		t.Error("cancelled subscription still received a snapshot")
	}
}
