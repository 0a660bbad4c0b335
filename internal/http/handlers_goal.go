package http

import (
	"context"
	"net/http"
	"time"

	"grana/internal/auth"
	"grana/internal/core"
	"grana/internal/log"
	"grana/internal/services"
	"grana/internal/store"
)

type goalRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Target      string `json:"target,omitempty"`
	TargetCents int64  `json:"targetCents,omitempty"`

	// SAVINGS
	Deadline *time.Time `json:"deadline,omitempty"`

	// SPENDING_LIMIT
	Category string `json:"category,omitempty"`

	// SPENDING_LIMIT and MONTHLY_BALANCE
	Month string `json:"month,omitempty"`
}

func (req goalRequest) toDomain(ownerID string) (core.Goal, error) {
	cents := req.TargetCents
	if req.Target != "" {
		var err error
		cents, err = core.ParseDecimalToCents(req.Target)
		if err != nil {
			return core.Goal{}, err
		}
	}

	g := core.Goal{
		Name:    sanitizeInput(req.Name),
		Kind:    core.GoalKind(req.Kind),
		Target:  core.Money{Cents: cents},
		OwnerID: ownerID,
	}

	switch g.Kind {
	case core.GoalSavings:
		sv := &core.SavingsGoal{}
		if req.Deadline != nil {
			sv.Deadline = *req.Deadline
		}
		g.Savings = sv
	case core.GoalSpendingLimit:
		month, err := core.ParseYearMonth(req.Month)
		if err != nil {
			return core.Goal{}, err
		}
		g.SpendingLimit = &core.SpendingLimitGoal{
			Category: sanitizeInput(req.Category),
			Month:    month,
		}
	case core.GoalMonthlyBalance:
		month, err := core.ParseYearMonth(req.Month)
		if err != nil {
			return core.Goal{}, err
		}
		g.MonthlyBalance = &core.MonthlyBalanceGoal{Month: month}
	}

	return g, g.Validate()
}

type progressResponse struct {
	CurrentCents int64   `json:"currentCents"`
	Current      string  `json:"current"`
	Pct          float64 `json:"pct"`
	BarWidth     float64 `json:"barWidth"`
	Status       string  `json:"status"`
}

type goalResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	TargetCents int64     `json:"targetCents"`
	Target      string    `json:"target"`
	CreatedAt   time.Time `json:"createdAt"`

	AccumulatedCents *int64     `json:"accumulatedCents,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	Category         string     `json:"category,omitempty"`
	Month            string     `json:"month,omitempty"`

	Progress progressResponse `json:"progress"`
}

func toGoalResponse(g core.Goal, p services.Progress) goalResponse {
	resp := goalResponse{
		ID:          g.ID,
		Name:        g.Name,
		Kind:        string(g.Kind),
		TargetCents: g.Target.Cents,
		Target:      core.FormatBRL(g.Target.Cents),
		CreatedAt:   g.CreatedAt,
		Progress: progressResponse{
			CurrentCents: p.Current.Cents,
			Current:      core.FormatBRL(p.Current.Cents),
			Pct:          p.Pct,
			BarWidth:     p.BarWidth(),
			Status:       string(p.Status),
		},
	}

	switch g.Kind {
	case core.GoalSavings:
		if g.Savings != nil {
			acc := g.Savings.Accumulated.Cents
			resp.AccumulatedCents = &acc
			if !g.Savings.Deadline.IsZero() {
				d := g.Savings.Deadline
				resp.Deadline = &d
			}
		}
	case core.GoalSpendingLimit:
		if g.SpendingLimit != nil {
			resp.Category = g.SpendingLimit.Category
			resp.Month = g.SpendingLimit.Month.String()
		}
	case core.GoalMonthlyBalance:
		if g.MonthlyBalance != nil {
			resp.Month = g.MonthlyBalance.Month.String()
		}
	}
	return resp
}

// handleListGoals returns every goal with its progress evaluated against the
// owner's current transaction snapshot.
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	goals, err := s.store.Goals(r.Context(), ownerID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to list goals",
			log.FieldError, err.Error(), log.FieldOwnerID, ownerID)
		writeError(w, err)
		return
	}

	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	progress := services.EvaluateAll(goals, ts, now)
	out := make([]goalResponse, 0, len(goals))
	for i, g := range goals {
		out = append(out, toGoalResponse(g, progress[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	g, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	g.CreatedAt = now

	id, err := s.store.CreateGoal(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	g.ID = id

	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalResponse(g, services.Evaluate(g, ts, now)))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req goalRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	g, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	g.ID = r.PathValue("id")

	if err := s.store.UpdateGoal(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}

	// Read back: the store preserves the accumulated value and creation time,
	// so the request payload alone cannot describe the stored goal.
	stored, err := s.readGoal(r.Context(), ownerID, g.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalResponse(stored, services.Evaluate(stored, ts, time.Now())))
}

func (s *Server) readGoal(ctx context.Context, ownerID, id string) (core.Goal, error) {
	goals, err := s.store.Goals(ctx, ownerID)
	if err != nil {
		return core.Goal{}, err
	}
	for _, g := range goals {
		if g.ID == id {
			return g, nil
		}
	}
	return core.Goal{}, store.ErrNotFound
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	if err := s.store.DeleteGoal(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type incrementRequest struct {
	Amount      string `json:"amount,omitempty"`
	AmountCents int64  `json:"amountCents,omitempty"`
}

// handleIncrementGoal adds to a savings goal's accumulated value. The write
// is atomic at the store so concurrent sessions never lose increments.
func (s *Server) handleIncrementGoal(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req incrementRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	cents := req.AmountCents
	if req.Amount != "" {
		var err error
		cents, err = core.ParseDecimalToCents(req.Amount)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	id := r.PathValue("id")
	if err := s.store.IncrementGoalValue(r.Context(), ownerID, id, core.Money{Cents: cents}); err != nil {
		writeError(w, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "goal value incremented",
		log.FieldOwnerID, ownerID,
		log.FieldGoalID, id,
		log.FieldAmountCents, cents)
	w.WriteHeader(http.StatusNoContent)
}
