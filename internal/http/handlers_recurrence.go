package http

import (
	"net/http"
	"time"

	"grana/internal/auth"
	"grana/internal/core"
	"grana/internal/log"
)

type ruleRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount,omitempty"`
	AmountCents int64  `json:"amountCents,omitempty"`
	Kind        string `json:"kind"`
	Category    string `json:"category"`
	DayOfMonth  int    `json:"dayOfMonth"`
	Active      *bool  `json:"active,omitempty"`
}

func (req ruleRequest) toDomain(ownerID string) (core.RecurrenceRule, error) {
	cents := req.AmountCents
	if req.Amount != "" {
		var err error
		cents, err = core.ParseDecimalToCents(req.Amount)
		if err != nil {
			return core.RecurrenceRule{}, err
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule := core.RecurrenceRule{
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Kind:        core.Kind(req.Kind),
		Category:    sanitizeInput(req.Category),
		DayOfMonth:  req.DayOfMonth,
		Frequency:   core.Monthly,
		Active:      active,
		OwnerID:     ownerID,
	}
	return rule, rule.Validate()
}

type ruleResponse struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	AmountCents   int64      `json:"amountCents"`
	Amount        string     `json:"amount"`
	Kind          string     `json:"kind"`
	Category      string     `json:"category"`
	DayOfMonth    int        `json:"dayOfMonth"`
	Frequency     string     `json:"frequency"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastFulfilled *time.Time `json:"lastFulfilled,omitempty"`
}

func toRuleResponse(r core.RecurrenceRule) ruleResponse {
	resp := ruleResponse{
		ID:          r.ID,
		Description: r.Description,
		AmountCents: r.Amount.Cents,
		Amount:      core.FormatBRL(r.Amount.Cents),
		Kind:        string(r.Kind),
		Category:    r.Category,
		DayOfMonth:  r.DayOfMonth,
		Frequency:   string(r.Frequency),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
	if !r.LastFulfilled.IsZero() {
		lf := r.LastFulfilled
		resp.LastFulfilled = &lf
	}
	return resp
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	rules, err := s.store.Rules(r.Context(), ownerID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to list recurrence rules",
			log.FieldError, err.Error(), log.FieldOwnerID, ownerID)
		writeError(w, err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rule, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.store.CreateRule(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}

	rule.ID = id
	rule.CreatedAt = time.Now()
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req ruleRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	rule, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	rule.ID = r.PathValue("id")

	if err := s.store.UpdateRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	if err := s.store.DeleteRule(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
