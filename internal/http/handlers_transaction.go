package http

import (
	"net/http"
	"time"

	"grana/internal/auth"
	"grana/internal/core"
	"grana/internal/log"
	"grana/internal/services"
)

type transactionRequest struct {
	Description string    `json:"description"`
	Amount      string    `json:"amount,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

// toDomain builds the validated domain value. Amount may arrive as a decimal
// string (the form field) or as cents; the string wins when both are set.
func (req transactionRequest) toDomain(ownerID string) (core.Transaction, error) {
	cents := req.AmountCents
	if req.Amount != "" {
		var err error
		cents, err = core.ParseDecimalToCents(req.Amount)
		if err != nil {
			return core.Transaction{}, err
		}
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	t := core.Transaction{
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Kind:        core.Kind(req.Kind),
		Category:    sanitizeInput(req.Category),
		Timestamp:   ts,
		OwnerID:     ownerID,
	}
	return t, t.Validate()
}

type transactionResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amountCents"`
	Amount      string    `json:"amount"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Amount:      core.FormatBRL(t.Amount.Cents),
		Kind:        string(t.Kind),
		Category:    t.Category,
		Timestamp:   t.Timestamp,
	}
}

// criteriaFromQuery builds filter criteria from the list query parameters:
// from/to (dates), month (YYYY-MM shortcut for both), category, kind, q.
func criteriaFromQuery(r *http.Request) (services.Criteria, error) {
	q := r.URL.Query()
	var c services.Criteria

	if month := q.Get("month"); month != "" {
		ym, err := core.ParseYearMonth(month)
		if err != nil {
			return c, err
		}
		c.Start = time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
		c.End = time.Date(ym.Year, ym.Month, ym.LastDay(), 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		if c.Start, err = parseDate(q.Get("from")); err != nil {
			return c, err
		}
		if c.End, err = parseDate(q.Get("to")); err != nil {
			return c, err
		}
	}

	c.Category = q.Get("category")
	c.Kind = core.Kind(q.Get("kind"))
	if c.Kind != "" {
		if err := c.Kind.Validate(); err != nil {
			return c, err
		}
	}
	c.Search = q.Get("q")
	return c, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to list transactions",
			log.FieldError, err.Error(), log.FieldOwnerID, ownerID)
		writeError(w, err)
		return
	}

	filtered := services.Filter(ts, criteria)
	out := make([]transactionResponse, 0, len(filtered))
	for _, t := range filtered {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	t, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.store.CreateTransaction(r.Context(), t)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to create transaction",
			log.FieldError, err.Error(), log.FieldOwnerID, ownerID)
		writeError(w, err)
		return
	}

	t.ID = id
	s.invalidateOwner(ownerID)
	writeJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	t, err := req.toDomain(ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	t.ID = r.PathValue("id")

	if err := s.store.UpdateTransaction(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}

	s.invalidateOwner(ownerID)
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())

	if err := s.store.DeleteTransaction(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	s.invalidateOwner(ownerID)
	w.WriteHeader(http.StatusNoContent)
}
