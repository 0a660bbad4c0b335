package http

import (
	"net/http"
	"sort"

	"grana/internal/auth"
	"grana/internal/core"
	"grana/internal/log"
	"grana/internal/services"
)

type summaryResponse struct {
	IncomeCents  int64  `json:"incomeCents"`
	Income       string `json:"income"`
	ExpenseCents int64  `json:"expenseCents"`
	Expense      string `json:"expense"`
	BalanceCents int64  `json:"balanceCents"`
	Balance      string `json:"balance"`
}

func toSummaryResponse(s services.Summary) summaryResponse {
	return summaryResponse{
		IncomeCents:  s.Income.Cents,
		Income:       core.FormatBRL(s.Income.Cents),
		ExpenseCents: s.Expense.Cents,
		Expense:      core.FormatBRL(s.Expense.Cents),
		BalanceCents: s.Balance.Cents,
		Balance:      core.FormatBRL(s.Balance.Cents),
	}
}

type categoryTotalResponse struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amountCents"`
	Amount      string `json:"amount"`
}

// cacheKey namespaces derived-state entries by owner so one owner's change
// events invalidate only their slice of the cache.
func cacheKey(ownerID string, r *http.Request) string {
	return ownerID + ":" + r.URL.RawQuery
}

// filteredTransactions loads the owner's snapshot and applies the request's
// filter criteria.
func (s *Server) filteredTransactions(r *http.Request, ownerID string) ([]core.Transaction, error) {
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		return nil, err
	}
	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		return nil, err
	}
	return services.Filter(ts, criteria), nil
}

// handleSummary returns income, expense and balance totals for the filtered
// set. Same query parameters as the transaction list.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	key := cacheKey(ownerID, r)

	if cached, ok := s.summaryCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	filtered, err := s.filteredTransactions(r, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toSummaryResponse(services.Summarize(filtered))
	s.summaryCache.Set(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleSummaryByCategory returns expense totals per category, largest first.
func (s *Server) handleSummaryByCategory(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	key := cacheKey(ownerID, r)

	if cached, ok := s.byCatCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	filtered, err := s.filteredTransactions(r, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	totals := services.ByCategory(filtered)
	out := make([]categoryTotalResponse, 0, len(totals))
	for cat, amount := range totals {
		out = append(out, categoryTotalResponse{
			Category:    cat,
			AmountCents: amount.Cents,
			Amount:      core.FormatBRL(amount.Cents),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AmountCents != out[j].AmountCents {
			return out[i].AmountCents > out[j].AmountCents
		}
		return out[i].Category < out[j].Category
	})

	s.byCatCache.Set(key, out)
	writeJSON(w, http.StatusOK, out)
}

type filterOptionsResponse struct {
	Months     []string `json:"months"`
	Categories []string `json:"categories"`
}

// handleFilterOptions returns the months and categories present in the
// owner's data, for populating the filter dropdowns.
func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	key := cacheKey(ownerID, r)

	if cached, ok := s.optionsCache.Get(key); ok {
		writeJSON(w, http.StatusOK, filterOptionsResponse(cached))
		return
	}

	ts, err := s.store.Transactions(r.Context(), ownerID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to derive filter options",
			log.FieldError, err.Error(), log.FieldOwnerID, ownerID)
		writeError(w, err)
		return
	}

	opts := services.Options(ts)
	s.optionsCache.Set(key, opts)
	writeJSON(w, http.StatusOK, filterOptionsResponse(opts))
}

// handleSuggestedCategories returns the advisory category suggestion set.
func (s *Server) handleSuggestedCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.SuggestedCategories)
}
