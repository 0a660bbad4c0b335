package http

import (
	"net/http"
	"time"

	"grana/internal/auth"
	"grana/internal/log"
	"grana/internal/services"
)

type sessionResponse struct {
	OwnerID string `json:"ownerId"`
	Created int    `json:"created"`
}

// handleSessionBootstrap runs the materialization pass that a dashboard
// client triggers once when it loads: due recurrence rules become concrete
// transactions before the first snapshot is read. Each call is its own
// session, so retrying after a partial failure is allowed; the per-rule
// fulfilment stamps keep retries from duplicating what already succeeded.
func (s *Server) handleSessionBootstrap(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerID(r.Context())
	logger := log.FromContext(r.Context())

	created, err := s.materializer.Run(r.Context(), services.NewSession(), ownerID, time.Now())
	if err != nil {
		// Part of the batch may have succeeded; report what was created and
		// let the client retry the remainder on its next bootstrap.
		logger.ErrorContext(r.Context(), "materialization batch failed",
			log.FieldError, err.Error(),
			log.FieldOwnerID, ownerID,
			log.FieldCreated, created)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "materialization incomplete"})
		return
	}

	if created > 0 {
		s.invalidateOwner(ownerID)
	}
	s.slog.LogSessionMaterialized(r.Context(), ownerID, created)
	writeJSON(w, http.StatusOK, sessionResponse{OwnerID: ownerID, Created: created})
}
