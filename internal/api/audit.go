package api

import (
	"net/http"
	"strconv"

	"github.com/washlogic/washlogic-core/internal/audit"
)

// recordAudit logs an operator action. Recording is best-effort: the
// mutation it describes has already committed, so a logging failure is
// reported but never surfaced to the client.
func (s *Server) recordAudit(r *http.Request, action, entityType, entityID string, details map[string]any) {
	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Operator:   r.Header.Get("X-Operator"),
		Source:     "api",
		Details:    details,
	}
	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Warn("audit record failed", "action", action, "entity_id", entityID, "error", err)
	}
}

// handleListAudit returns the operator action log, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			filter.Offset = offset
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit list failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
