package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/washlogic/washlogic-core/internal/alert"
)

// handleListAlerts lists alerts. Without a status filter it returns the
// open set (active and acknowledged); ?status= narrows to one status.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := listLimit(r)

	var (
		alerts []alert.Alert
		err    error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "":
		alerts, err = s.alerts.ListOpen(r.Context(), limit)
	case string(alert.StatusActive), string(alert.StatusAcknowledged), string(alert.StatusResolved):
		alerts, err = s.alerts.ListByStatus(r.Context(), alert.Status(status), limit)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown alert status: "+status)
		return
	}
	if err != nil {
		s.logger.Error("alert list failed", "error", err)
		writeInternalError(w, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// acknowledgeAlertRequest is the request body for alert acknowledgement.
type acknowledgeAlertRequest struct {
	Remark string `json:"remark"`
}

// handleAcknowledgeAlert marks an active alert as seen by an operator.
//
// An acknowledged alert stays open: the underlying condition is still
// present and re-evaluation will not raise a duplicate. Only active
// alerts can be acknowledged.
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req acknowledgeAlertRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	err := s.alerts.Acknowledge(r.Context(), id, req.Remark)
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrAlertNotFound):
			writeNotFound(w, "alert not found")
		case errors.Is(err, alert.ErrInvalidAlertState):
			writeConflict(w, "only active alerts can be acknowledged")
		default:
			s.logger.Error("alert acknowledge failed", "alert_id", id, "error", err)
			writeInternalError(w, "failed to acknowledge alert")
		}
		return
	}

	s.recordAudit(r, "alert.acknowledge", "alert", id, map[string]any{
		"remark": req.Remark,
	})

	s.respondWithAlert(w, r, id)
}

// handleResolveAlert closes an alert manually.
//
// Most alerts resolve themselves when the condition clears; this is the
// operator override for conditions the pipeline cannot observe (e.g. a
// device retired while offline).
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.alerts.ResolveByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrAlertNotFound):
			writeNotFound(w, "alert not found")
		case errors.Is(err, alert.ErrInvalidAlertState):
			writeConflict(w, "alert is already resolved")
		default:
			s.logger.Error("alert resolve failed", "alert_id", id, "error", err)
			writeInternalError(w, "failed to resolve alert")
		}
		return
	}

	s.recordAudit(r, "alert.resolve", "alert", id, nil)

	s.respondWithAlert(w, r, id)
}

// respondWithAlert writes the current state of an alert after a mutation.
func (s *Server) respondWithAlert(w http.ResponseWriter, r *http.Request, id string) {
	a, err := s.alerts.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("alert reload failed", "alert_id", id, "error", err)
		writeInternalError(w, "failed to load alert")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
