package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/washlogic/washlogic-core/internal/event"
)

// defaultListLimit caps list responses when the client does not ask for
// a specific page size.
const defaultListLimit = 100

// ingestEventRequest is the request body for POST /api/v1/events.
//
// DeviceTS is optional; events reported without a device clock are
// stamped with the server arrival time, matching the MQTT envelope
// behaviour.
type ingestEventRequest struct {
	DeviceID string          `json:"device_id"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	DeviceTS *time.Time      `json:"device_ts,omitempty"`
}

// handleIngestEvent accepts a device report over HTTP.
//
// This is the fallback ingest path for vendor callbacks and backfill
// tooling; live devices normally arrive over MQTT. Both paths converge
// on the same idempotent store, so a report delivered on both is still
// recorded once.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "device_id is required")
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "kind is required")
		return
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	deviceTS := time.Now().UTC()
	if req.DeviceTS != nil {
		deviceTS = *req.DeviceTS
	}

	id, err := s.coordinator.Ingest(r.Context(), req.DeviceID, req.Kind, payload, deviceTS)
	if err != nil {
		if errors.Is(err, event.ErrInvalidKind) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown event kind: "+req.Kind)
			return
		}
		s.logger.Error("event ingest failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "failed to record event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": id})
}

// handleGetEvent returns a single event row, including its parsed fact,
// correlated order and failure reason where present.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ev, err := s.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			writeNotFound(w, "event not found")
			return
		}
		s.logger.Error("event lookup failed", "event_id", id, "error", err)
		writeInternalError(w, "failed to load event")
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// handleListEvents lists events for a device, or the pending queue when
// no device is given.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := listLimit(r)

	var (
		events []event.DeviceEvent
		err    error
	)
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		events, err = s.events.ListByDevice(r.Context(), deviceID, limit)
	} else {
		events, err = s.events.ListPending(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("event list failed", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// listLimit parses the ?limit= query parameter, falling back to the
// default page size for missing or unusable values.
func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}
