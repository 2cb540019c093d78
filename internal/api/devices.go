package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/washlogic/washlogic-core/internal/device"
)

// handleListDevices lists registered devices, optionally scoped to one store.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []device.Device
		err     error
	)
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		devices, err = s.devices.ListByStore(r.Context(), storeID)
	} else {
		devices, err = s.devices.List(r.Context())
	}
	if err != nil {
		s.logger.Error("device list failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// createDeviceRequest is the request body for device registration.
type createDeviceRequest struct {
	ID      string  `json:"id"`
	StoreID string  `json:"store_id"`
	Name    string  `json:"name"`
	Model   *string `json:"model,omitempty"`
}

// handleCreateDevice registers a wash unit.
//
// New devices start offline; the first heartbeat flips them online.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ID == "" || req.StoreID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "id and store_id are required")
		return
	}

	d := &device.Device{
		ID:      req.ID,
		StoreID: req.StoreID,
		Name:    req.Name,
		Model:   req.Model,
	}
	if err := s.devices.Create(r.Context(), d); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device already registered: "+req.ID)
			return
		}
		s.logger.Error("device create failed", "device_id", req.ID, "error", err)
		writeInternalError(w, "failed to register device")
		return
	}

	s.recordAudit(r, "device.create", "device", d.ID, map[string]any{
		"store_id": d.StoreID,
		"name":     d.Name,
	})

	writeJSON(w, http.StatusCreated, d)
}

// handleGetDevice returns a single device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device lookup failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// setDeviceStatusRequest is the request body for a manual status change.
type setDeviceStatusRequest struct {
	Status string `json:"status"`
}

// handleSetDeviceStatus moves a device in or out of maintenance.
//
// Maintenance is sticky: heartbeats from a device in maintenance do not
// flip it back online, and the liveness sweep skips it. Taking a device
// out of maintenance sets it offline until the next heartbeat.
func (s *Server) handleSetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setDeviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	status := device.Status(req.Status)
	switch status {
	case device.StatusOnline, device.StatusOffline, device.StatusMaintenance:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown device status: "+req.Status)
		return
	}

	if err := s.devices.SetStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("device status change failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to update device status")
		return
	}

	s.recordAudit(r, "device.set_status", "device", id, map[string]any{
		"status": req.Status,
	})

	d, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("device reload failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
