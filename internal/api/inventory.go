package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/washlogic/washlogic-core/internal/inventory"
)

// handleListInventory lists inventory items, optionally scoped to one store.
func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	var (
		items []inventory.Item
		err   error
	)
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		items, err = s.inventory.ListByStore(r.Context(), storeID)
	} else {
		items, err = s.inventory.List(r.Context())
	}
	if err != nil {
		s.logger.Error("inventory list failed", "error", err)
		writeInternalError(w, "failed to list inventory")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// handleGetInventoryItem returns a single inventory item.
func (s *Server) handleGetInventoryItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := s.inventory.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, inventory.ErrItemNotFound) {
			writeNotFound(w, "inventory item not found")
			return
		}
		s.logger.Error("inventory lookup failed", "item_id", id, "error", err)
		writeInternalError(w, "failed to load inventory item")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleListLedger returns the mutation history of one inventory item,
// newest first.
func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.inventory.ListLedger(r.Context(), id, listLimit(r))
	if err != nil {
		s.logger.Error("ledger list failed", "item_id", id, "error", err)
		writeInternalError(w, "failed to list ledger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// adjustInventoryRequest is the request body for POST /api/v1/inventory/{id}/adjust.
type adjustInventoryRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// handleAdjustInventory applies a manual stock adjustment (restock,
// stocktake correction, spillage write-off).
//
// The adjustment goes through the same ledger as wash consumption, so
// it is clamped to [0, max_capacity] and recorded with its reason. The
// response carries the item after the change; when clamping trimmed the
// requested delta, the applied delta is visible on the ledger entry.
func (s *Server) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req adjustInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "delta must be non-zero")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "reason is required")
		return
	}

	res, err := s.ledger.Adjust(r.Context(), id, req.Delta, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrItemNotFound):
			writeNotFound(w, "inventory item not found")
		case errors.Is(err, inventory.ErrConcurrencyConflict):
			writeConflict(w, "item was modified concurrently, retry")
		default:
			s.logger.Error("inventory adjust failed", "item_id", id, "error", err)
			writeInternalError(w, "failed to adjust inventory")
		}
		return
	}

	// A restock can resolve a low-stock alert; a write-off can raise one.
	if err := s.evaluator.InventoryChanged(r.Context(), res); err != nil {
		s.logger.Warn("alert evaluation after adjust failed", "item_id", id, "error", err)
	}

	s.recordAudit(r, "inventory.adjust", "inventory_item", id, map[string]any{
		"delta":  res.Entry.Delta,
		"reason": req.Reason,
		"stock":  res.Item.CurrentStock,
		"status": string(res.Item.Status),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"item":  res.Item,
		"entry": res.Entry,
	})
}
