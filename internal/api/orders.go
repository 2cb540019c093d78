package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/washlogic/washlogic-core/internal/order"
)

// handleListOrders lists recent orders, optionally scoped to one device.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit := listLimit(r)

	var (
		orders []order.Order
		err    error
	)
	if deviceID := r.URL.Query().Get("device_id"); deviceID != "" {
		orders, err = s.orders.ListByDevice(r.Context(), deviceID, limit)
	} else {
		orders, err = s.orders.List(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("order list failed", "error", err)
		writeInternalError(w, "failed to list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}

// handleGetOrder returns a single order by its order number.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderNo := chi.URLParam(r, "orderNo")

	o, err := s.orders.GetByOrderNo(r.Context(), orderNo)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			writeNotFound(w, "order not found")
			return
		}
		s.logger.Error("order lookup failed", "order_no", orderNo, "error", err)
		writeInternalError(w, "failed to load order")
		return
	}

	writeJSON(w, http.StatusOK, o)
}
