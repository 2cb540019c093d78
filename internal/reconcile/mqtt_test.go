package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/washlogic/washlogic-core/internal/event"
)

func TestEventHandler_IngestsFromTopic(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	handler := h.coordinator.EventHandler()

	payload := []byte(`{"device_ts":"2026-09-01T10:00:00Z","payload":{"signal_dbm":-70}}`)
	if err := handler("washlogic/event/dev-01/heartbeat", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	pending, err := h.events.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	ev := pending[0]
	if ev.DeviceID != "dev-01" || ev.Kind != event.KindHeartbeat {
		t.Errorf("event = %+v", ev)
	}
	want := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !ev.DeviceTS.Equal(want) {
		t.Errorf("DeviceTS = %v, want %v", ev.DeviceTS, want)
	}

	// Retransmission dedupes against the stored row.
	if err := handler("washlogic/event/dev-01/heartbeat", payload); err != nil {
		t.Fatalf("duplicate handler error = %v", err)
	}
	pending, err = h.events.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("len(pending) = %d after retransmission, want 1", len(pending))
	}
}

func TestEventHandler_RejectsBadInput(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	handler := h.coordinator.EventHandler()

	if err := handler("washlogic/core/alert/low_inventory", []byte(`{}`)); err == nil {
		t.Error("non-event topic should fail")
	}
	if err := handler("washlogic/event/dev-01/reboot", []byte(`{}`)); err == nil {
		t.Error("unknown kind should fail")
	}
	if err := handler("washlogic/event/dev-01/heartbeat", []byte(`not json`)); err == nil {
		t.Error("malformed envelope should fail")
	}
}
