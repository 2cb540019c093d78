package reconcile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/washlogic/washlogic-core/internal/alert"
	"github.com/washlogic/washlogic-core/internal/device"
	"github.com/washlogic/washlogic-core/internal/event"
	"github.com/washlogic/washlogic-core/internal/infrastructure/config"
	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
)

// fixedRates supplies one rate table for every store and tier.
type fixedRates map[string]int64

func (r fixedRates) RatesFor(storeID, tier string) map[string]int64 {
	rates := make(map[string]int64, len(r))
	for k, v := range r {
		rates[k] = v
	}
	return rates
}

// harness wires the full pipeline over one in-memory database.
type harness struct {
	db          *sql.DB
	coordinator *Coordinator
	events      event.Repository
	orders      order.Repository
	items       inventory.Repository
	devices     device.Repository
	alerts      alert.Repository
	ledger      *inventory.Ledger
	evaluator   *alert.Evaluator
}

func setupHarness(t *testing.T, rates fixedRates) *harness {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			name TEXT NOT NULL,
			model TEXT,
			status TEXT NOT NULL DEFAULT 'offline',
			last_seen_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE events (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			device_ts TEXT NOT NULL,
			received_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			fact TEXT,
			order_no TEXT,
			fail_reason TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (device_id, kind, device_ts)
		) STRICT;
		CREATE TABLE orders (
			order_no TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			store_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			planned_duration_s INTEGER NOT NULL DEFAULT 0,
			started_at TEXT,
			ended_at TEXT,
			actual_duration_s INTEGER,
			amount_cents INTEGER NOT NULL DEFAULT 0,
			payment_ref TEXT,
			paid_at TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE inventory_items (
			id TEXT PRIMARY KEY,
			store_id TEXT NOT NULL,
			item_type TEXT NOT NULL,
			current_stock INTEGER NOT NULL DEFAULT 0,
			min_threshold INTEGER NOT NULL DEFAULT 0,
			max_capacity INTEGER NOT NULL,
			unit TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'normal',
			version INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (store_id, item_type)
		) STRICT;
		CREATE TABLE inventory_ledger (
			id TEXT PRIMARY KEY,
			item_id TEXT NOT NULL REFERENCES inventory_items(id),
			delta INTEGER NOT NULL,
			stock_after INTEGER NOT NULL,
			order_no TEXT,
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL
		) STRICT;
		CREATE UNIQUE INDEX idx_ledger_item_order ON inventory_ledger(item_id, order_no)
			WHERE order_no IS NOT NULL;
		CREATE TABLE alerts (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			subject TEXT NOT NULL,
			store_id TEXT,
			device_id TEXT,
			item_id TEXT,
			message TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			remark TEXT,
			created_at TEXT NOT NULL,
			acknowledged_at TEXT,
			resolved_at TEXT
		) STRICT;
		CREATE UNIQUE INDEX idx_alerts_one_active ON alerts(type, subject)
			WHERE status IN ('active', 'acknowledged');
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	h := &harness{
		db:      db,
		events:  event.NewSQLiteRepository(db),
		orders:  order.NewSQLiteRepository(db),
		items:   inventory.NewSQLiteRepository(db),
		devices: device.NewSQLiteRepository(db),
		alerts:  alert.NewSQLiteRepository(db),
	}
	h.ledger = inventory.NewLedger(h.items, rates)
	h.evaluator = alert.NewEvaluator(h.alerts)

	cfg := config.ReconcileConfig{
		PollInterval:          time.Second,
		EventTimeout:          5 * time.Second,
		ReorderTolerance:      2 * time.Minute,
		LivenessWindow:        5 * time.Minute,
		LivenessSweepInterval: time.Minute,
		MaxAttempts:           5,
		BatchSize:             100,
	}
	h.coordinator = NewCoordinator(cfg, h.events, h.devices, order.NewCorrelator(h.orders), h.ledger, h.evaluator)
	return h
}

func (h *harness) addDevice(t *testing.T, id string) {
	t.Helper()
	if err := h.devices.Create(context.Background(), &device.Device{
		ID: id, StoreID: "store-01", Name: "Bay " + id,
	}); err != nil {
		t.Fatalf("device Create() error = %v", err)
	}
}

func (h *harness) addPaidOrder(t *testing.T, orderNo, deviceID string, paidAt time.Time) {
	t.Helper()
	if err := h.orders.Create(context.Background(), &order.Order{
		OrderNo:          orderNo,
		DeviceID:         deviceID,
		StoreID:          "store-01",
		UserID:           "user-01",
		Tier:             order.TierStandard,
		Status:           order.StatusPaid,
		PlannedDurationS: 600,
		AmountCents:      1500,
		PaidAt:           &paidAt,
	}); err != nil {
		t.Fatalf("order Create() error = %v", err)
	}
}

func (h *harness) addItem(t *testing.T, itemType inventory.ItemType, stock, threshold int64) *inventory.Item {
	t.Helper()
	item := &inventory.Item{
		StoreID:      "store-01",
		ItemType:     itemType,
		CurrentStock: stock,
		MinThreshold: threshold,
		MaxCapacity:  50000,
		Unit:         "ml",
	}
	if err := h.items.Create(context.Background(), item); err != nil {
		t.Fatalf("item Create() error = %v", err)
	}
	return item
}

func (h *harness) ingest(t *testing.T, deviceID, kind, payload string, ts time.Time) string {
	t.Helper()
	id, err := h.coordinator.Ingest(context.Background(), deviceID, kind, json.RawMessage(payload), ts)
	if err != nil {
		t.Fatalf("Ingest(%s) error = %v", kind, err)
	}
	return id
}

func (h *harness) eventStatus(t *testing.T, id string) (event.Status, string) {
	t.Helper()
	ev, err := h.events.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	reason := ""
	if ev.FailReason != nil {
		reason = *ev.FailReason
	}
	return ev.Status, reason
}

func TestCoordinator_WashSessionEndToEnd(t *testing.T) {
	h := setupHarness(t, fixedRates{"detergent": 40, "water": 8000})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	h.addItem(t, inventory.ItemDetergent, 5000, 1000)
	h.addItem(t, inventory.ItemWater, 200000, 50000)

	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	h.addPaidOrder(t, "ORD-1001", "dev-01", paidAt)

	startTS := paidAt.Add(2 * time.Minute)
	stopTS := startTS.Add(10 * time.Minute)
	startID := h.ingest(t, "dev-01", "session_start", `{}`, startTS)
	stopID := h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600, "water_ml": 80000}`, stopTS)

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	for _, id := range []string{startID, stopID} {
		if status, reason := h.eventStatus(t, id); status != event.StatusProcessed {
			t.Errorf("event %s status = %q (%s), want processed", id, status, reason)
		}
	}

	o, err := h.orders.GetByOrderNo(ctx, "ORD-1001")
	if err != nil {
		t.Fatalf("GetByOrderNo() error = %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("order status = %q, want completed", o.Status)
	}
	if o.ActualDurationS == nil || *o.ActualDurationS != 600 {
		t.Errorf("ActualDurationS = %v, want 600", o.ActualDurationS)
	}

	// 40 ml/min over 10 minutes.
	detergent, err := h.items.GetByStoreType(ctx, "store-01", inventory.ItemDetergent)
	if err != nil {
		t.Fatalf("GetByStoreType() error = %v", err)
	}
	if detergent.CurrentStock != 4600 {
		t.Errorf("detergent stock = %d, want 4600", detergent.CurrentStock)
	}
}

func TestCoordinator_DuplicateDeliveryIsIdempotent(t *testing.T) {
	h := setupHarness(t, fixedRates{"detergent": 40})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	h.addItem(t, inventory.ItemDetergent, 5000, 1000)
	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	h.addPaidOrder(t, "ORD-1001", "dev-01", paidAt)

	startTS := paidAt.Add(2 * time.Minute)
	stopTS := startTS.Add(10 * time.Minute)

	startID := h.ingest(t, "dev-01", "session_start", `{}`, startTS)
	stopID := h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600}`, stopTS)

	// Retransmission before processing dedupes to the same rows.
	if got := h.ingest(t, "dev-01", "session_start", `{}`, startTS); got != startID {
		t.Errorf("duplicate ingest returned %q, want %q", got, startID)
	}

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	// Retransmission after processing dedupes against the processed rows
	// and changes nothing.
	dupStop := h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600}`, stopTS)
	if dupStop != stopID {
		t.Fatalf("same (device, kind, ts) should return the same row")
	}

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("second ProcessPending() error = %v", err)
	}

	// Exactly one deduction despite the duplicates.
	detergent, err := h.items.GetByStoreType(ctx, "store-01", inventory.ItemDetergent)
	if err != nil {
		t.Fatalf("GetByStoreType() error = %v", err)
	}
	if detergent.CurrentStock != 4600 {
		t.Errorf("detergent stock = %d, want 4600 (single deduction)", detergent.CurrentStock)
	}

	o, err := h.orders.GetByOrderNo(ctx, "ORD-1001")
	if err != nil {
		t.Fatalf("GetByOrderNo() error = %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("order status = %q, want completed", o.Status)
	}
}

func TestCoordinator_LowInventoryAlertLifecycle(t *testing.T) {
	// 30 units over the wash, stock 50 with threshold 100: completion
	// leaves 20 and flips the item to low.
	h := setupHarness(t, fixedRates{"detergent": 3})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	item := h.addItem(t, inventory.ItemDetergent, 50, 100)

	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	h.addPaidOrder(t, "ORD-1001", "dev-01", paidAt)

	startTS := paidAt.Add(2 * time.Minute)
	h.ingest(t, "dev-01", "session_start", `{}`, startTS)
	h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600}`, startTS.Add(10*time.Minute))

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	got, err := h.items.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CurrentStock != 20 || got.Status != inventory.StatusLow {
		t.Errorf("item = stock %d status %q, want 20 low", got.CurrentStock, got.Status)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeLowInventory {
		t.Fatalf("open alerts = %+v, want one low_inventory", open)
	}

	// Restock resolves the alert.
	res, err := h.ledger.Adjust(ctx, item.ID, 480, "restock")
	if err != nil {
		t.Fatalf("Adjust() error = %v", err)
	}
	if err := h.evaluator.InventoryChanged(ctx, res); err != nil {
		t.Fatalf("InventoryChanged() error = %v", err)
	}

	open, err = h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open alerts = %+v after restock, want none", open)
	}
}

func TestCoordinator_MalformedPayloadParked(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")

	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	// session_stop without a duration is a hard parse failure.
	id := h.ingest(t, "dev-01", "session_stop", `{"water_ml": 1}`, ts)

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	status, reason := h.eventStatus(t, id)
	if status != event.StatusFailed || reason != event.ReasonMalformedPayload {
		t.Errorf("event = %q (%s), want failed malformed_payload", status, reason)
	}

	// Parse failures are terminal: the retry pass must not pick them up.
	if err := h.coordinator.RetryFailed(ctx); err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if status, _ := h.eventStatus(t, id); status != event.StatusFailed {
		t.Errorf("event status = %q after retry pass, want still failed", status)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeSystemError {
		t.Errorf("open alerts = %+v, want one system_error", open)
	}
}

func TestCoordinator_UnmatchedStartParkedWithAlert(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")

	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	id := h.ingest(t, "dev-01", "session_start", `{}`, ts)

	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	status, reason := h.eventStatus(t, id)
	if status != event.StatusFailed || reason != event.ReasonUnmatchedSession {
		t.Errorf("event = %q (%s), want failed unmatched_session", status, reason)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeDeviceError {
		t.Errorf("open alerts = %+v, want one device_error", open)
	}
	if open[0].DeviceID == nil || *open[0].DeviceID != "dev-01" {
		t.Errorf("alert device = %v, want dev-01", open[0].DeviceID)
	}
}

func TestCoordinator_PrematureStopHeldThenApplied(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	h.addPaidOrder(t, "ORD-1001", "dev-01", paidAt)

	startTS := paidAt.Add(2 * time.Minute)
	stopTS := startTS.Add(10 * time.Minute)

	// The stop arrives first. Within the tolerance window it stays
	// pending instead of being parked as unmatched.
	stopID := h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600}`, stopTS)
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if status, _ := h.eventStatus(t, stopID); status != event.StatusPending {
		t.Fatalf("premature stop status = %q, want pending (held)", status)
	}

	// The start catches up; the next pass applies both in timestamp order.
	startID := h.ingest(t, "dev-01", "session_start", `{}`, startTS)
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("second ProcessPending() error = %v", err)
	}

	for _, id := range []string{startID, stopID} {
		if status, reason := h.eventStatus(t, id); status != event.StatusProcessed {
			t.Errorf("event %s = %q (%s), want processed", id, status, reason)
		}
	}

	o, err := h.orders.GetByOrderNo(ctx, "ORD-1001")
	if err != nil {
		t.Fatalf("GetByOrderNo() error = %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Errorf("order status = %q, want completed", o.Status)
	}
}

func TestCoordinator_HeartbeatAndLivenessSweep(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")

	// A heartbeat brings the device online.
	staleTS := time.Now().UTC().Add(-10 * time.Minute)
	hbID := h.ingest(t, "dev-01", "heartbeat", `{"signal_dbm": -70}`, staleTS)
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}
	if status, _ := h.eventStatus(t, hbID); status != event.StatusProcessed {
		t.Errorf("heartbeat status = %q, want processed", status)
	}

	d, err := h.devices.GetByID(ctx, "dev-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.Status != device.StatusOnline {
		t.Errorf("device status = %q, want online", d.Status)
	}

	// The heartbeat is already older than the liveness window, so the
	// sweep takes the device offline and raises an alert.
	if err := h.coordinator.SweepLiveness(ctx); err != nil {
		t.Fatalf("SweepLiveness() error = %v", err)
	}

	d, err = h.devices.GetByID(ctx, "dev-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if d.Status != device.StatusOffline {
		t.Errorf("device status = %q after sweep, want offline", d.Status)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeDeviceOffline {
		t.Fatalf("open alerts = %+v, want one device_offline", open)
	}

	// A fresh heartbeat resolves the offline alert.
	h.ingest(t, "dev-01", "heartbeat", `{}`, time.Now().UTC())
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	open, err = h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open alerts = %+v after heartbeat, want none", open)
	}
}

func TestCoordinator_DeviceErrorAndFaultCleared(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")

	ts := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	h.ingest(t, "dev-01", "error", `{"code": "E42", "message": "pump pressure fault"}`, ts)
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeDeviceError {
		t.Fatalf("open alerts = %+v, want one device_error", open)
	}

	h.ingest(t, "dev-01", "fault_cleared", `{"code": "E42"}`, ts.Add(5*time.Minute))
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	open, err = h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open alerts = %+v after fault_cleared, want none", open)
	}
}

func TestCoordinator_IngestRejectsUnknownKind(t *testing.T) {
	h := setupHarness(t, fixedRates{})

	_, err := h.coordinator.Ingest(context.Background(), "dev-01", "reboot", nil, time.Now())
	if err == nil {
		t.Fatal("Ingest(unknown kind) should fail")
	}
}

func TestCoordinator_RetryAfterLedgerFailureChargesInventory(t *testing.T) {
	h := setupHarness(t, fixedRates{"detergent": 40})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	h.addItem(t, inventory.ItemDetergent, 10000, 1000)
	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	h.addPaidOrder(t, "ORD-1001", "dev-01", paidAt)

	startTS := paidAt.Add(2 * time.Minute)
	h.ingest(t, "dev-01", "session_start", `{}`, startTS)
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	// Hide the ledger table so the stop fails after the completed
	// transition commits but before the consumption lands.
	if _, err := h.db.Exec(`ALTER TABLE inventory_ledger RENAME TO inventory_ledger_hidden`); err != nil {
		t.Fatalf("hiding ledger table: %v", err)
	}

	stopID := h.ingest(t, "dev-01", "session_stop", `{"duration_s": 600}`, startTS.Add(10*time.Minute))
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	if status, reason := h.eventStatus(t, stopID); status != event.StatusFailed || reason != event.ReasonConflict {
		t.Fatalf("event = %q (%s), want failed conflict", status, reason)
	}
	o, err := h.orders.GetByOrderNo(ctx, "ORD-1001")
	if err != nil {
		t.Fatalf("GetByOrderNo() error = %v", err)
	}
	if o.Status != order.StatusCompleted {
		t.Fatalf("order status = %q, want completed before the retry", o.Status)
	}

	if _, err := h.db.Exec(`ALTER TABLE inventory_ledger_hidden RENAME TO inventory_ledger`); err != nil {
		t.Fatalf("restoring ledger table: %v", err)
	}

	if err := h.coordinator.RetryFailed(ctx); err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}

	// The retry matches the already-completed order as a duplicate stop
	// and must still finish the interrupted charge.
	if status, reason := h.eventStatus(t, stopID); status != event.StatusProcessed {
		t.Errorf("event = %q (%s) after retry, want processed", status, reason)
	}
	detergent, err := h.items.GetByStoreType(ctx, "store-01", inventory.ItemDetergent)
	if err != nil {
		t.Fatalf("GetByStoreType() error = %v", err)
	}
	if detergent.CurrentStock != 9600 {
		t.Errorf("detergent stock = %d, want 9600 (charge applied on retry)", detergent.CurrentStock)
	}

	// A further retry pass must not double-charge.
	if err := h.coordinator.RetryFailed(ctx); err != nil {
		t.Fatalf("second RetryFailed() error = %v", err)
	}
	detergent, err = h.items.GetByStoreType(ctx, "store-01", inventory.ItemDetergent)
	if err != nil {
		t.Fatalf("GetByStoreType() error = %v", err)
	}
	if detergent.CurrentStock != 9600 {
		t.Errorf("detergent stock = %d after second retry pass, want 9600", detergent.CurrentStock)
	}
}

// stubCorrelator returns a fixed result for every session fact.
type stubCorrelator struct {
	res *order.Result
	err error
}

func (s *stubCorrelator) Apply(context.Context, *event.Fact) (*order.Result, error) {
	return s.res, s.err
}

func TestCoordinator_InvalidTransitionRaisesSystemError(t *testing.T) {
	h := setupHarness(t, fixedRates{})
	ctx := context.Background()

	h.addDevice(t, "dev-01")
	h.coordinator.correlator = &stubCorrelator{
		err: fmt.Errorf("%w: completed → using for order ORD-9", order.ErrInvalidTransition),
	}

	id := h.ingest(t, "dev-01", "session_start", `{}`, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))
	if err := h.coordinator.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending() error = %v", err)
	}

	status, reason := h.eventStatus(t, id)
	if status != event.StatusFailed || reason != event.ReasonInvalidTransition {
		t.Errorf("event = %q (%s), want failed invalid_transition", status, reason)
	}

	open, err := h.alerts.ListOpen(ctx, 10)
	if err != nil {
		t.Fatalf("ListOpen() error = %v", err)
	}
	if len(open) != 1 || open[0].Type != alert.TypeSystemError {
		t.Errorf("open alerts = %+v, want one system_error", open)
	}
}
