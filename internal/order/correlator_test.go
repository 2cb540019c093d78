package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/washlogic/washlogic-core/internal/event"
)

func startFact(deviceID string, at time.Time) *event.Fact {
	return &event.Fact{
		Kind:       event.KindSessionStart,
		DeviceID:   deviceID,
		OccurredAt: at,
	}
}

func stopFact(deviceID string, at time.Time, durationS int64) *event.Fact {
	return &event.Fact{
		Kind:       event.KindSessionStop,
		DeviceID:   deviceID,
		OccurredAt: at,
		Measurements: event.Measurements{
			DurationS: durationS,
			WaterML:   45000,
		},
	}
}

func TestCorrelator_StartBindsLatestPaid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	c := NewCorrelator(repo)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, testOrder("ORD-OLD", "dev-01", base)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, testOrder("ORD-NEW", "dev-01", base.Add(30*time.Minute))); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	startedAt := base.Add(32 * time.Minute)
	res, err := c.Apply(ctx, startFact("dev-01", startedAt))
	if err != nil {
		t.Fatalf("Apply(start) error = %v", err)
	}
	if res.Order.OrderNo != "ORD-NEW" {
		t.Errorf("bound order = %q, want ORD-NEW", res.Order.OrderNo)
	}
	if res.Order.Status != StatusUsing {
		t.Errorf("Status = %q, want using", res.Order.Status)
	}
	if res.Order.StartedAt == nil || !res.Order.StartedAt.Equal(startedAt) {
		t.Errorf("StartedAt = %v, want %v", res.Order.StartedAt, startedAt)
	}

	// The older paid order is untouched.
	old, err := repo.GetByOrderNo(ctx, "ORD-OLD")
	if err != nil {
		t.Fatalf("GetByOrderNo() error = %v", err)
	}
	if old.Status != StatusPaid {
		t.Errorf("older order Status = %q, want paid", old.Status)
	}
}

func TestCorrelator_StartUnmatched(t *testing.T) {
	db := setupTestDB(t)
	c := NewCorrelator(NewSQLiteRepository(db))

	at := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if _, err := c.Apply(context.Background(), startFact("dev-01", at)); !errors.Is(err, ErrUnmatchedSession) {
		t.Errorf("Apply(start) error = %v, want ErrUnmatchedSession", err)
	}
}

func TestCorrelator_DuplicateStartIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	c := NewCorrelator(repo)
	ctx := context.Background()

	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	if err := repo.Create(ctx, testOrder("ORD-1001", "dev-01", paidAt)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	startedAt := paidAt.Add(2 * time.Minute)
	if _, err := c.Apply(ctx, startFact("dev-01", startedAt)); err != nil {
		t.Fatalf("first Apply(start) error = %v", err)
	}

	// Retransmission with the same device timestamp binds to the same
	// session instead of failing as unmatched.
	res, err := c.Apply(ctx, startFact("dev-01", startedAt))
	if err != nil {
		t.Fatalf("duplicate Apply(start) error = %v", err)
	}
	if !res.Duplicate {
		t.Error("Duplicate = false, want true")
	}
	if res.Order.OrderNo != "ORD-1001" {
		t.Errorf("OrderNo = %q, want ORD-1001", res.Order.OrderNo)
	}
	if res.Order.Version != 2 {
		t.Errorf("Version = %d, want 2 (no second write)", res.Order.Version)
	}
}

func TestCorrelator_StopCompletesWithDuration(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	c := NewCorrelator(repo)
	ctx := context.Background()

	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	if err := repo.Create(ctx, testOrder("ORD-1001", "dev-01", paidAt)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	startedAt := paidAt.Add(2 * time.Minute)
	if _, err := c.Apply(ctx, startFact("dev-01", startedAt)); err != nil {
		t.Fatalf("Apply(start) error = %v", err)
	}

	endedAt := startedAt.Add(10 * time.Minute)
	res, err := c.Apply(ctx, stopFact("dev-01", endedAt, 600))
	if err != nil {
		t.Fatalf("Apply(stop) error = %v", err)
	}
	if !res.Completed {
		t.Error("Completed = false, want true")
	}
	if res.Order.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", res.Order.Status)
	}
	if res.Order.ActualDurationS == nil || *res.Order.ActualDurationS != 600 {
		t.Errorf("ActualDurationS = %v, want 600", res.Order.ActualDurationS)
	}
	if res.Order.EndedAt == nil || !res.Order.EndedAt.Equal(endedAt) {
		t.Errorf("EndedAt = %v, want %v", res.Order.EndedAt, endedAt)
	}
}

func TestCorrelator_StopWithoutOpenSession(t *testing.T) {
	db := setupTestDB(t)
	c := NewCorrelator(NewSQLiteRepository(db))

	at := time.Date(2026, 9, 1, 10, 10, 0, 0, time.UTC)
	if _, err := c.Apply(context.Background(), stopFact("dev-01", at, 600)); !errors.Is(err, ErrUnmatchedSession) {
		t.Errorf("Apply(stop) error = %v, want ErrUnmatchedSession", err)
	}
}

func TestCorrelator_DuplicateStopIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	c := NewCorrelator(repo)
	ctx := context.Background()

	paidAt := time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)
	if err := repo.Create(ctx, testOrder("ORD-1001", "dev-01", paidAt)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	startedAt := paidAt.Add(2 * time.Minute)
	endedAt := startedAt.Add(10 * time.Minute)
	if _, err := c.Apply(ctx, startFact("dev-01", startedAt)); err != nil {
		t.Fatalf("Apply(start) error = %v", err)
	}
	if _, err := c.Apply(ctx, stopFact("dev-01", endedAt, 600)); err != nil {
		t.Fatalf("Apply(stop) error = %v", err)
	}

	res, err := c.Apply(ctx, stopFact("dev-01", endedAt, 600))
	if err != nil {
		t.Fatalf("duplicate Apply(stop) error = %v", err)
	}
	if !res.Duplicate {
		t.Error("Duplicate = false, want true")
	}
	if res.Completed {
		t.Error("Completed = true on duplicate, want false (already applied)")
	}
}

func TestCorrelator_NonSessionFactsIgnored(t *testing.T) {
	db := setupTestDB(t)
	c := NewCorrelator(NewSQLiteRepository(db))

	fact := &event.Fact{
		Kind:       event.KindHeartbeat,
		DeviceID:   "dev-01",
		OccurredAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	res, err := c.Apply(context.Background(), fact)
	if err != nil {
		t.Fatalf("Apply(heartbeat) error = %v", err)
	}
	if res.Order != nil || res.Completed || res.Duplicate {
		t.Errorf("heartbeat result = %+v, want empty", res)
	}
}
