package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	schema := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			operator TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}
	return db
}

func TestRecordAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	e := &Entry{
		Action:     "inventory.adjust",
		EntityType: "inventory_item",
		EntityID:   "item-01",
		Operator:   "ops@store-01",
		Source:     "api",
		Details:    map[string]any{"delta": float64(-500), "reason": "spillage"},
	}
	if err := repo.Record(ctx, e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" {
		t.Fatal("Record() did not generate an ID")
	}
	if e.CreatedAt.IsZero() {
		t.Fatal("Record() did not stamp CreatedAt")
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() total = %d, entries = %d, want 1/1", res.Total, len(res.Entries))
	}

	got := res.Entries[0]
	if got.Action != "inventory.adjust" || got.EntityID != "item-01" || got.Operator != "ops@store-01" {
		t.Errorf("entry = %+v", got)
	}
	if got.Details["reason"] != "spillage" {
		t.Errorf("details = %v", got.Details)
	}
}

func TestList_FilterAndPagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entityType := "alert"
		action := "alert.acknowledge"
		if i%2 == 0 {
			entityType = "inventory_item"
			action = "inventory.adjust"
		}
		if err := repo.Record(ctx, &Entry{
			Action:     action,
			EntityType: entityType,
			EntityID:   "ent-1",
			Source:     "api",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	res, err := repo.List(ctx, Filter{EntityType: "alert"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("filtered total = %d, want 2", res.Total)
	}

	// Newest first, paginated.
	res, err = repo.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || len(res.Entries) != 2 {
		t.Fatalf("page total = %d, entries = %d, want 5/2", res.Total, len(res.Entries))
	}
	if !res.Entries[0].CreatedAt.After(res.Entries[1].CreatedAt) {
		t.Errorf("entries not newest-first: %v, %v", res.Entries[0].CreatedAt, res.Entries[1].CreatedAt)
	}

	res, err = repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 {
		t.Errorf("last page entries = %d, want 1", len(res.Entries))
	}
}

func TestList_Empty(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 0 || res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("empty list = %+v, want zero entries (non-nil)", res)
	}
}
