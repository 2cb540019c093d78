package inventory

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the inventory tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
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
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// testItem creates a detergent item with the given stock.
func testItem(t *testing.T, repo Repository, stock int64) *Item {
	t.Helper()

	item := &Item{
		StoreID:      "store-01",
		ItemType:     ItemDetergent,
		CurrentStock: stock,
		MinThreshold: 1000,
		MaxCapacity:  20000,
		Unit:         "ml",
	}
	if err := repo.Create(context.Background(), item); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return item
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		stock, threshold int64
		want             StockStatus
	}{
		{5000, 1000, StatusNormal},
		{1001, 1000, StatusNormal},
		{1000, 1000, StatusLow},
		{1, 1000, StatusLow},
		{0, 1000, StatusEmpty},
		{-3, 1000, StatusEmpty},
	}
	for _, tt := range tests {
		if got := DeriveStatus(tt.stock, tt.threshold); got != tt.want {
			t.Errorf("DeriveStatus(%d, %d) = %q, want %q", tt.stock, tt.threshold, got, tt.want)
		}
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	item := testItem(t, repo, 5000)

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ItemType != ItemDetergent || got.CurrentStock != 5000 || got.Status != StatusNormal {
		t.Errorf("round trip mismatch: %+v", got)
	}

	byType, err := repo.GetByStoreType(ctx, "store-01", ItemDetergent)
	if err != nil {
		t.Fatalf("GetByStoreType() error = %v", err)
	}
	if byType.ID != item.ID {
		t.Errorf("GetByStoreType ID = %q, want %q", byType.ID, item.ID)
	}

	dup := &Item{StoreID: "store-01", ItemType: ItemDetergent, MaxCapacity: 100, Unit: "ml"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrItemExists) {
		t.Errorf("duplicate Create() error = %v, want ErrItemExists", err)
	}
}

func TestSQLiteRepository_ApplyDeltaRecordsLedger(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	item := testItem(t, repo, 5000)

	res, err := repo.ApplyDelta(ctx, item.ID, -1200, nil, "manual correction")
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if res.Item.CurrentStock != 3800 {
		t.Errorf("CurrentStock = %d, want 3800", res.Item.CurrentStock)
	}
	if res.Entry.Delta != -1200 || res.Entry.StockAfter != 3800 {
		t.Errorf("ledger entry = %+v", res.Entry)
	}
	if res.Item.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Item.Version)
	}

	entries, err := repo.ListLedger(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("ListLedger() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Reason != "manual correction" {
		t.Errorf("ledger = %+v", entries)
	}
}

func TestSQLiteRepository_ApplyDeltaClampsAtZero(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	item := testItem(t, repo, 500)

	orderNo := "ORD-1001"
	res, err := repo.ApplyDelta(ctx, item.ID, -800, &orderNo, "wash consumption")
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if res.Item.CurrentStock != 0 {
		t.Errorf("CurrentStock = %d, want 0 (clamped)", res.Item.CurrentStock)
	}
	if res.Entry.Delta != -500 {
		t.Errorf("applied delta = %d, want -500", res.Entry.Delta)
	}
	if res.Shortfall != 300 {
		t.Errorf("Shortfall = %d, want 300", res.Shortfall)
	}
	if res.Item.Status != StatusEmpty {
		t.Errorf("Status = %q, want empty", res.Item.Status)
	}
	if res.PrevStatus != StatusLow {
		t.Errorf("PrevStatus = %q, want low", res.PrevStatus)
	}
}

func TestSQLiteRepository_ApplyDeltaClampsAtCapacity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	item := testItem(t, repo, 19000)

	res, err := repo.ApplyDelta(ctx, item.ID, 5000, nil, "restock")
	if err != nil {
		t.Fatalf("ApplyDelta() error = %v", err)
	}
	if res.Item.CurrentStock != 20000 {
		t.Errorf("CurrentStock = %d, want 20000 (capacity)", res.Item.CurrentStock)
	}
	if res.Entry.Delta != 1000 {
		t.Errorf("applied delta = %d, want 1000", res.Entry.Delta)
	}
	if res.Shortfall != 0 {
		t.Errorf("Shortfall = %d, want 0 for restock", res.Shortfall)
	}
}

func TestSQLiteRepository_ApplyDeltaOncePerOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	item := testItem(t, repo, 5000)
	orderNo := "ORD-1001"

	if _, err := repo.ApplyDelta(ctx, item.ID, -400, &orderNo, "wash consumption"); err != nil {
		t.Fatalf("first ApplyDelta() error = %v", err)
	}

	// Duplicate delivery: the second charge must not mutate anything.
	if _, err := repo.ApplyDelta(ctx, item.ID, -400, &orderNo, "wash consumption"); !errors.Is(err, ErrDuplicateConsumption) {
		t.Fatalf("second ApplyDelta() error = %v, want ErrDuplicateConsumption", err)
	}

	got, err := repo.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CurrentStock != 4600 {
		t.Errorf("CurrentStock = %d, want 4600 (single deduction)", got.CurrentStock)
	}

	// A different order charges normally.
	other := "ORD-1002"
	if _, err := repo.ApplyDelta(ctx, item.ID, -400, &other, "wash consumption"); err != nil {
		t.Errorf("different order ApplyDelta() error = %v", err)
	}
}

func TestSQLiteRepository_GetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrItemNotFound", err)
	}
	if _, err := repo.ApplyDelta(context.Background(), "missing", -1, nil, "x"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("ApplyDelta(missing) error = %v, want ErrItemNotFound", err)
	}
}
