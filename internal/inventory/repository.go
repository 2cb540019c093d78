package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for inventory persistence operations.
//
// Stock mutation goes through ApplyDelta exclusively. The mutation and its
// ledger row commit in one transaction, and the item row carries an
// optimistic version so a device-driven consumption racing an
// administrative adjustment cannot both succeed from the same read.
type Repository interface {
	// Create inserts a new tracked item.
	// Returns ErrItemExists if the (store, type) pair is already tracked.
	Create(ctx context.Context, item *Item) error

	// GetByID retrieves an item by ID.
	// Returns ErrItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id string) (*Item, error)

	// GetByStoreType retrieves the item tracking a type at a store.
	// Returns ErrItemNotFound if the pair is not tracked.
	GetByStoreType(ctx context.Context, storeID string, itemType ItemType) (*Item, error)

	// ListByStore retrieves all items tracked at a store.
	ListByStore(ctx context.Context, storeID string) ([]Item, error)

	// List retrieves all tracked items.
	List(ctx context.Context) ([]Item, error)

	// ApplyDelta applies a signed stock change and records it in the
	// ledger atomically. The new stock is clamped to [0, MaxCapacity];
	// the ledger records the delta actually applied.
	//
	// A non-nil orderNo marks wash consumption: at most one ledger entry
	// per (item, order) can exist, and a second attempt returns
	// ErrDuplicateConsumption without mutating anything.
	ApplyDelta(ctx context.Context, itemID string, delta int64, orderNo *string, reason string) (*ApplyResult, error)

	// ListLedger retrieves recent ledger entries for an item, newest
	// first.
	ListLedger(ctx context.Context, itemID string, limit int) ([]LedgerEntry, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const itemColumns = `id, store_id, item_type, current_stock, min_threshold,
	max_capacity, unit, status, version, created_at, updated_at`

// Create inserts a new tracked item.
func (r *SQLiteRepository) Create(ctx context.Context, item *Item) error {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.Status = DeriveStatus(item.CurrentStock, item.MinThreshold)
	if item.Version == 0 {
		item.Version = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, store_id, item_type, current_stock, min_threshold,
			max_capacity, unit, status, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.StoreID,
		string(item.ItemType),
		item.CurrentStock,
		item.MinThreshold,
		item.MaxCapacity,
		item.Unit,
		string(item.Status),
		item.Version,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrItemExists
		}
		return fmt.Errorf("inserting inventory item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, id)
	return scanItem(row)
}

// GetByStoreType retrieves the item tracking a type at a store.
func (r *SQLiteRepository) GetByStoreType(ctx context.Context, storeID string, itemType ItemType) (*Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE store_id = ? AND item_type = ?`,
		storeID, string(itemType))
	return scanItem(row)
}

// ListByStore retrieves all items tracked at a store.
func (r *SQLiteRepository) ListByStore(ctx context.Context, storeID string) ([]Item, error) {
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE store_id = ? ORDER BY item_type`,
		storeID)
}

// List retrieves all tracked items.
func (r *SQLiteRepository) List(ctx context.Context) ([]Item, error) {
	return r.queryItems(ctx,
		`SELECT `+itemColumns+` FROM inventory_items ORDER BY store_id, item_type`)
}

// ApplyDelta applies a signed stock change and records it in the ledger.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - itemID: Item to mutate
//   - delta: Signed change in the item's minor unit
//   - orderNo: Consuming order number, or nil for administrative changes
//   - reason: Human-readable reason recorded in the ledger
//
// Returns:
//   - *ApplyResult: New item state, the ledger entry, and any shortfall
//   - error: ErrItemNotFound, ErrDuplicateConsumption,
//     ErrConcurrencyConflict, or a storage error
func (r *SQLiteRepository) ApplyDelta(ctx context.Context, itemID string, delta int64, orderNo *string, reason string) (*ApplyResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, itemID)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}

	prevStatus := item.Status

	newStock := item.CurrentStock + delta
	if newStock < 0 {
		newStock = 0
	}
	if newStock > item.MaxCapacity {
		newStock = item.MaxCapacity
	}
	applied := newStock - item.CurrentStock

	var shortfall int64
	if delta < 0 {
		shortfall = applied - delta
	}

	now := time.Now().UTC()
	entry := &LedgerEntry{
		ID:         uuid.NewString(),
		ItemID:     item.ID,
		Delta:      applied,
		StockAfter: newStock,
		OrderNo:    orderNo,
		Reason:     reason,
		CreatedAt:  now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_ledger (id, item_id, delta, stock_after, order_no, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ItemID,
		entry.Delta,
		entry.StockAfter,
		entry.OrderNo,
		entry.Reason,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateConsumption
		}
		return nil, fmt.Errorf("inserting ledger entry: %w", err)
	}

	item.CurrentStock = newStock
	item.Status = DeriveStatus(newStock, item.MinThreshold)
	item.UpdatedAt = now

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET current_stock = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.CurrentStock,
		string(item.Status),
		formatTime(item.UpdatedAt),
		item.ID,
		item.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("updating inventory item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return nil, ErrConcurrencyConflict
	}
	item.Version++

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ledger application: %w", err)
	}

	return &ApplyResult{
		Item:       item,
		Entry:      entry,
		PrevStatus: prevStatus,
		Shortfall:  shortfall,
	}, nil
}

// ListLedger retrieves recent ledger entries for an item, newest first.
func (r *SQLiteRepository) ListLedger(ctx context.Context, itemID string, limit int) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, item_id, delta, stock_after, order_no, reason, created_at
		FROM inventory_ledger
		WHERE item_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			orderNo   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Delta, &e.StockAfter, &orderNo, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		if orderNo.Valid {
			e.OrderNo = &orderNo.String
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing ledger timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying inventory items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		item      Item
		itemType  string
		status    string
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&item.ID,
		&item.StoreID,
		&itemType,
		&item.CurrentStock,
		&item.MinThreshold,
		&item.MaxCapacity,
		&item.Unit,
		&status,
		&item.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("scanning inventory item: %w", err)
	}

	item.ItemType = ItemType(itemType)
	item.Status = StockStatus(status)
	if item.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &item, nil
}

// formatTime formats a timestamp for storage. All stored timestamps are
// RFC3339 UTC at second precision.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
