package inventory

import (
	"time"
)

// ItemType identifies a tracked consumable or utility.
type ItemType string

// Recognised item types.
const (
	ItemDetergent   ItemType = "detergent"
	ItemFoam        ItemType = "foam"
	ItemWax         ItemType = "wax"
	ItemWater       ItemType = "water"
	ItemElectricity ItemType = "electricity"
)

// StockStatus is the derived stock condition of an item.
type StockStatus string

// Stock status values. Status is a pure function of the current stock
// against the item's thresholds, recomputed after every mutation.
const (
	StatusNormal StockStatus = "normal"
	StatusLow    StockStatus = "low"
	StatusEmpty  StockStatus = "empty"
)

// DeriveStatus computes the stock status for a level against a low threshold.
func DeriveStatus(stock, minThreshold int64) StockStatus {
	switch {
	case stock <= 0:
		return StatusEmpty
	case stock <= minThreshold:
		return StatusLow
	default:
		return StatusNormal
	}
}

// Item is a consumable or utility tracked per store.
//
// Stock is an integer in the item's minor unit (millilitres, watt-hours).
// It is mutated only through ledger applications, never overwritten
// directly, so the delta history reconstructs the current level. Version
// implements optimistic locking against concurrent administrative edits.
type Item struct {
	ID           string      `json:"id"`
	StoreID      string      `json:"store_id"`
	ItemType     ItemType    `json:"item_type"`
	CurrentStock int64       `json:"current_stock"`
	MinThreshold int64       `json:"min_threshold"`
	MaxCapacity  int64       `json:"max_capacity"`
	Unit         string      `json:"unit"`
	Status       StockStatus `json:"status"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// LedgerEntry is one applied stock mutation.
//
// Delta is the amount actually applied after clamping, which may be smaller
// in magnitude than the requested amount when stock hit a bound. OrderNo is
// set for wash consumption entries and backs the once-per-order guarantee.
type LedgerEntry struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	Delta      int64     `json:"delta"`
	StockAfter int64     `json:"stock_after"`
	OrderNo    *string   `json:"order_no,omitempty"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// ApplyResult reports the outcome of a single ledger application.
type ApplyResult struct {
	// Item is the item after the mutation, with the new stock, status
	// and version.
	Item *Item

	// Entry is the ledger row recording the applied delta.
	Entry *LedgerEntry

	// PrevStatus is the stock status before the mutation, for detecting
	// status transitions.
	PrevStatus StockStatus

	// Shortfall is the consumption that could not be applied because
	// stock hit zero (always >= 0). Overfill on restock is clamped the
	// same way but not reported.
	Shortfall int64
}
