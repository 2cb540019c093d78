package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/washlogic/washlogic-core/internal/order"
)

// Logger captures the logging interface the ledger needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RateSource supplies per-minute consumption rates.
type RateSource interface {
	// RatesFor returns item-type to per-minute rate for a store and wash
	// tier, in the item's minor unit.
	RatesFor(storeID, tier string) map[string]int64
}

// Ledger derives inventory consumption from completed wash sessions and
// applies it through the repository.
type Ledger struct {
	repo   Repository
	rates  RateSource
	logger Logger
}

// NewLedger creates a ledger service.
func NewLedger(repo Repository, rates RateSource) *Ledger {
	return &Ledger{
		repo:   repo,
		rates:  rates,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the ledger.
func (l *Ledger) SetLogger(logger Logger) {
	l.logger = logger
}

// ConsumeForOrder charges a completed order's consumption against the
// store's inventory: for each item type the order's tier consumes, the
// delta is the per-minute rate times the actual session duration.
//
// Each item is charged at most once per order. Retried calls find the
// existing ledger entries and return the prior results unchanged, so the
// method is safe under duplicate delivery. Stock hitting zero does not
// fail the order (the wash already physically happened); the shortfall is
// reported in the results for the alert evaluator.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - o: A completed order with ActualDurationS set
//
// Returns:
//   - []ApplyResult: One result per charged item, freshly applied or not
//   - error: A storage error; per-item duplicate charges are not errors
func (l *Ledger) ConsumeForOrder(ctx context.Context, o *order.Order) ([]ApplyResult, error) {
	if o.ActualDurationS == nil {
		return nil, fmt.Errorf("order %s has no recorded duration", o.OrderNo)
	}
	durationS := *o.ActualDurationS

	rates := l.rates.RatesFor(o.StoreID, string(o.Tier))
	if len(rates) == 0 {
		l.logger.Warn("no consumption rates for tier",
			"store_id", o.StoreID, "tier", o.Tier)
		return nil, nil
	}

	var results []ApplyResult
	for itemType, perMinute := range rates {
		consumed := perMinute * durationS / 60
		if consumed <= 0 {
			continue
		}

		item, err := l.repo.GetByStoreType(ctx, o.StoreID, ItemType(itemType))
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				// The store does not track this consumable; nothing
				// to deduct.
				l.logger.Debug("untracked item type",
					"store_id", o.StoreID, "item_type", itemType)
				continue
			}
			return results, err
		}

		reason := fmt.Sprintf("wash consumption (%s, %ds)", o.Tier, durationS)
		res, err := l.repo.ApplyDelta(ctx, item.ID, -consumed, &o.OrderNo, reason)
		if err != nil {
			if errors.Is(err, ErrDuplicateConsumption) {
				l.logger.Debug("order already consumed",
					"order_no", o.OrderNo, "item_id", item.ID)
				continue
			}
			return results, err
		}

		if res.Shortfall > 0 {
			l.logger.Warn("insufficient stock",
				"item_id", item.ID,
				"item_type", itemType,
				"shortfall", res.Shortfall,
				"order_no", o.OrderNo,
			)
		}
		results = append(results, *res)
	}
	return results, nil
}

// Adjust applies an administrative stock change (restock, correction,
// spillage). The same clamping and race rules as consumption apply.
func (l *Ledger) Adjust(ctx context.Context, itemID string, delta int64, reason string) (*ApplyResult, error) {
	res, err := l.repo.ApplyDelta(ctx, itemID, delta, nil, reason)
	if err != nil {
		return nil, err
	}

	l.logger.Info("inventory adjusted",
		"item_id", itemID,
		"delta", res.Entry.Delta,
		"stock_after", res.Entry.StockAfter,
		"reason", reason,
	)
	return res, nil
}
