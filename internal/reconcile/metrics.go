package reconcile

import (
	"context"

	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
)

// MetricsSink receives reconciliation outcomes for time-series recording.
// Implementations must not block the pipeline; writes are expected to be
// buffered or asynchronous.
type MetricsSink interface {
	// WashCompleted records a finished wash session.
	WashCompleted(ctx context.Context, o *order.Order)

	// ConsumptionApplied records an inventory deduction.
	ConsumptionApplied(ctx context.Context, res *inventory.ApplyResult)
}

type noopMetrics struct{}

func (noopMetrics) WashCompleted(context.Context, *order.Order)                 {}
func (noopMetrics) ConsumptionApplied(context.Context, *inventory.ApplyResult) {}
