package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/washlogic/washlogic-core/internal/inventory"
	"github.com/washlogic/washlogic-core/internal/order"
)

// WriteWashSession records a completed wash as a time-series point.
//
// The point is stamped with the session end time so historical backlogs
// replayed through the pipeline land at the right moment, not at write time.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - o: A completed order. Orders without an end time are stamped "now".
func (c *Client) WriteWashSession(o *order.Order) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"amount_cents": o.AmountCents,
	}
	if o.ActualDurationS != nil {
		fields["duration_s"] = *o.ActualDurationS
	}

	ts := time.Now()
	if o.EndedAt != nil {
		ts = *o.EndedAt
	}

	point := write.NewPoint(
		"wash_sessions",
		map[string]string{
			"order_no":  o.OrderNo,
			"device_id": o.DeviceID,
			"store_id":  o.StoreID,
			"tier":      string(o.Tier),
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteConsumption records one applied inventory mutation.
//
// Restocks and manual adjustments flow through here too; the sign of
// delta distinguishes them from wash consumption.
//
// Parameters:
//   - res: The outcome of an inventory ledger application
func (c *Client) WriteConsumption(res *inventory.ApplyResult) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"item_id":   res.Item.ID,
		"store_id":  res.Item.StoreID,
		"item_type": string(res.Item.ItemType),
	}
	if res.Entry.OrderNo != nil {
		tags["order_no"] = *res.Entry.OrderNo
	}

	fields := map[string]interface{}{
		"delta":       res.Entry.Delta,
		"stock_after": res.Entry.StockAfter,
	}
	if res.Shortfall > 0 {
		fields["shortfall"] = res.Shortfall
	}

	point := write.NewPoint("consumption", tags, fields, res.Entry.CreatedAt)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed or replayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// Sink adapts a Client to the reconciliation coordinator's metrics
// interface. A nil Client yields a sink that silently discards writes,
// so callers can wire it unconditionally.
type Sink struct {
	client *Client
}

// NewSink wraps a client (which may be nil) as a metrics sink.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// WashCompleted records a finished wash session.
func (s *Sink) WashCompleted(_ context.Context, o *order.Order) {
	if s.client == nil {
		return
	}
	s.client.WriteWashSession(o)
}

// ConsumptionApplied records an inventory mutation.
func (s *Sink) ConsumptionApplied(_ context.Context, res *inventory.ApplyResult) {
	if s.client == nil {
		return
	}
	s.client.WriteConsumption(res)
}
