package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/washlogic/washlogic-core/internal/infrastructure/mqtt"
)

// wireEvent is the envelope devices publish on washlogic/event topics.
// The inner payload is stored as received and parsed later in the pipeline.
type wireEvent struct {
	DeviceTS time.Time       `json:"device_ts"`
	Payload  json.RawMessage `json:"payload"`
}

// EventHandler returns an MQTT message handler that ingests device
// telemetry into the event store.
//
// The device ID and event kind come from the topic; the envelope carries
// the device timestamp and the kind-specific payload. A missing device
// timestamp falls back to receipt time, which keeps the idempotence key
// stable only for well-behaved devices; retransmissions without a
// timestamp become distinct events.
//
// Processing is deliberately not done here: the handler only accepts the
// event, so a slow pipeline never blocks broker delivery.
func (c *Coordinator) EventHandler() mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		deviceID, kind, err := mqtt.ParseEventTopic(topic)
		if err != nil {
			return err
		}

		var env wireEvent
		if err := json.Unmarshal(payload, &env); err != nil {
			return fmt.Errorf("decoding event envelope: %w", err)
		}
		if env.DeviceTS.IsZero() {
			env.DeviceTS = time.Now().UTC()
		}
		if len(env.Payload) == 0 {
			env.Payload = json.RawMessage("{}")
		}

		ctx := context.Background()
		if c.cfg.EventTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.EventTimeout)
			defer cancel()
		}

		id, err := c.Ingest(ctx, deviceID, kind, env.Payload, env.DeviceTS)
		if err != nil {
			return fmt.Errorf("ingesting %s from %s: %w", kind, deviceID, err)
		}

		c.logger.Debug("event accepted", "event_id", id, "device_id", deviceID, "kind", kind)
		return nil
	}
}
