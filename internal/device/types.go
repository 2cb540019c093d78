package device

import "time"

// Status is the operational state of a wash device.
type Status string

// Device statuses. Online and offline are driven by heartbeat liveness;
// maintenance is set administratively and exempts the device from liveness
// sweeps.
const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusMaintenance Status = "maintenance"
)

// Device is one self-service wash bay or machine at a store.
type Device struct {
	ID         string     `json:"id"`
	StoreID    string     `json:"store_id"`
	Name       string     `json:"name"`
	Model      *string    `json:"model,omitempty"`
	Status     Status     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
