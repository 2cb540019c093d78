// Package device models the wash-device fleet and its heartbeat liveness.
//
// A device is online while it heartbeats within the configured liveness
// window. The liveness sweep (run by the reconciliation coordinator) moves
// silent devices offline and raises device_offline alerts; the next
// heartbeat moves them back. Devices in maintenance are exempt from the
// sweep.
package device
