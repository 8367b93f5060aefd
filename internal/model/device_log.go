package model

import "time"

// EventUnitsConsumed is the log event aggregated by usage reports.
const EventUnitsConsumed = "units_consumed"

// DeviceLog mirrors the `device_logs` table. Logs are append-only: they are
// never updated or deleted by the normal request flow.
//
// Fields:
//  ID        – primary key identifier (AUTO_INCREMENT).
//  DeviceID  – references devices.id; ownership is checked before insert.
//  Event     – free-text event name (e.g. "units_consumed").
//  Value     – numeric reading attached to the event.
//  Timestamp – event time, defaults to creation time.
type DeviceLog struct {
	ID        uint64    // device_logs.id
	DeviceID  uint64    // device_logs.device_id
	Event     string    // device_logs.event
	Value     float64   // device_logs.value
	Timestamp time.Time // device_logs.timestamp
}
