package model

import "time"

// Device type enum values accepted by the API.
const (
	DeviceTypeLight      = "light"
	DeviceTypeThermostat = "thermostat"
	DeviceTypeMeter      = "meter"
	DeviceTypeCamera     = "camera"
	DeviceTypeLock       = "lock"
)

// Device status enum values. A device defaults to inactive on creation and
// is flipped back to inactive by the deactivation sweep when its heartbeat
// goes stale.
const (
	DeviceStatusActive   = "active"
	DeviceStatusInactive = "inactive"
)

// Device mirrors the `devices` table. A device is owned by exactly one user
// and is only visible to and mutable by that owner.
//
// Fields:
//  ID           – primary key identifier (AUTO_INCREMENT).
//  Name         – human readable device name.
//  Type         – one of the DeviceType* constants.
//  Status       – "active" or "inactive".
//  OwnerID      – references users.id.
//  LastActiveAt – time of the last heartbeat (nil until the first one).
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type Device struct {
	ID           uint64     // devices.id
	Name         string     // devices.name
	Type         string     // devices.type
	Status       string     // devices.status
	OwnerID      uint64     // devices.owner_id
	LastActiveAt *time.Time // devices.last_active_at (nullable)
	CreatedAt    time.Time  // devices.created_at
	UpdatedAt    time.Time  // devices.updated_at
}

// ValidDeviceType reports whether t is a known device type.
func ValidDeviceType(t string) bool {
	switch t {
	case DeviceTypeLight, DeviceTypeThermostat, DeviceTypeMeter, DeviceTypeCamera, DeviceTypeLock:
		return true
	}
	return false
}

// ValidDeviceStatus reports whether s is a known device status.
func ValidDeviceStatus(s string) bool {
	return s == DeviceStatusActive || s == DeviceStatusInactive
}
