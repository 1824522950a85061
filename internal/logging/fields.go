package logging

import "log/slog"

// Common field names for consistent logging across the bridge.
const (
	FieldService     = "service"
	FieldIP          = "ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldCanonicalID = "canonical_uuid"
	FieldRawID       = "raw_uuid"
	FieldDeviceID    = "device_id"
	FieldOrigin      = "origin"
	FieldState       = "state"
	FieldAttempt     = "attempt"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// CanonicalID returns a slog attribute for the canonical device id.
func CanonicalID(id string) slog.Attr {
	return slog.String(FieldCanonicalID, id)
}

// RawID returns a slog attribute for the identifier as the device sent it.
func RawID(id string) slog.Attr {
	return slog.String(FieldRawID, id)
}

// DeviceID returns a slog attribute for the downstream device id.
func DeviceID(id string) slog.Attr {
	return slog.String(FieldDeviceID, id)
}

// Origin returns a slog attribute for the payload origin.
func Origin(origin string) slog.Attr {
	return slog.String(FieldOrigin, origin)
}

// State returns a slog attribute for a reconciliation state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Attempt returns a slog attribute for a delivery attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}
