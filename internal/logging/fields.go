package logging

import "log/slog"

// Common field names for consistent logging across the collector.
const (
	FieldService   = "service"
	FieldIP        = "ip"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldReason    = "reason"
	FieldRange     = "range"
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

// EventID returns a slog attribute for a stored event ID.
func EventID(id int64) slog.Attr {
	return slog.Int64(FieldEventID, id)
}

// EventType returns a slog attribute for the event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Reason returns a slog attribute for an ingestion reject reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Range returns a slog attribute for a query range selector.
func Range(r string) slog.Attr {
	return slog.String(FieldRange, r)
}
