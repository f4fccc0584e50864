package models

import "fmt"

// RejectReason classifies client-payload problems. Rejects are never surfaced
// to the tracker as failures; they are logged and counted server-side.
type RejectReason string

const (
	RejectMalformedPayload RejectReason = "malformed_payload"
	RejectTooLarge         RejectReason = "too_large"
	RejectMissingIdentity  RejectReason = "missing_identity"
	RejectInvalidRange     RejectReason = "invalid_range"
)

// Reject is the error returned when an inbound payload or query parameter is
// discarded. It satisfies error so it can flow through normal return paths.
type Reject struct {
	Reason RejectReason
	Detail string
}

func (r *Reject) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// NewReject builds a Reject with a formatted detail message.
func NewReject(reason RejectReason, format string, args ...any) *Reject {
	return &Reject{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
