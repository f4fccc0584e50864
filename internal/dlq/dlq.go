// Package dlq captures events whose durable append failed, so a store outage
// never turns acknowledged tracker beacons into silent data loss. Entries
// hold the raw payload and can be replayed once the store recovers.
package dlq

import (
	"context"
	"encoding/json"
	"time"
)

// FailedEvent is one dead-lettered payload.
type FailedEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	SourceIP  string          `json:"source_ip,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Reason    string          `json:"reason"`
}

// Writer records failed events. Implementations must be safe for concurrent
// use from many ingestion requests.
type Writer interface {
	Write(ctx context.Context, payload []byte, sourceIP string, cause error, reason string) error
	Close() error
}
