package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/BiliTheKid/dolpyitcs/internal/metrics"
)

const (
	streamName  = "DOLPYITCS_DLQ"
	dlqSubject  = "dolpyitcs.dlq.events"
	dlqMaxAge   = 7 * 24 * time.Hour
	dlqMaxBytes = 1 << 30
)

// JetStreamQueue writes failed events to NATS JetStream for a centralized
// DLQ. Safe for use across multiple collector instances.
type JetStreamQueue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewJetStreamQueue connects to NATS and ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, natsURL string) (*JetStreamQueue, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"dolpyitcs.dlq.>"},
		MaxAge:    dlqMaxAge,
		MaxBytes:  dlqMaxBytes,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamQueue{nc: nc, js: js}, nil
}

func (q *JetStreamQueue) Write(ctx context.Context, payload []byte, sourceIP string, cause error, reason string) error {
	entry := FailedEvent{
		Timestamp: time.Now().UTC(),
		SourceIP:  sourceIP,
		Payload:   json.RawMessage(payload),
		Error:     cause.Error(),
		Reason:    reason,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.js.Publish(ctx, dlqSubject, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}
	metrics.DLQWrites.Inc()
	return nil
}

func (q *JetStreamQueue) Close() error {
	q.nc.Close()
	return nil
}
