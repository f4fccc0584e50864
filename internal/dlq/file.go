package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/metrics"
)

// FileQueue appends failed events as NDJSON, one file per UTC day. Suitable
// for single-instance deployments; multi-instance setups should use the
// JetStream backend instead.
type FileQueue struct {
	dir string

	mu      sync.Mutex
	day     string
	file    *os.File
	written uint64
}

func NewFileQueue(dir string) (*FileQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{dir: dir}, nil
}

func (q *FileQueue) Write(ctx context.Context, payload []byte, sourceIP string, cause error, reason string) error {
	entry := FailedEvent{
		Timestamp: time.Now().UTC(),
		SourceIP:  sourceIP,
		Payload:   json.RawMessage(payload),
		Error:     cause.Error(),
		Reason:    reason,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	line = append(line, '\n')

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.rotate(entry.Timestamp); err != nil {
		return err
	}
	if _, err := q.file.Write(line); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	q.written++
	metrics.DLQWrites.Inc()
	return nil
}

// rotate opens the day file for ts, switching files at UTC midnight.
// Caller holds q.mu.
func (q *FileQueue) rotate(ts time.Time) error {
	day := ts.Format("2006-01-02")
	if q.file != nil && q.day == day {
		return nil
	}
	if q.file != nil {
		q.file.Close()
	}
	path := filepath.Join(q.dir, "failed-"+day+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dlq file: %w", err)
	}
	q.file = f
	q.day = day
	return nil
}

// Written reports how many entries this queue has recorded.
func (q *FileQueue) Written() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}

func (q *FileQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.file != nil {
		err := q.file.Close()
		q.file = nil
		return err
	}
	return nil
}
