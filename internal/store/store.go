// Package store persists the append-only event log and its per-day rollup
// buckets. Events are immutable once accepted: corrections happen by writing
// new events, never by editing history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
)

// ErrWriteFailed wraps persistence failures on Append. The ingestion endpoint
// drops the event (after diverting it to the DLQ) instead of failing the
// tracker request.
var ErrWriteFailed = errors.New("event write failed")

// Store is the event log plus its rollup side-structure. Append is durable
// before it returns on persistent backends; reads are safe to run
// concurrently with writes and may or may not observe an in-flight append.
type Store interface {
	// Append assigns the event its ID and persists it together with its
	// rollup increments, atomically at single-event granularity.
	Append(ctx context.Context, ev *models.Event) error

	// Scan streams events with timestamp in [from, to) to fn, ordered by
	// timestamp then ID ascending. Returning an error from fn stops the scan.
	Scan(ctx context.Context, from, to time.Time, fn func(*models.Event) error) error

	// Buckets returns rollup rows for days in [from, to).
	Buckets(ctx context.Context, from, to time.Time) ([]rollup.Bucket, error)

	// Uniques counts distinct visitors and sessions in [from, to).
	Uniques(ctx context.Context, from, to time.Time) (visitors, sessions int64, err error)

	// RecentErrors returns the most recent error events in [from, to),
	// newest first, messages verbatim.
	RecentErrors(ctx context.Context, from, to time.Time, limit int) ([]models.ErrorSample, error)

	// RecentEvents returns trimmed summaries of the latest events in
	// [from, to), newest first.
	RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]models.EventSummary, error)

	// Totals reports all-time log counts for readiness reporting.
	Totals(ctx context.Context) (events, visitors, sessions int64, err error)

	Close() error
}

// visitorDisplayLen bounds how much of a visitor ID leaves the server in
// recent-event summaries.
const visitorDisplayLen = 10

func trimVisitor(id string) string {
	if len(id) > visitorDisplayLen {
		return id[:visitorDisplayLen]
	}
	return id
}

func errorMessage(ev *models.Event) string {
	if msg, ok := ev.Data["message"].(string); ok && msg != "" {
		return msg
	}
	return "Unknown error"
}
