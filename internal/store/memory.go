package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
)

// MemoryStore keeps the event log and rollups in process memory. It backs the
// collector when no database is configured (degraded mode: events do not
// survive a restart) and doubles as the store used by unit tests. Semantics
// mirror the Postgres store exactly; rollup maintenance goes through the same
// rollup.Deltas path.
type MemoryStore struct {
	mu      sync.RWMutex
	events  []*models.Event
	rollups *rollup.Table
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rollups: rollup.NewTable()}
}

func (s *MemoryStore) Append(ctx context.Context, ev *models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := *ev
	s.mu.Lock()
	s.nextID++
	cp.ID = s.nextID
	s.events = append(s.events, &cp)
	s.rollups.Add(&cp)
	s.mu.Unlock()

	ev.ID = cp.ID
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, from, to time.Time, fn func(*models.Event) error) error {
	for _, ev := range s.ordered(from, to) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Buckets(ctx context.Context, from, to time.Time) ([]rollup.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rollups.BucketsInRange(from, to), nil
}

func (s *MemoryStore) Uniques(ctx context.Context, from, to time.Time) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	visitors := map[string]struct{}{}
	sessions := map[string]struct{}{}
	for _, ev := range s.ordered(from, to) {
		visitors[ev.VisitorID] = struct{}{}
		sessions[ev.SessionID] = struct{}{}
	}
	return int64(len(visitors)), int64(len(sessions)), nil
}

func (s *MemoryStore) RecentErrors(ctx context.Context, from, to time.Time, limit int) ([]models.ErrorSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.ErrorSample
	evs := s.ordered(from, to)
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		ev := evs[i]
		if ev.Type != models.EventTypeError {
			continue
		}
		out = append(out, models.ErrorSample{
			Timestamp: ev.Timestamp,
			Message:   errorMessage(ev),
			Path:      ev.Path,
			Browser:   ev.Browser,
		})
	}
	return out, nil
}

func (s *MemoryStore) RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]models.EventSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.EventSummary
	evs := s.ordered(from, to)
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		ev := evs[i]
		out = append(out, models.EventSummary{
			Type:       ev.Type,
			Path:       ev.Path,
			Timestamp:  ev.Timestamp,
			VisitorID:  trimVisitor(ev.VisitorID),
			Browser:    ev.Browser,
			DeviceType: ev.DeviceType,
		})
	}
	return out, nil
}

func (s *MemoryStore) Totals(ctx context.Context) (int64, int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	visitors := map[string]struct{}{}
	sessions := map[string]struct{}{}
	for _, ev := range s.events {
		visitors[ev.VisitorID] = struct{}{}
		sessions[ev.SessionID] = struct{}{}
	}
	return int64(len(s.events)), int64(len(visitors)), int64(len(sessions)), nil
}

func (s *MemoryStore) Close() error { return nil }

// ordered returns the events in [from, to) sorted by timestamp then ID.
// Events are immutable after append, so the returned pointers are safe to
// read outside the lock.
func (s *MemoryStore) ordered(from, to time.Time) []*models.Event {
	s.mu.RLock()
	snapshot := s.events
	s.mu.RUnlock()

	out := make([]*models.Event, 0, len(snapshot))
	for _, ev := range snapshot {
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
