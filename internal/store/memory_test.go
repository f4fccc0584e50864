package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
)

var testBase = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)

func pageview(ts time.Time, visitor, session, path string) *models.Event {
	return &models.Event{
		Type:       models.EventTypePageview,
		Timestamp:  ts,
		VisitorID:  visitor,
		SessionID:  session,
		Path:       path,
		Hostname:   "demo.example.com",
		Browser:    "Chrome",
		OS:         "macOS",
		DeviceType: "desktop",
	}
}

func TestMemoryStore_AppendAssignsSequentialIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ev := pageview(testBase.Add(time.Duration(i)*time.Minute), "v1", "s1", "/")
		require.NoError(t, s.Append(ctx, ev))
		assert.Equal(t, int64(i+1), ev.ID)
	}
}

func TestMemoryStore_ScanReturnsTimestampOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Append out of timestamp order; Scan must still return ascending.
	offsets := []time.Duration{3 * time.Minute, time.Minute, 4 * time.Minute, 2 * time.Minute}
	for _, off := range offsets {
		require.NoError(t, s.Append(ctx, pageview(testBase.Add(off), "v1", "s1", "/")))
	}

	var got []time.Time
	err := s.Scan(ctx, testBase, testBase.Add(time.Hour), func(ev *models.Event) error {
		got = append(got, ev.Timestamp)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.True(t, !got[i].Before(got[i-1]), "scan order regressed at index %d", i)
	}
}

func TestMemoryStore_ScanRangeIsHalfOpen(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, pageview(testBase, "v1", "s1", "/")))
	require.NoError(t, s.Append(ctx, pageview(testBase.Add(time.Hour), "v1", "s1", "/")))

	var count int
	err := s.Scan(ctx, testBase, testBase.Add(time.Hour), func(*models.Event) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upper bound must be exclusive")
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ev := pageview(testBase.Add(time.Duration(i)*time.Second),
					fmt.Sprintf("visitor-%d", w), fmt.Sprintf("session-%d", w), "/")
				if err := s.Append(ctx, ev); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	total, visitors, sessions, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), total)
	assert.Equal(t, int64(workers), visitors)
	assert.Equal(t, int64(workers), sessions)

	// IDs must be unique.
	seen := make(map[int64]bool)
	err = s.Scan(ctx, time.Time{}, testBase.Add(time.Hour), func(ev *models.Event) error {
		if seen[ev.ID] {
			t.Errorf("duplicate event ID %d", ev.ID)
		}
		seen[ev.ID] = true
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RollupsMatchRawScan(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	paths := []string{"/", "/pricing", "/", "/docs", "/", "/pricing"}
	for i, p := range paths {
		require.NoError(t, s.Append(ctx, pageview(testBase.Add(time.Duration(i)*time.Minute), "v1", "s1", p)))
	}

	from := rollup.Day(testBase)
	to := from.Add(24 * time.Hour)

	buckets, err := s.Buckets(ctx, from, to)
	require.NoError(t, err)

	var rollupCount int64
	pathCounts := make(map[string]int64)
	for _, b := range buckets {
		if b.Dimension == rollup.DimCount && b.EventType == models.EventTypePageview {
			rollupCount = b.Count
		}
		if b.Dimension == rollup.DimPath {
			pathCounts[b.Label] = b.Count
		}
	}

	var scanCount int64
	err = s.Scan(ctx, from, to, func(ev *models.Event) error {
		if ev.Type == models.EventTypePageview {
			scanCount++
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, scanCount, rollupCount, "rollup count must equal raw scan count")
	assert.Equal(t, int64(3), pathCounts["/"])
	assert.Equal(t, int64(2), pathCounts["/pricing"])
	assert.Equal(t, int64(1), pathCounts["/docs"])
}

func TestMemoryStore_RecentErrorsNewestFirstVerbatim(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev := pageview(testBase.Add(time.Duration(i)*time.Minute), "v1", "s1", "/app")
		ev.Type = models.EventTypeError
		ev.Data = map[string]any{"message": fmt.Sprintf("boom %d", i)}
		require.NoError(t, s.Append(ctx, ev))
	}

	errs, err := s.RecentErrors(ctx, testBase, testBase.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "boom 2", errs[0].Message)
	assert.Equal(t, "boom 1", errs[1].Message)
	assert.Equal(t, "/app", errs[0].Path)
}

func TestMemoryStore_RecentEventsTrimsVisitor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ev := pageview(testBase, "visitor-abcdef123456", "s1", "/")
	require.NoError(t, s.Append(ctx, ev))

	recent, err := s.RecentEvents(ctx, testBase, testBase.Add(time.Hour), 20)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "visitor-ab", recent[0].VisitorID)
	assert.Len(t, recent[0].VisitorID, 10)
}

func TestMemoryStore_AppendCopiesEvent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ev := pageview(testBase, "v1", "s1", "/")
	require.NoError(t, s.Append(ctx, ev))

	// Mutating the caller's struct must not affect the stored copy.
	ev.Path = "/mutated"

	err := s.Scan(ctx, testBase, testBase.Add(time.Hour), func(stored *models.Event) error {
		assert.Equal(t, "/", stored.Path)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_Uniques(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, pageview(testBase, "v1", "s1", "/")))
	require.NoError(t, s.Append(ctx, pageview(testBase.Add(time.Minute), "v1", "s2", "/")))
	require.NoError(t, s.Append(ctx, pageview(testBase.Add(2*time.Minute), "v2", "s3", "/")))
	// Outside the window.
	require.NoError(t, s.Append(ctx, pageview(testBase.Add(48*time.Hour), "v9", "s9", "/")))

	visitors, sessions, err := s.Uniques(ctx, testBase, testBase.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), visitors)
	assert.Equal(t, int64(3), sessions)
}
