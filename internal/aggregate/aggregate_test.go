package aggregate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BiliTheKid/dolpyitcs/internal/logging"
	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
	"github.com/BiliTheKid/dolpyitcs/internal/store"
)

func testService(st store.Store) *Service {
	return New(st, logging.Default(), 10, 5*time.Minute)
}

func seedPageview(t *testing.T, st store.Store, ts time.Time, visitor, session, path string) {
	t.Helper()
	err := st.Append(context.Background(), &models.Event{
		Type:       models.EventTypePageview,
		Timestamp:  ts,
		VisitorID:  visitor,
		SessionID:  session,
		Path:       path,
		Hostname:   "demo.example.com",
		Referrer:   "https://www.google.com/",
		Browser:    "Chrome",
		OS:         "macOS",
		DeviceType: "desktop",
	})
	require.NoError(t, err)
}

func TestSnapshot_PageviewCounts(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()

	for i, path := range []string{"/home", "/home", "/home", "/pricing"} {
		seedPageview(t, st, now.Add(-time.Duration(i+1)*time.Minute), "v1", "s1", path)
	}

	snap, err := testService(st).Snapshot(context.Background(), Query{Selector: "24h"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), snap.Summary.TotalPageviews)
	assert.Equal(t, int64(1), snap.Summary.UniqueVisitors)
	assert.Equal(t, int64(1), snap.Summary.UniqueSessions)
	require.Len(t, snap.TopPages, 2)
	assert.Equal(t, models.LabelCount{Label: "/home", Count: 3}, snap.TopPages[0])
	assert.Equal(t, models.LabelCount{Label: "/pricing", Count: 1}, snap.TopPages[1])
	assert.False(t, snap.Stale)
	assert.Equal(t, "24h", snap.Range)
}

func TestSnapshot_ErrorSurfacing(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()

	seedPageview(t, st, now.Add(-2*time.Minute), "v1", "s1", "/app")
	require.NoError(t, st.Append(context.Background(), &models.Event{
		Type:      models.EventTypeError,
		Timestamp: now.Add(-time.Minute),
		VisitorID: "v1",
		SessionID: "s1",
		Path:      "/app",
		Browser:   "Firefox",
		Data:      map[string]any{"message": "Uncaught TypeError: x is undefined"},
	}))

	snap, err := testService(st).Snapshot(context.Background(), Query{Selector: "24h"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), snap.ErrorCount)
	require.Len(t, snap.RecentErrors, 1)
	// The feed carries the message verbatim, not the truncated bucket label.
	assert.Equal(t, "Uncaught TypeError: x is undefined", snap.RecentErrors[0].Message)
	assert.Equal(t, "/app", snap.RecentErrors[0].Path)
	assert.Equal(t, "Firefox", snap.RecentErrors[0].Browser)
}

func TestSnapshot_UnknownSelectorUsesDefault(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedPageview(t, st, now.Add(-time.Hour), "v1", "s1", "/")

	snap, err := testService(st).Snapshot(context.Background(), Query{Selector: "90d"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSelector, snap.Range)
	assert.Equal(t, int64(1), snap.Summary.TotalPageviews)
}

func TestSnapshot_HostnameFilter(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	ctx := context.Background()

	seedPageview(t, st, now.Add(-time.Minute), "v1", "s1", "/")
	require.NoError(t, st.Append(ctx, &models.Event{
		Type:      models.EventTypePageview,
		Timestamp: now.Add(-2 * time.Minute),
		VisitorID: "v2",
		SessionID: "s2",
		Path:      "/other",
		Hostname:  "other.example.com",
	}))

	snap, err := testService(st).Snapshot(ctx, Query{Selector: "24h", Hostname: "demo.example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Summary.TotalPageviews)
	assert.Equal(t, int64(1), snap.Summary.UniqueVisitors)
	assert.Equal(t, "demo.example.com", snap.Hostname)
}

func TestSnapshot_DirectReferrerRule(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	ctx := context.Background()

	add := func(referrer string, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, st.Append(ctx, &models.Event{
				Type:      models.EventTypePageview,
				Timestamp: now.Add(-time.Duration(i+1) * time.Second),
				VisitorID: "v1",
				SessionID: "s1",
				Referrer:  referrer,
			}))
		}
	}

	// Google dominates: direct must be excluded from the list.
	add("https://www.google.com/", 5)
	add("", 3)

	snap, err := testService(st).Snapshot(ctx, Query{Selector: "24h"})
	require.NoError(t, err)
	for _, r := range snap.TopReferrers {
		assert.NotEqual(t, rollup.DirectReferrer, r.Label)
	}
	require.NotEmpty(t, snap.TopReferrers)
	assert.Equal(t, "https://www.google.com/", snap.TopReferrers[0].Label)
}

func TestSnapshot_DirectReferrerKeptWhenTop(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Append(ctx, &models.Event{
			Type:      models.EventTypePageview,
			Timestamp: now.Add(-time.Duration(i+1) * time.Second),
			VisitorID: "v1",
			SessionID: "s1",
		}))
	}
	require.NoError(t, st.Append(ctx, &models.Event{
		Type:      models.EventTypePageview,
		Timestamp: now.Add(-time.Minute),
		VisitorID: "v1",
		SessionID: "s1",
		Referrer:  "https://www.google.com/",
	}))

	snap, err := testService(st).Snapshot(ctx, Query{Selector: "24h"})
	require.NoError(t, err)
	require.NotEmpty(t, snap.TopReferrers)
	assert.Equal(t, rollup.DirectReferrer, snap.TopReferrers[0].Label)
}

func TestSnapshot_AverageMetrics(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	ctx := context.Background()

	for i, v := range []float64{10, 20, 31} {
		require.NoError(t, st.Append(ctx, &models.Event{
			Type:      models.EventTypeTimeOnPage,
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
			VisitorID: "v1",
			SessionID: "s1",
			Data:      map[string]any{"timeOnPage": v},
		}))
	}
	require.NoError(t, st.Append(ctx, &models.Event{
		Type:      models.EventTypePerformance,
		Timestamp: now.Add(-time.Minute),
		VisitorID: "v1",
		SessionID: "s1",
		Data:      map[string]any{"performance": map[string]any{"pageLoadTime": 850.0}},
	}))

	snap, err := testService(st).Snapshot(ctx, Query{Selector: "24h"})
	require.NoError(t, err)
	assert.InDelta(t, 20.33, snap.Summary.AvgTimeOnPage, 0.001)
	assert.InDelta(t, 850.0, snap.Summary.AvgPageLoadTime, 0.001)
}

func TestSnapshot_RecentEventsNewestFirstCapped(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()

	for i := 0; i < 25; i++ {
		seedPageview(t, st, now.Add(-time.Duration(25-i)*time.Second), "visitor-abcdef123456", "s1", fmt.Sprintf("/p%d", i))
	}

	snap, err := testService(st).Snapshot(context.Background(), Query{Selector: "24h"})
	require.NoError(t, err)
	require.Len(t, snap.RecentEvents, recentEventLimit)
	assert.Equal(t, "/p24", snap.RecentEvents[0].Path)
	assert.Equal(t, "/p23", snap.RecentEvents[1].Path)
	assert.Equal(t, "visitor-ab", snap.RecentEvents[0].VisitorID)
}

// Multi-day data must aggregate identically whether the window is answered by
// a raw scan or by interior day buckets plus edge scans.
func TestScanAndRollupPathsAgree(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	svc := testService(st)

	base := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	paths := []string{"/", "/pricing", "/docs", "/"}
	for day := 0; day < 6; day++ {
		for i, p := range paths {
			seedPageview(t, st,
				base.AddDate(0, 0, day).Add(time.Duration(i+1)*time.Hour),
				fmt.Sprintf("v%d", day), fmt.Sprintf("s%d", day), p)
		}
		require.NoError(t, st.Append(ctx, &models.Event{
			Type:      models.EventTypeTimeOnPage,
			Timestamp: base.AddDate(0, 0, day).Add(5 * time.Hour),
			VisitorID: fmt.Sprintf("v%d", day),
			SessionID: fmt.Sprintf("s%d", day),
			Data:      map[string]any{"timeOnPage": float64(10 * (day + 1))},
		}))
	}

	// Window with partial edge days on both sides.
	tr := TimeRange{
		Selector: "7d",
		From:     base.Add(30 * time.Minute),
		To:       base.AddDate(0, 0, 5).Add(90 * time.Minute),
	}

	fine, err := svc.compute(ctx, tr, Query{Selector: tr.Selector}, false)
	require.NoError(t, err)
	coarse, err := svc.compute(ctx, tr, Query{Selector: tr.Selector}, true)
	require.NoError(t, err)

	assert.Equal(t, fine.Summary.TotalPageviews, coarse.Summary.TotalPageviews)
	assert.Equal(t, fine.Summary.TotalEvents, coarse.Summary.TotalEvents)
	assert.Equal(t, fine.Summary.UniqueVisitors, coarse.Summary.UniqueVisitors)
	assert.Equal(t, fine.Summary.UniqueSessions, coarse.Summary.UniqueSessions)
	assert.Equal(t, fine.Summary.AvgTimeOnPage, coarse.Summary.AvgTimeOnPage)
	assert.Equal(t, fine.TopPages, coarse.TopPages)
	assert.Equal(t, fine.TopReferrers, coarse.TopReferrers)
	assert.Equal(t, fine.Browsers, coarse.Browsers)
}

type failingStore struct {
	store.Store
	fail bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Scan(ctx context.Context, from, to time.Time, fn func(*models.Event) error) error {
	if f.fail {
		return errStoreDown
	}
	return f.Store.Scan(ctx, from, to, fn)
}

func TestSnapshot_ServesStaleCacheOnStoreFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Now().UTC()
	fs := &failingStore{Store: mem}
	svc := testService(fs)
	ctx := context.Background()

	seedPageview(t, mem, now.Add(-time.Minute), "v1", "s1", "/")

	q := Query{Selector: "24h"}
	first, err := svc.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.False(t, first.Stale)

	fs.fail = true
	second, err := svc.Snapshot(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.Stale)
	assert.Equal(t, first.Summary.TotalPageviews, second.Summary.TotalPageviews)
}

func TestSnapshot_ErrorWhenNoCache(t *testing.T) {
	fs := &failingStore{Store: store.NewMemoryStore(), fail: true}
	svc := testService(fs)

	_, err := svc.Snapshot(context.Background(), Query{Selector: "24h"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestSnapshot_CacheExpiry(t *testing.T) {
	mem := store.NewMemoryStore()
	fs := &failingStore{Store: mem}
	svc := New(fs, logging.Default(), 10, 50*time.Millisecond)
	ctx := context.Background()

	seedPageview(t, mem, time.Now().UTC().Add(-time.Minute), "v1", "s1", "/")

	q := Query{Selector: "24h"}
	_, err := svc.Snapshot(ctx, q)
	require.NoError(t, err)

	fs.fail = true
	time.Sleep(80 * time.Millisecond)

	_, err = svc.Snapshot(ctx, q)
	require.Error(t, err, "expired cache entries must not be served")
}

func TestCeilDay(t *testing.T) {
	mid := time.Date(2025, 11, 10, 7, 30, 0, 0, time.UTC)
	aligned := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 11, 11, 0, 0, 0, 0, time.UTC), ceilDay(mid))
	assert.Equal(t, aligned, ceilDay(aligned))
	assert.True(t, ceilDay(time.Time{}).IsZero() || ceilDay(time.Time{}).Equal(rollup.Day(time.Time{})))
}
