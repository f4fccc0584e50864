// Package aggregate computes windowed snapshots over the event store and
// resolves dashboard range selectors.
//
// Two computation paths exist. Short windows (and any query with a hostname
// filter, which rollups are not keyed by) take a single raw scan over the
// window. Longer windows read the per-day rollup buckets for the interior
// whole UTC days and raw-scan only the partial edge days, so serving the
// "all" range does not reread the full event history for counts, top-N lists,
// histograms or averages. Distinct-visitor/session counts and the recent
// error/event feeds always come from dedicated store queries; they cannot be
// derived from additive day buckets.
package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/logging"
	"github.com/BiliTheKid/dolpyitcs/internal/metrics"
	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
	"github.com/BiliTheKid/dolpyitcs/internal/store"
)

// coarseThreshold is the scan-vs-rollup boundary: windows at or below it are
// answered by a raw scan.
const coarseThreshold = 48 * time.Hour

const (
	recentEventLimit = 20
	recentErrorLimit = 5
)

// Query names one snapshot request.
type Query struct {
	Selector string
	Hostname string
}

// Service computes aggregate snapshots. It keeps the last good snapshot per
// query so a slow or failing store degrades to stale data instead of an
// erroring dashboard.
type Service struct {
	store    store.Store
	log      *logging.Logger
	topN     int
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[Query]cached
}

type cached struct {
	snap *models.Snapshot
	at   time.Time
}

func New(st store.Store, log *logging.Logger, topN int, cacheTTL time.Duration) *Service {
	if topN <= 0 {
		topN = 10
	}
	return &Service{
		store:    st,
		log:      log,
		topN:     topN,
		cacheTTL: cacheTTL,
		cache:    make(map[Query]cached),
	}
}

// Snapshot resolves the query's range selector and computes the aggregate
// snapshot. Unknown selectors fall back to the default range; the snapshot
// reports which range was actually used. On store failure or timeout a
// recent cached snapshot is returned with Stale set; only when no usable
// cache exists does the error propagate.
func (s *Service) Snapshot(ctx context.Context, q Query) (*models.Snapshot, error) {
	tr, rerr := ResolveRange(q.Selector, time.Now())
	if rerr != nil {
		metrics.RejectsTotal.WithLabelValues(string(models.RejectInvalidRange)).Inc()
		s.log.WarnContext(ctx, "invalid range selector, using default",
			logging.Range(q.Selector))
	}
	q.Selector = tr.Selector

	path := "scan"
	if s.useRollups(tr, q) {
		path = "rollup"
	}

	start := time.Now()
	snap, err := s.compute(ctx, tr, q, path == "rollup")
	if err != nil {
		s.log.ErrorContext(ctx, "snapshot computation failed",
			logging.Range(tr.Selector), logging.Error(err))
		if stale, ok := s.cachedSnapshot(q); ok {
			metrics.SnapshotCacheServed.Inc()
			return stale, nil
		}
		return nil, err
	}
	metrics.AggregateDuration.WithLabelValues(tr.Selector, path).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.cache[q] = cached{snap: snap, at: time.Now()}
	s.mu.Unlock()

	return snap, nil
}

func (s *Service) useRollups(tr TimeRange, q Query) bool {
	return q.Hostname == "" && tr.Duration() > coarseThreshold
}

func (s *Service) cachedSnapshot(q Query) (*models.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[q]
	if !ok || (s.cacheTTL > 0 && time.Since(c.at) > s.cacheTTL) {
		return nil, false
	}
	cp := *c.snap
	cp.Stale = true
	return &cp, true
}

func (s *Service) compute(ctx context.Context, tr TimeRange, q Query, coarse bool) (*models.Snapshot, error) {
	if coarse {
		return s.rollupSnapshot(ctx, tr, q)
	}
	return s.scanSnapshot(ctx, tr, q)
}

// scanSnapshot computes everything in one ordered pass over the raw window.
func (s *Service) scanSnapshot(ctx context.Context, tr TimeRange, q Query) (*models.Snapshot, error) {
	acc := newAccumulator()
	visitors := map[string]struct{}{}
	sessions := map[string]struct{}{}
	var recent []models.EventSummary
	var errors []models.ErrorSample

	err := s.store.Scan(ctx, tr.From, tr.To, func(ev *models.Event) error {
		if q.Hostname != "" && ev.Hostname != q.Hostname {
			return nil
		}
		acc.addEvent(ev)
		visitors[ev.VisitorID] = struct{}{}
		sessions[ev.SessionID] = struct{}{}

		// Scan order is timestamp ascending, so keeping a sliding tail
		// yields the newest entries.
		recent = append(recent, summarize(ev))
		if len(recent) > recentEventLimit {
			recent = recent[1:]
		}
		if ev.Type == models.EventTypeError {
			errors = append(errors, models.ErrorSample{
				Timestamp: ev.Timestamp,
				Message:   sampleMessage(ev),
				Path:      ev.Path,
				Browser:   ev.Browser,
			})
			if len(errors) > recentErrorLimit {
				errors = errors[1:]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := s.assemble(tr, q, acc)
	snap.Summary.UniqueVisitors = int64(len(visitors))
	snap.Summary.UniqueSessions = int64(len(sessions))
	snap.RecentEvents = reverseEvents(recent)
	snap.RecentErrors = reverseErrors(errors)
	return snap, nil
}

// rollupSnapshot folds interior whole-day buckets with raw scans over the
// partial edge days, then fills the scan-only fields from targeted queries.
func (s *Service) rollupSnapshot(ctx context.Context, tr TimeRange, q Query) (*models.Snapshot, error) {
	interiorFrom := ceilDay(tr.From)
	interiorTo := rollup.Day(tr.To)

	acc := newAccumulator()

	buckets, err := s.store.Buckets(ctx, interiorFrom, interiorTo)
	if err != nil {
		return nil, err
	}
	for _, b := range buckets {
		acc.addBucket(b)
	}

	scanEdge := func(from, to time.Time) error {
		if !from.Before(to) {
			return nil
		}
		return s.store.Scan(ctx, from, to, func(ev *models.Event) error {
			acc.addEvent(ev)
			return nil
		})
	}
	if err := scanEdge(tr.From, interiorFrom); err != nil {
		return nil, err
	}
	if err := scanEdge(interiorTo, tr.To); err != nil {
		return nil, err
	}

	visitors, sessions, err := s.store.Uniques(ctx, tr.From, tr.To)
	if err != nil {
		return nil, err
	}
	recentErrs, err := s.store.RecentErrors(ctx, tr.From, tr.To, recentErrorLimit)
	if err != nil {
		return nil, err
	}
	recentEvs, err := s.store.RecentEvents(ctx, tr.From, tr.To, recentEventLimit)
	if err != nil {
		return nil, err
	}

	snap := s.assemble(tr, q, acc)
	snap.Summary.UniqueVisitors = visitors
	snap.Summary.UniqueSessions = sessions
	snap.RecentErrors = recentErrs
	snap.RecentEvents = recentEvs
	return snap, nil
}

func (s *Service) assemble(tr TimeRange, q Query, acc *accumulator) *models.Snapshot {
	return &models.Snapshot{
		Range:       tr.Selector,
		Hostname:    q.Hostname,
		GeneratedAt: time.Now().UTC(),
		Summary: models.Summary{
			TotalPageviews:  acc.pageviews,
			TotalEvents:     acc.totalEvents,
			AvgTimeOnPage:   acc.avgTimeOnPage(),
			AvgPageLoadTime: acc.avgPageLoadTime(),
		},
		TopPages:         topN(acc.paths, s.topN),
		TopReferrers:     topReferrers(acc.referrers, s.topN),
		TopClicks:        topN(acc.clicks, s.topN),
		Browsers:         topN(acc.browsers, 0),
		OperatingSystems: topN(acc.oses, 0),
		Devices:          topN(acc.devices, 0),
		ErrorCount:       acc.errorCount,
	}
}

// ceilDay rounds up to the next UTC day boundary; day-aligned inputs and the
// zero time are returned unchanged.
func ceilDay(ts time.Time) time.Time {
	d := rollup.Day(ts)
	if d.Equal(ts.UTC()) {
		return d
	}
	return d.AddDate(0, 0, 1)
}

func summarize(ev *models.Event) models.EventSummary {
	visitor := ev.VisitorID
	if len(visitor) > 10 {
		visitor = visitor[:10]
	}
	return models.EventSummary{
		Type:       ev.Type,
		Path:       ev.Path,
		Timestamp:  ev.Timestamp,
		VisitorID:  visitor,
		Browser:    ev.Browser,
		DeviceType: ev.DeviceType,
	}
}

func sampleMessage(ev *models.Event) string {
	if msg, ok := ev.Data["message"].(string); ok && msg != "" {
		return msg
	}
	return "Unknown error"
}

func reverseEvents(in []models.EventSummary) []models.EventSummary {
	out := make([]models.EventSummary, len(in))
	for i, e := range in {
		out[len(in)-1-i] = e
	}
	return out
}

func reverseErrors(in []models.ErrorSample) []models.ErrorSample {
	out := make([]models.ErrorSample, len(in))
	for i, e := range in {
		out[len(in)-1-i] = e
	}
	return out
}
