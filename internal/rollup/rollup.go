// Package rollup maintains the per-day bucket counts that sit alongside the
// raw event log. Buckets are derived state: they are updated incrementally as
// events are appended and can always be rebuilt from the log. Both store
// implementations route write-time maintenance through Deltas so the rollup
// semantics cannot diverge between them.
package rollup

import (
	"sort"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
)

// Bucket dimensions. The empty dimension is the plain per-type event count;
// metric dimensions (time_on_page, page_load_time) accumulate a value sum in
// Total so averages are derivable without touching raw events.
const (
	DimCount      = ""
	DimPath       = "path"
	DimReferrer   = "referrer"
	DimBrowser    = "browser"
	DimOS         = "os"
	DimDevice     = "device"
	DimClick      = "click"
	DimError      = "error"
	DimTimeOnPage = "time_on_page"
	DimPageLoad   = "page_load_time"
)

// Label fallbacks shared with the aggregator's raw-scan path.
const (
	DirectReferrer = "direct"
	UnknownLabel   = "Unknown"
)

// Key identifies one bucket.
type Key struct {
	Day       time.Time
	EventType models.EventType
	Dimension string
	Label     string
}

// Bucket is one rollup row: a count, and for metric dimensions a value sum.
type Bucket struct {
	Day       time.Time
	EventType models.EventType
	Dimension string
	Label     string
	Count     int64
	Total     float64
}

// Day truncates a timestamp to its UTC day bucket.
func Day(ts time.Time) time.Time {
	return ts.UTC().Truncate(24 * time.Hour)
}

// Deltas returns the bucket increments one event contributes. Dimension
// breakdowns (path, referrer, browser, os, device) follow pageviews only;
// other event types contribute their per-type count plus their own
// dimension (click targets, error messages, metric sums).
func Deltas(ev *models.Event) []Bucket {
	day := Day(ev.Timestamp)
	out := []Bucket{{Day: day, EventType: ev.Type, Dimension: DimCount, Count: 1}}

	switch ev.Type {
	case models.EventTypePageview:
		out = append(out,
			Bucket{Day: day, EventType: ev.Type, Dimension: DimPath, Label: PathLabel(ev), Count: 1},
			Bucket{Day: day, EventType: ev.Type, Dimension: DimReferrer, Label: ReferrerLabel(ev), Count: 1},
			Bucket{Day: day, EventType: ev.Type, Dimension: DimBrowser, Label: orUnknown(ev.Browser), Count: 1},
			Bucket{Day: day, EventType: ev.Type, Dimension: DimOS, Label: orUnknown(ev.OS), Count: 1},
			Bucket{Day: day, EventType: ev.Type, Dimension: DimDevice, Label: orUnknown(ev.DeviceType), Count: 1},
		)
	case models.EventTypeClick:
		if label := ClickLabel(ev); label != "" {
			out = append(out, Bucket{Day: day, EventType: ev.Type, Dimension: DimClick, Label: label, Count: 1})
		}
	case models.EventTypeError:
		out = append(out, Bucket{Day: day, EventType: ev.Type, Dimension: DimError, Label: ErrorMessage(ev), Count: 1})
	case models.EventTypeTimeOnPage:
		if v, ok := TimeOnPage(ev); ok {
			out = append(out, Bucket{Day: day, EventType: ev.Type, Dimension: DimTimeOnPage, Count: 1, Total: v})
		}
	case models.EventTypePerformance:
		if v, ok := PageLoadTime(ev); ok {
			out = append(out, Bucket{Day: day, EventType: ev.Type, Dimension: DimPageLoad, Count: 1, Total: v})
		}
	}

	return out
}

// Table accumulates buckets in memory. The memory store keeps one as its
// rollup structure; the aggregator uses one to fold partial edge days into
// the coarse path.
type Table struct {
	m map[Key]*Bucket
}

func NewTable() *Table {
	return &Table{m: make(map[Key]*Bucket)}
}

// Add folds one event's deltas into the table.
func (t *Table) Add(ev *models.Event) {
	for _, d := range Deltas(ev) {
		t.Merge(d)
	}
}

// Merge folds one bucket increment into the table.
func (t *Table) Merge(b Bucket) {
	k := Key{Day: b.Day, EventType: b.EventType, Dimension: b.Dimension, Label: b.Label}
	cur, ok := t.m[k]
	if !ok {
		cur = &Bucket{Day: b.Day, EventType: b.EventType, Dimension: b.Dimension, Label: b.Label}
		t.m[k] = cur
	}
	cur.Count += b.Count
	cur.Total += b.Total
}

// Buckets returns the accumulated rows in a stable order: day, event type,
// dimension, label ascending.
func (t *Table) Buckets() []Bucket {
	out := make([]Bucket, 0, len(t.m))
	for _, b := range t.m {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		if out[i].Dimension != out[j].Dimension {
			return out[i].Dimension < out[j].Dimension
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// BucketsInRange filters to buckets whose day lies in [from, to).
func (t *Table) BucketsInRange(from, to time.Time) []Bucket {
	all := t.Buckets()
	out := all[:0:0]
	for _, b := range all {
		if b.Day.Before(from) || !b.Day.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownLabel
	}
	return s
}
