package aggregate

import (
	"math"
	"sort"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
	"github.com/BiliTheKid/dolpyitcs/internal/rollup"
)

// accumulator folds events or rollup buckets into the grouped counts a
// snapshot is built from. The two input paths feed the same maps, so the
// scan and rollup aggregation paths agree by construction.
type accumulator struct {
	totalEvents   int64
	pageviews     int64
	errorCount    int64
	paths         map[string]int64
	referrers     map[string]int64
	browsers      map[string]int64
	oses          map[string]int64
	devices       map[string]int64
	clicks        map[string]int64
	timeOnPageSum float64
	timeOnPageN   int64
	pageLoadSum   float64
	pageLoadN     int64
}

func newAccumulator() *accumulator {
	return &accumulator{
		paths:     make(map[string]int64),
		referrers: make(map[string]int64),
		browsers:  make(map[string]int64),
		oses:      make(map[string]int64),
		devices:   make(map[string]int64),
		clicks:    make(map[string]int64),
	}
}

func (a *accumulator) addEvent(ev *models.Event) {
	a.totalEvents++
	switch ev.Type {
	case models.EventTypePageview:
		a.pageviews++
		a.paths[rollup.PathLabel(ev)]++
		a.referrers[rollup.ReferrerLabel(ev)]++
		a.browsers[label(ev.Browser)]++
		a.oses[label(ev.OS)]++
		a.devices[label(ev.DeviceType)]++
	case models.EventTypeClick:
		if l := rollup.ClickLabel(ev); l != "" {
			a.clicks[l]++
		}
	case models.EventTypeError:
		a.errorCount++
	case models.EventTypeTimeOnPage:
		if v, ok := rollup.TimeOnPage(ev); ok {
			a.timeOnPageSum += v
			a.timeOnPageN++
		}
	case models.EventTypePerformance:
		if v, ok := rollup.PageLoadTime(ev); ok {
			a.pageLoadSum += v
			a.pageLoadN++
		}
	}
}

func (a *accumulator) addBucket(b rollup.Bucket) {
	switch b.Dimension {
	case rollup.DimCount:
		a.totalEvents += b.Count
		if b.EventType == models.EventTypePageview {
			a.pageviews += b.Count
		}
		if b.EventType == models.EventTypeError {
			a.errorCount += b.Count
		}
	case rollup.DimPath:
		a.paths[b.Label] += b.Count
	case rollup.DimReferrer:
		a.referrers[b.Label] += b.Count
	case rollup.DimBrowser:
		a.browsers[b.Label] += b.Count
	case rollup.DimOS:
		a.oses[b.Label] += b.Count
	case rollup.DimDevice:
		a.devices[b.Label] += b.Count
	case rollup.DimClick:
		a.clicks[b.Label] += b.Count
	case rollup.DimTimeOnPage:
		a.timeOnPageSum += b.Total
		a.timeOnPageN += b.Count
	case rollup.DimPageLoad:
		a.pageLoadSum += b.Total
		a.pageLoadN += b.Count
	}
}

func (a *accumulator) avgTimeOnPage() float64 {
	return avg(a.timeOnPageSum, a.timeOnPageN)
}

func (a *accumulator) avgPageLoadTime() float64 {
	return avg(a.pageLoadSum, a.pageLoadN)
}

func avg(sum float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	// Round to two decimals so the scan and rollup paths cannot drift apart
	// in the last floating-point bit.
	return math.Round(sum/float64(n)*100) / 100
}

// topN returns the n highest-count labels, ties broken lexicographically on
// the label. The ordering is total, so results are deterministic for any
// input set.
func topN(m map[string]int64, n int) []models.LabelCount {
	out := make([]models.LabelCount, 0, len(m))
	for l, c := range m {
		out = append(out, models.LabelCount{Label: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// topReferrers applies the direct-traffic rule: "direct" is excluded from the
// list unless it is itself the top entry.
func topReferrers(m map[string]int64, n int) []models.LabelCount {
	all := topN(m, 0)
	if len(all) == 0 {
		return all
	}
	if all[0].Label != rollup.DirectReferrer {
		filtered := all[:0:0]
		for _, e := range all {
			if e.Label != rollup.DirectReferrer {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

func label(s string) string {
	if s == "" {
		return rollup.UnknownLabel
	}
	return s
}
