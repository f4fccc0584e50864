package aggregate

import (
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
)

// DefaultSelector is the range used when the dashboard asks for nothing or
// for something unrecognized. Queries never fail on a bad selector; they fall
// back here, mirroring the forgiving-ingestion philosophy on the read side.
const DefaultSelector = "7d"

// TimeRange is a half-open window [From, To) anchored at query time.
// A zero From means "all history".
type TimeRange struct {
	Selector string
	From     time.Time
	To       time.Time
}

// Duration returns the window length. All-history ranges report the span
// since the Unix epoch, which is long enough for every boundary decision.
func (r TimeRange) Duration() time.Duration {
	if r.From.IsZero() {
		return r.To.Sub(time.Unix(0, 0))
	}
	return r.To.Sub(r.From)
}

// ResolveRange maps a range selector onto concrete timestamps anchored at
// now. Unknown selectors resolve to the 7d default and additionally return a
// Reject so the caller can log and count the bad input without failing the
// request.
func ResolveRange(selector string, now time.Time) (TimeRange, error) {
	now = now.UTC()
	switch selector {
	case "24h":
		return TimeRange{Selector: selector, From: now.Add(-24 * time.Hour), To: now}, nil
	case "7d", "":
		return TimeRange{Selector: DefaultSelector, From: now.AddDate(0, 0, -7), To: now}, nil
	case "30d":
		return TimeRange{Selector: selector, From: now.AddDate(0, 0, -30), To: now}, nil
	case "all":
		return TimeRange{Selector: selector, To: now}, nil
	default:
		fallback := TimeRange{Selector: DefaultSelector, From: now.AddDate(0, 0, -7), To: now}
		return fallback, models.NewReject(models.RejectInvalidRange, "unknown range %q", selector)
	}
}
