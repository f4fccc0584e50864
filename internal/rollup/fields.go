package rollup

import (
	"strings"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
)

const maxErrorMessageLen = 100

// PathLabel returns the event path, defaulting to "/".
func PathLabel(ev *models.Event) string {
	if ev.Path == "" {
		return "/"
	}
	return ev.Path
}

// ReferrerLabel returns the event referrer, with empty mapped to "direct".
func ReferrerLabel(ev *models.Event) string {
	if ev.Referrer == "" {
		return DirectReferrer
	}
	return ev.Referrer
}

// ClickLabel groups click events by element type plus the tracked identifier:
// data-track attribute when present, element ID otherwise. Returns "" when
// the payload identifies nothing clickable.
func ClickLabel(ev *models.Event) string {
	elementType := dataString(ev, "elementType")
	ident := dataString(ev, "dataTrack")
	if ident == "" {
		ident = dataString(ev, "elementId")
	}
	if elementType == "" && ident == "" {
		return ""
	}
	return elementType + "|" + ident
}

// ErrorMessage extracts the error message, truncated for bucket labels.
func ErrorMessage(ev *models.Event) string {
	msg := dataString(ev, "message")
	if msg == "" {
		msg = "Unknown error"
	}
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}

// TimeOnPage extracts the timeOnPage metric from a time_on_page event.
func TimeOnPage(ev *models.Event) (float64, bool) {
	return dataNumber(ev, "timeOnPage")
}

// PageLoadTime extracts pageLoadTime from a performance event. The tracker
// nests timings under a "performance" object; flat payloads are accepted too.
func PageLoadTime(ev *models.Event) (float64, bool) {
	if perf, ok := ev.Data["performance"].(map[string]any); ok {
		if v, ok := toNumber(perf["pageLoadTime"]); ok {
			return v, true
		}
	}
	return dataNumber(ev, "pageLoadTime")
}

func dataString(ev *models.Event, key string) string {
	if s, ok := ev.Data[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func dataNumber(ev *models.Event, key string) (float64, bool) {
	return toNumber(ev.Data[key])
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
