// Package normalizer converts raw tracker payloads into typed Events.
//
// Normalization is a pure transform: the only value it ever rewrites is the
// event timestamp, which is clamped to the server receipt time when the
// client clock is skewed beyond tolerance. Everything the payload carries
// beyond the hoisted common fields is kept verbatim in Event.Data, so
// per-type shapes (performance timings, click targets, error stacks) survive
// without a rigid schema.
package normalizer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/BiliTheKid/dolpyitcs/internal/models"
)

const (
	// MaxFutureSkew is how far ahead of server time a client timestamp may
	// run before it is clamped to the receipt time.
	MaxFutureSkew = 5 * time.Minute

	// MaxPastSkew is how far behind server time a client timestamp may lag
	// before it is clamped. Offline trackers flushing queued beacons stay
	// inside this window.
	MaxPastSkew = 30 * 24 * time.Hour
)

// hoisted lists the payload keys promoted into typed Event fields. Every
// other key is preserved in Event.Data.
var hoisted = map[string]struct{}{
	"eventType":  {},
	"timestamp":  {},
	"visitorId":  {},
	"sessionId":  {},
	"url":        {},
	"path":       {},
	"hostname":   {},
	"referrer":   {},
	"title":      {},
	"browser":    {},
	"os":         {},
	"deviceType": {},
}

// Normalize validates and canonicalizes one raw payload into an Event.
// receivedAt anchors timestamp fallback and clock-skew clamping. The returned
// error, when non-nil, is always a *models.Reject.
func Normalize(body []byte, receivedAt time.Time) (*models.Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, models.NewReject(models.RejectMalformedPayload, "invalid JSON: %v", err)
	}
	if raw == nil {
		return nil, models.NewReject(models.RejectMalformedPayload, "empty payload")
	}

	visitorID := str(raw, "visitorId")
	sessionID := str(raw, "sessionId")
	if visitorID == "" || sessionID == "" {
		return nil, models.NewReject(models.RejectMissingIdentity, "visitorId and sessionId are required")
	}

	ev := &models.Event{
		Type:       classify(raw),
		Timestamp:  clampTimestamp(raw["timestamp"], receivedAt),
		VisitorID:  visitorID,
		SessionID:  sessionID,
		URL:        str(raw, "url"),
		Path:       str(raw, "path"),
		Hostname:   str(raw, "hostname"),
		Referrer:   str(raw, "referrer"),
		Title:      str(raw, "title"),
		Browser:    str(raw, "browser"),
		OS:         str(raw, "os"),
		DeviceType: str(raw, "deviceType"),
	}

	for k, v := range raw {
		if _, ok := hoisted[k]; ok {
			continue
		}
		if ev.Data == nil {
			ev.Data = make(map[string]any)
		}
		ev.Data[k] = v
	}

	return ev, nil
}

// classify maps the payload's eventType onto the known enumeration. Unknown
// or missing types are accepted as "custom" rather than rejected, so older
// collectors tolerate newer tracker scripts; the original type is preserved
// under Data for later inspection.
func classify(raw map[string]any) models.EventType {
	t := models.EventType(strings.TrimSpace(str(raw, "eventType")))
	if models.KnownEventType(t) {
		return t
	}
	if t != "" {
		raw["originalEventType"] = string(t)
	}
	return models.EventTypeCustom
}

// clampTimestamp parses the client-supplied timestamp and clamps it to
// receivedAt when missing, unparseable, or skewed beyond tolerance.
func clampTimestamp(v any, receivedAt time.Time) time.Time {
	ts, ok := parseTimestamp(v)
	if !ok {
		return receivedAt.UTC()
	}
	if ts.After(receivedAt.Add(MaxFutureSkew)) || ts.Before(receivedAt.Add(-MaxPastSkew)) {
		return receivedAt.UTC()
	}
	return ts.UTC()
}

// parseTimestamp accepts RFC 3339 strings (the tracker's format) and epoch
// milliseconds, which some beacon libraries emit.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		sec := int64(t) / 1000
		msec := int64(t) % 1000
		return time.Unix(sec, msec*int64(time.Millisecond)), true
	default:
		return time.Time{}, false
	}
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
