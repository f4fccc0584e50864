package models

import "time"

// EventType classifies a tracked event. Payloads carrying a type outside the
// known set are reclassified as EventTypeCustom at normalization time so old
// collectors keep accepting events from newer tracker scripts.
type EventType string

const (
	EventTypePageview    EventType = "pageview"
	EventTypePerformance EventType = "performance"
	EventTypeClick       EventType = "click"
	EventTypeScrollDepth EventType = "scroll_depth"
	EventTypeTimeOnPage  EventType = "time_on_page"
	EventTypeFormSubmit  EventType = "form_submit"
	EventTypeError       EventType = "error"
	EventTypeCustom      EventType = "custom"
	EventTypeIdentify    EventType = "identify"
)

// KnownEventType reports whether t is one of the fixed event types.
func KnownEventType(t EventType) bool {
	switch t {
	case EventTypePageview, EventTypePerformance, EventTypeClick,
		EventTypeScrollDepth, EventTypeTimeOnPage, EventTypeFormSubmit,
		EventTypeError, EventTypeCustom, EventTypeIdentify:
		return true
	}
	return false
}

// Event is one immutable record of a tracked user action or page condition.
// ID is assigned by the store at append time and increases monotonically.
// Data carries the event-type-specific remainder of the payload (performance
// timings, click targets, error details) without a fixed schema.
type Event struct {
	ID         int64          `json:"id"`
	Type       EventType      `json:"eventType"`
	Timestamp  time.Time      `json:"timestamp"`
	VisitorID  string         `json:"visitorId"`
	SessionID  string         `json:"sessionId"`
	URL        string         `json:"url,omitempty"`
	Path       string         `json:"path,omitempty"`
	Hostname   string         `json:"hostname,omitempty"`
	Referrer   string         `json:"referrer,omitempty"`
	Title      string         `json:"title,omitempty"`
	Browser    string         `json:"browser,omitempty"`
	OS         string         `json:"os,omitempty"`
	DeviceType string         `json:"deviceType,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}
