package models

import "time"

// LabelCount is one entry of a top-N list or histogram.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ErrorSample is one captured client-side error.
type ErrorSample struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Path      string    `json:"path,omitempty"`
	Browser   string    `json:"browser,omitempty"`
}

// EventSummary is the trimmed form of an event shown in the dashboard's
// recent-activity feed. VisitorID is truncated before it leaves the server.
type EventSummary struct {
	Type       EventType `json:"type"`
	Path       string    `json:"path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	VisitorID  string    `json:"visitorId"`
	Browser    string    `json:"browser,omitempty"`
	DeviceType string    `json:"device,omitempty"`
}

// Summary holds the scalar totals of a Snapshot.
type Summary struct {
	TotalPageviews  int64   `json:"totalPageviews"`
	UniqueVisitors  int64   `json:"uniqueVisitors"`
	UniqueSessions  int64   `json:"uniqueSessions"`
	TotalEvents     int64   `json:"totalEvents"`
	AvgTimeOnPage   float64 `json:"avgTimeOnPage"`
	AvgPageLoadTime float64 `json:"avgPageLoadTime"`
}

// Snapshot is the aggregate answer for one time range. It is derived state:
// every field can be recomputed from the event log, and it is never written
// back to storage as a source of truth.
type Snapshot struct {
	Range            string         `json:"range"`
	Hostname         string         `json:"hostname,omitempty"`
	GeneratedAt      time.Time      `json:"generatedAt"`
	Stale            bool           `json:"stale,omitempty"`
	Summary          Summary        `json:"summary"`
	TopPages         []LabelCount   `json:"topPages"`
	TopReferrers     []LabelCount   `json:"topReferrers"`
	TopClicks        []LabelCount   `json:"topClicks"`
	Browsers         []LabelCount   `json:"browsers"`
	OperatingSystems []LabelCount   `json:"operatingSystems"`
	Devices          []LabelCount   `json:"devices"`
	ErrorCount       int64          `json:"errorCount"`
	RecentErrors     []ErrorSample  `json:"recentErrors"`
	RecentEvents     []EventSummary `json:"recentEvents"`
}
