package models

import "time"

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

func (w TimeWindow) Valid() bool { return w.Start.Before(w.End) }

// Buckets is the number of buckets of width b covering the window, rounded up.
func (w TimeWindow) Buckets(b time.Duration) int {
	if b <= 0 || !w.Valid() {
		return 0
	}
	d := w.Duration()
	n := int(d / b)
	if d%b != 0 {
		n++
	}
	return n
}

type SeriesColor string

const (
	ColorUsed      SeriesColor = "USED"
	ColorMaximum   SeriesColor = "MAXIMUM"
	ColorCommitted SeriesColor = "COMMITTED"
)

type BucketPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Avg       float64   `json:"avg"`
	Empty     bool      `json:"empty,omitempty"`
}

type MetricSeries struct {
	Name   string        `json:"name"`
	Color  SeriesColor   `json:"color,omitempty"`
	Points []BucketPoint `json:"points"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

type AlertCategory string

const (
	CategoryHeap         AlertCategory = "HEAP"
	CategoryNonHeap      AlertCategory = "NON_HEAP"
	CategoryGCDuration   AlertCategory = "GC_DURATION"
	CategoryAvailability AlertCategory = "AVAILABILITY"
	CategoryThreshold    AlertCategory = "THRESHOLD"
)

// RawAlert is an alert as returned by the backend, before tagging.
type RawAlert struct {
	ID        string    `json:"alertId"`
	TriggerID string    `json:"triggerId"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"ctime"`
}

type AlertRecord struct {
	ID          string        `json:"id"`
	ResourceKey string        `json:"resourceKey"`
	TriggerID   string        `json:"triggerId"`
	Category    AlertCategory `json:"category"`
	Status      string        `json:"status"`
	Severity    string        `json:"severity,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

type AlertQuery struct {
	Statuses   []string
	TriggerIDs []string
	Window     TimeWindow
	Page       int
	PerPage    int
}

// PageLinks is the pagination metadata carried in response headers.
// Page numbers are nil when the backend did not advertise that relation.
type PageLinks struct {
	First *int `json:"first,omitempty"`
	Prev  *int `json:"prev,omitempty"`
	Next  *int `json:"next,omitempty"`
	Last  *int `json:"last,omitempty"`
	Total int  `json:"total"`
}

type AlertPage struct {
	Items []RawAlert
	Links PageLinks
}

type Resource struct {
	ID         string            `json:"id"`
	Path       string            `json:"path"`
	Properties map[string]string `json:"properties,omitempty"`
}

type ResourcePage struct {
	Items []Resource
	Links PageLinks
}

type ResourceEntry struct {
	Path            string            `json:"path"`
	ID              string            `json:"id"`
	FeedID          string            `json:"feedId"`
	State           string            `json:"state,omitempty"`
	UpdateTimestamp *time.Time        `json:"updateTimestamp,omitempty"`
	Configuration   map[string]any    `json:"configuration,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

type Persona struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

type Notification struct {
	ID      string            `json:"id"`
	TS      time.Time         `json:"ts"`
	Level   NotificationLevel `json:"level"`
	Source  string            `json:"source"`
	Message string            `json:"message"`
	Cause   string            `json:"cause,omitempty"`
}
