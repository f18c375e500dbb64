// Package window computes the time range a view queries on every refresh.
package window

import (
	"sync"
	"time"

	"hawkview/internal/models"
)

const DefaultOffset = time.Hour

// Spec is a sliding window that ends "now" unless an explicit end is pinned.
type Spec struct {
	mu     sync.RWMutex
	offset time.Duration
	end    *time.Time
}

func NewSpec(offset time.Duration) *Spec {
	if offset <= 0 {
		offset = DefaultOffset
	}
	return &Spec{offset: offset}
}

// Compute returns the window for the given instant. A pinned end is never advanced.
func (s *Spec) Compute(now time.Time) models.TimeWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	end := now
	if s.end != nil {
		end = *s.end
	}
	return models.TimeWindow{Start: end.Add(-s.offset), End: end}
}

func (s *Spec) Offset() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

func (s *Spec) Pinned() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.end == nil {
		return time.Time{}, false
	}
	return *s.end, true
}

// Pin fixes the window end for historical browsing.
func (s *Spec) Pin(end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := end
	s.end = &e
}

// PinRange pins an explicit range, as when a chart selection is dragged.
func (s *Spec) PinRange(start, end time.Time) bool {
	if !start.Before(end) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := end
	s.end = &e
	s.offset = end.Sub(start)
	return true
}

// SetOffset changes the window length; non-positive values restore the default.
func (s *Spec) SetOffset(offset time.Duration) {
	if offset <= 0 {
		offset = DefaultOffset
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = offset
}

func (s *Spec) Unpin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end = nil
}
