// Package alerts queries open alerts of a resource. Fanout issues one query
// per alert category and publishes the concatenation; Console serves the
// paginated alert list and bulk resolution.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hawkview/internal/instrument"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

const StatusOpen = "OPEN"

type API interface {
	QueryAlerts(ctx context.Context, tenant string, q models.AlertQuery) (models.AlertPage, error)
	Resolve(ctx context.Context, tenant, alertIDs string) error
}

// Branch is one category query: alerts of trigger resourceKey+Suffix.
type Branch struct {
	Suffix   string
	Category models.AlertCategory
}

var JVMBranches = []Branch{
	{Suffix: "_jvm_pheap", Category: models.CategoryHeap},
	{Suffix: "_jvm_nheap", Category: models.CategoryNonHeap},
	{Suffix: "_jvm_garba", Category: models.CategoryGCDuration},
}

// Tag turns a backend alert into a record of the given category.
func Tag(raw models.RawAlert, resourceKey string, category models.AlertCategory) models.AlertRecord {
	return models.AlertRecord{
		ID:          raw.ID,
		ResourceKey: resourceKey,
		TriggerID:   raw.TriggerID,
		Category:    category,
		Status:      raw.Status,
		Severity:    raw.Severity,
		Timestamp:   raw.Timestamp,
	}
}

type Fanout struct {
	api      API
	sink     notifier.Sink
	metrics  *instrument.Metrics
	log      *slog.Logger
	branches []Branch
	statuses []string
	now      func() time.Time
	fence    func(tenant string) bool

	mu        sync.RWMutex
	published []models.AlertRecord
	updatedAt time.Time
	loaded    bool
	gen       uint64
}

func NewFanout(api API, sink notifier.Sink, m *instrument.Metrics, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		api:      api,
		sink:     sink,
		metrics:  m,
		log:      logger.With("module", "alerts"),
		branches: JVMBranches,
		statuses: []string{StatusOpen},
		now:      time.Now,
	}
}

// Fence drops a refresh at publish time unless fn still accepts the tenant
// it queried for.
func (f *Fanout) Fence(fn func(tenant string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fence = fn
}

// Refresh queries every branch concurrently and publishes the tagged results
// in branch order once all of them settled. A failed branch contributes
// nothing. Results of a refresh overtaken by Reset are dropped.
func (f *Fanout) Refresh(ctx context.Context, tenant, resourceKey string, w models.TimeWindow) []models.AlertRecord {
	started := f.now()
	f.mu.RLock()
	gen := f.gen
	f.mu.RUnlock()
	parts := make([][]models.AlertRecord, len(f.branches))

	var g errgroup.Group
	for i, b := range f.branches {
		g.Go(func() error {
			page, err := f.api.QueryAlerts(ctx, tenant, models.AlertQuery{
				Statuses:   f.statuses,
				TriggerIDs: []string{resourceKey + b.Suffix},
				Window:     w,
			})
			f.metrics.Fetch("alerts", err)
			if err != nil {
				f.sink.Report(ctx, "alerts", err, fmt.Sprintf("Error fetching %s alerts.", b.Category))
				return nil
			}
			tagged := make([]models.AlertRecord, 0, len(page.Items))
			for _, raw := range page.Items {
				tagged = append(tagged, Tag(raw, resourceKey, b.Category))
			}
			parts[i] = tagged
			return nil
		})
	}
	_ = g.Wait()

	merged := slices.Concat(parts...)
	if merged == nil {
		merged = []models.AlertRecord{}
	}
	f.mu.Lock()
	if gen != f.gen || (f.fence != nil && !f.fence(tenant)) {
		f.mu.Unlock()
		f.log.Debug("alerts dropped, tenant changed", "tenant", tenant, "resource", resourceKey)
		return merged
	}
	f.published = merged
	f.updatedAt = f.now()
	f.loaded = true
	f.mu.Unlock()
	f.metrics.Published("alerts", started)
	return merged
}

// Alerts returns the published list. The slice must not be modified.
func (f *Fanout) Alerts() ([]models.AlertRecord, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.published, f.updatedAt, f.loaded
}

func (f *Fanout) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
	f.updatedAt = time.Time{}
	f.loaded = false
	f.gen++
}
