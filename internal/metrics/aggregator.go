// Package metrics fetches the bucketed memory series of one resource and
// publishes them as a single snapshot per refresh.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hawkview/internal/instrument"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

const component = "metrics"

type API interface {
	QueryGauge(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error)
	QueryCounter(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error)
	QueryCounterRate(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error)
}

// Stats are the headline numbers, each computed over the whole window as a
// single bucket. A nil field means its fetch failed or returned nothing.
type Stats struct {
	HeapUsage     *models.BucketPoint `json:"heapUsage,omitempty"`
	HeapMax       *models.BucketPoint `json:"heapMax,omitempty"`
	AccGCDuration *float64            `json:"accGCDuration,omitempty"`
}

type Snapshot struct {
	ResourceID string                           `json:"resourceId"`
	Window     models.TimeWindow                `json:"window"`
	Bucket     time.Duration                    `json:"bucket"`
	Groups     map[string][]models.MetricSeries `json:"groups"`
	Stats      Stats                            `json:"stats"`
	UpdatedAt  time.Time                        `json:"updatedAt"`
}

// Series returns the published series with the given name.
func (s Snapshot) Series(name string) (models.MetricSeries, bool) {
	for _, group := range s.Groups {
		for _, m := range group {
			if m.Name == name {
				return m, true
			}
		}
	}
	return models.MetricSeries{}, false
}

type Aggregator struct {
	api     API
	sink    notifier.Sink
	metrics *instrument.Metrics
	log     *slog.Logger
	streams []Stream
	limit   int
	now     func() time.Time

	fence   func(tenant string) bool

	mu        sync.RWMutex
	disabled  map[string]bool
	published *Snapshot
	gen       uint64
}

type Option func(*Aggregator)

func WithStreams(streams []Stream) Option {
	return func(a *Aggregator) { a.streams = streams }
}

// WithConcurrency bounds the number of in-flight fetches of one refresh.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) { a.limit = n }
}

func WithMetrics(m *instrument.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithFence drops a refresh at publish time unless fn still accepts the
// tenant it fetched for.
func WithFence(fn func(tenant string) bool) Option {
	return func(a *Aggregator) { a.fence = fn }
}

func NewAggregator(api API, sink notifier.Sink, opts ...Option) *Aggregator {
	a := &Aggregator{
		api:      api,
		sink:     sink,
		log:      slog.Default(),
		streams:  JVMStreams,
		limit:    8,
		now:      time.Now,
		disabled: map[string]bool{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("module", component)
	return a
}

// Toggle flips the visibility of a stream. It does not fetch; the next
// Refresh skips or includes the stream.
func (a *Aggregator) Toggle(name string) (enabled bool, err error) {
	if !a.known(name) {
		return false, fmt.Errorf("unknown series %q", name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled[name] {
		delete(a.disabled, name)
		return true, nil
	}
	a.disabled[name] = true
	return false, nil
}

// Visibility reports every stream of the catalogue and whether it is enabled.
func (a *Aggregator) Visibility() map[string]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]bool, len(a.streams))
	for _, s := range a.streams {
		out[s.Name] = !a.disabled[s.Name]
	}
	return out
}

func (a *Aggregator) Snapshot() (Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.published == nil {
		return Snapshot{}, false
	}
	return *a.published, true
}

// Reset drops the published snapshot; visibility survives. Refreshes already
// in flight are not published.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published = nil
	a.gen++
}

// stale reports whether a refresh started at generation gen for tenant must
// be dropped. Callers hold a.mu.
func (a *Aggregator) stale(gen uint64, tenant string) bool {
	return gen != a.gen || (a.fence != nil && !a.fence(tenant))
}

func (a *Aggregator) known(name string) bool {
	for _, s := range a.streams {
		if s.Name == name {
			return true
		}
	}
	return false
}

type fetched struct {
	series models.MetricSeries
	group  string
	ok     bool
}

// Refresh fetches every enabled stream and the headline stats for window w
// concurrently. The result is published only after every fetch settled;
// failed streams are reported and left out.
func (a *Aggregator) Refresh(ctx context.Context, tenant, resourceID string, w models.TimeWindow, bucket time.Duration) Snapshot {
	started := a.now()
	a.mu.RLock()
	disabled := maps.Clone(a.disabled)
	gen := a.gen
	a.mu.RUnlock()

	results := make([]fetched, len(a.streams))
	var stats Stats

	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, s := range a.streams {
		if disabled[s.Name] {
			continue
		}
		g.Go(func() error {
			points, err := a.query(ctx, s.Kind, tenant, MetricID(resourceID, s.Name), w.Start, w.End, bucket)
			a.metrics.Fetch(component, err)
			if err != nil {
				a.sink.Report(ctx, component, err, fmt.Sprintf("Error fetching %s data.", s.Name))
				return nil
			}
			results[i] = fetched{
				series: models.MetricSeries{Name: s.Name, Color: s.Color, Points: scale(points, s.Scale)},
				group:  s.Group,
				ok:     true,
			}
			return nil
		})
	}
	a.headline(ctx, &g, tenant, resourceID, w, &stats)
	_ = g.Wait()

	snap := Snapshot{
		ResourceID: resourceID,
		Window:     w,
		Bucket:     bucket,
		Groups:     map[string][]models.MetricSeries{},
		Stats:      stats,
		UpdatedAt:  a.now(),
	}
	n := 0
	for _, r := range results {
		if r.ok {
			snap.Groups[r.group] = append(snap.Groups[r.group], r.series)
			n++
		}
	}

	a.mu.Lock()
	if a.stale(gen, tenant) {
		a.mu.Unlock()
		a.log.Debug("snapshot dropped, tenant changed", "tenant", tenant, "resource", resourceID)
		return snap
	}
	a.published = &snap
	a.mu.Unlock()
	a.metrics.Published(component, started)
	a.log.Debug("snapshot published", "resource", resourceID, "series", n, "start", w.Start, "end", w.End)
	return snap
}

// headline schedules the single-bucket stat fetches on g. Each writes a
// distinct field of stats.
func (a *Aggregator) headline(ctx context.Context, g *errgroup.Group, tenant, resourceID string, w models.TimeWindow, stats *Stats) {
	whole := w.Duration()
	if whole <= 0 {
		return
	}
	single := func(kind Kind, name string, set func(models.BucketPoint)) {
		g.Go(func() error {
			points, err := a.query(ctx, kind, tenant, MetricID(resourceID, name), w.Start, w.End, whole)
			a.metrics.Fetch(component, err)
			if err != nil {
				a.sink.Report(ctx, component, err, fmt.Sprintf("Error fetching %s.", name))
				return nil
			}
			if len(points) > 0 && !points[0].Empty {
				set(points[0])
			}
			return nil
		})
	}
	single(Gauge, "Heap Used", func(p models.BucketPoint) {
		p = scale([]models.BucketPoint{p}, BytesToMB)[0]
		stats.HeapUsage = &p
	})
	single(Gauge, "Heap Max", func(p models.BucketPoint) {
		p = scale([]models.BucketPoint{p}, BytesToMB)[0]
		stats.HeapMax = &p
	})
	single(Counter, "Accumulated GC Duration", func(p models.BucketPoint) {
		d := p.Max - p.Min
		stats.AccGCDuration = &d
	})
}

func (a *Aggregator) query(ctx context.Context, kind Kind, tenant, id string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error) {
	switch kind {
	case Gauge:
		return a.api.QueryGauge(ctx, tenant, id, start, end, bucket)
	case Counter:
		return a.api.QueryCounter(ctx, tenant, id, start, end, bucket)
	case CounterRate:
		return a.api.QueryCounterRate(ctx, tenant, id, start, end, bucket)
	default:
		return nil, fmt.Errorf("unsupported metric kind %d", kind)
	}
}
