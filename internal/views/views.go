// Package views hosts the live views: each one owns a refresh task, listens
// for tenant changes and announces every publish on the stream hub.
package views

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hawkview/internal/alerts"
	"hawkview/internal/instrument"
	"hawkview/internal/inventory"
	"hawkview/internal/metrics"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
	"hawkview/internal/scheduler"
	"hawkview/internal/tenant"
	"hawkview/internal/window"
)

// Event kinds sent to the publisher.
const (
	KindPublished = "published"
	KindReset     = "reset"
)

// DefaultBuckets is the number of chart buckets per window when no fixed
// bucket width is configured.
const DefaultBuckets = 60

type Publisher interface {
	Publish(topic, kind string, data any)
}

type PublisherFunc func(topic, kind string, data any)

func (f PublisherFunc) Publish(topic, kind string, data any) { f(topic, kind, data) }

// Backend is everything the views read from the monitoring server.
type Backend interface {
	metrics.API
	alerts.API
	inventory.API
}

// Deps are shared by every view of a Registry.
type Deps struct {
	Backend   Backend
	Tenants   *tenant.Context
	Scheduler *scheduler.Scheduler
	Sink      notifier.Sink
	Metrics   *instrument.Metrics
	Publisher Publisher
	Logger    *slog.Logger

	Interval  time.Duration
	Offset    time.Duration
	Bucket    time.Duration
	Inventory inventory.Config
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Scheduler == nil {
		d.Scheduler = scheduler.New(nil, d.Logger)
	}
	if d.Publisher == nil {
		d.Publisher = PublisherFunc(func(string, string, any) {})
	}
	if d.Interval <= 0 {
		d.Interval = scheduler.DefaultInterval
	}
	if d.Offset <= 0 {
		d.Offset = window.DefaultOffset
	}
}

// bucketFor returns the configured bucket width or splits w into
// DefaultBuckets buckets of whole seconds.
func bucketFor(w models.TimeWindow, fixed time.Duration) time.Duration {
	if fixed > 0 {
		return fixed
	}
	b := (w.Duration() / DefaultBuckets).Truncate(time.Second)
	if b < time.Second {
		b = time.Second
	}
	return b
}

// base is the lifecycle shared by all views: a refresh task, a tenant
// subscription, a closed flag and the refreshes started outside the task.
type base struct {
	topic string
	deps  Deps
	spec  *window.Spec
	log   *slog.Logger

	mu          sync.Mutex
	closed      bool
	task        *scheduler.Task
	unsubscribe func()
	pending     sync.WaitGroup
}

func (b *base) start(ctx context.Context, name string, refresh scheduler.Action, reset func()) {
	b.task = b.deps.Scheduler.Start(ctx, name, b.deps.Interval, b.spec, refresh)
	b.unsubscribe = b.deps.Tenants.Subscribe(func(p models.Persona) {
		if b.isClosed() {
			return
		}
		b.log.Info("tenant changed, discarding view data", "tenant", p.ID)
		reset()
		b.deps.Publisher.Publish(b.topic, KindReset, nil)
		b.kick(ctx, refresh)
	})
	b.kick(ctx, refresh)
}

// kick runs one refresh outside the ticker, for the window of right now.
func (b *base) kick(ctx context.Context, refresh scheduler.Action) {
	w := b.spec.Compute(b.deps.Scheduler.Now())
	b.pending.Add(1)
	go func() {
		defer b.pending.Done()
		refresh(ctx, w)
	}()
}

// tenantID returns the active tenant, or false when the view must not fetch.
func (b *base) tenantID() (string, bool) {
	if b.isClosed() {
		return "", false
	}
	id, err := b.deps.Tenants.ID()
	if err != nil {
		b.log.Debug("refresh skipped", "error", err)
		return "", false
	}
	return id, true
}

// publish emits data refreshed for tenant. It is dropped once the view is
// closed or tenant is no longer current; the tenant change already emitted a
// reset and kicked a refresh of its own.
func (b *base) publish(tenant string, data any) {
	if b.isClosed() {
		return
	}
	if !b.deps.Tenants.Active(tenant) {
		b.log.Debug("publish dropped, tenant changed", "tenant", tenant)
		return
	}
	b.deps.Publisher.Publish(b.topic, KindPublished, data)
}

func (b *base) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Settle waits for refreshes started by Open, tenant changes and explicit
// refresh requests.
func (b *base) Settle() {
	b.pending.Wait()
}

// Close cancels the refresh task and the tenant subscription. Completions
// arriving afterwards are not published. Repeated calls are no-ops.
func (b *base) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	if b.task != nil {
		b.task.Cancel()
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.log.Debug("view closed")
}

func (b *base) Closed() bool { return b.isClosed() }

func (b *base) Window() models.TimeWindow {
	return b.spec.Compute(b.deps.Scheduler.Now())
}

func (b *base) wait() {
	if b.task != nil {
		b.task.Wait()
	}
}
