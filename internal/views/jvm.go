package views

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"hawkview/internal/alerts"
	"hawkview/internal/metrics"
	"hawkview/internal/models"
	"hawkview/internal/window"
)

// JVMDetails is the memory view of one application server: the memory
// series with headline stats, plus the open memory alerts of the same window.
type JVMDetails struct {
	base
	resourceID string
	agg        *metrics.Aggregator
	fanout     *alerts.Fanout
}

// JVMState is the JSON form of a JVMDetails view.
type JVMState struct {
	ResourceID      string               `json:"resourceId"`
	Window          models.TimeWindow    `json:"window"`
	Pinned          bool                 `json:"pinned"`
	Metrics         *metrics.Snapshot    `json:"metrics,omitempty"`
	Visibility      map[string]bool      `json:"visibility"`
	Alerts          []models.AlertRecord `json:"alerts"`
	AlertsUpdatedAt *time.Time           `json:"alertsUpdatedAt,omitempty"`
}

func newJVMDetails(ctx context.Context, d Deps, resourceID string) *JVMDetails {
	agg := metrics.NewAggregator(d.Backend, d.Sink,
		metrics.WithMetrics(d.Metrics), metrics.WithLogger(d.Logger), metrics.WithFence(d.Tenants.Active))
	v := &JVMDetails{
		base: base{
			topic: "jvm/" + resourceID,
			deps:  d,
			spec:  window.NewSpec(d.Offset),
			log:   d.Logger.With("module", "views.jvm", "resource", resourceID),
		},
		resourceID: resourceID,
		agg:        agg,
		fanout:     alerts.NewFanout(d.Backend, d.Sink, d.Metrics, d.Logger),
	}
	v.fanout.Fence(d.Tenants.Active)
	v.start(ctx, v.topic, v.refresh, v.reset)
	return v
}

func (v *JVMDetails) refresh(ctx context.Context, w models.TimeWindow) {
	tenant, ok := v.tenantID()
	if !ok {
		return
	}
	var g errgroup.Group
	g.Go(func() error {
		v.agg.Refresh(ctx, tenant, v.resourceID, w, bucketFor(w, v.deps.Bucket))
		return nil
	})
	g.Go(func() error {
		v.fanout.Refresh(ctx, tenant, v.resourceID, w)
		return nil
	})
	_ = g.Wait()
	v.publish(tenant, v.State())
}

func (v *JVMDetails) reset() {
	v.agg.Reset()
	v.fanout.Reset()
}

func (v *JVMDetails) ResourceID() string { return v.resourceID }

func (v *JVMDetails) State() JVMState {
	_, pinned := v.spec.Pinned()
	st := JVMState{
		ResourceID: v.resourceID,
		Window:     v.Window(),
		Pinned:     pinned,
		Visibility: v.agg.Visibility(),
		Alerts:     []models.AlertRecord{},
	}
	if snap, ok := v.agg.Snapshot(); ok {
		st.Metrics = &snap
		st.Window = snap.Window
	}
	if list, at, ok := v.fanout.Alerts(); ok {
		st.Alerts = list
		st.AlertsUpdatedAt = &at
	}
	return st
}

// Refresh fetches immediately instead of waiting for the next tick.
func (v *JVMDetails) Refresh(ctx context.Context) {
	v.kick(ctx, v.refresh)
}

// PinRange freezes the window on [start, end) and refreshes it. Subsequent
// ticks keep re-querying the same range.
func (v *JVMDetails) PinRange(ctx context.Context, start, end time.Time) bool {
	if !v.spec.PinRange(start, end) {
		return false
	}
	v.kick(ctx, v.refresh)
	return true
}

// Unpin restores the sliding window with the default offset.
func (v *JVMDetails) Unpin(ctx context.Context) {
	v.spec.Unpin()
	v.spec.SetOffset(v.deps.Offset)
	v.kick(ctx, v.refresh)
}

// Toggle flips a series; the change shows on the next refresh.
func (v *JVMDetails) Toggle(name string) (bool, error) {
	return v.agg.Toggle(name)
}
