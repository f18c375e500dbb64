package views

import (
	"context"
	"fmt"

	"hawkview/internal/alerts"
	"hawkview/internal/models"
	"hawkview/internal/window"
)

// AlertConsole pages through the availability and response-time alerts of
// one server.
type AlertConsole struct {
	base
	resourceID string
	console    *alerts.Console
}

func newAlertConsole(ctx context.Context, d Deps, resourceID string) *AlertConsole {
	v := &AlertConsole{
		base: base{
			topic: "alerts/" + resourceID,
			deps:  d,
			spec:  window.NewSpec(d.Offset),
			log:   d.Logger.With("module", "views.alerts", "resource", resourceID),
		},
		resourceID: resourceID,
		console:    alerts.NewConsole(d.Backend, d.Sink, d.Metrics, d.Logger, alerts.DefaultPerPage),
	}
	v.console.Fence(d.Tenants.Active)
	v.start(ctx, v.topic, v.refresh, v.console.Reset)
	return v
}

func (v *AlertConsole) refresh(ctx context.Context, w models.TimeWindow) {
	tenant, ok := v.tenantID()
	if !ok {
		return
	}
	if _, err := v.console.Refresh(ctx, tenant, v.resourceID, w); err != nil {
		return
	}
	v.publish(tenant, v.console.Current())
}

func (v *AlertConsole) ResourceID() string { return v.resourceID }

func (v *AlertConsole) Page() alerts.Page {
	return v.console.Current()
}

// SetPage switches to another page and fetches it right away.
func (v *AlertConsole) SetPage(ctx context.Context, page int) error {
	if err := v.console.SetPage(page); err != nil {
		return err
	}
	v.kick(ctx, v.refresh)
	return nil
}

func (v *AlertConsole) Refresh(ctx context.Context) {
	v.kick(ctx, v.refresh)
}

// Resolve resolves every alert of the current page. It returns
// alerts.ErrNothingToResolve when the page is empty.
func (v *AlertConsole) Resolve(ctx context.Context) error {
	tenant, err := v.deps.Tenants.ID()
	if err != nil {
		return err
	}
	if err := v.console.ResolveAll(ctx, tenant); err != nil {
		return fmt.Errorf("resolve alerts of %s: %w", v.resourceID, err)
	}
	v.publish(tenant, v.console.Current())
	return nil
}
