package views

import (
	"context"

	"hawkview/internal/inventory"
	"hawkview/internal/models"
	"hawkview/internal/window"
)

const serversTopic = "servers"

// ServerList is the application server inventory across every feed.
type ServerList struct {
	base
	merger *inventory.Merger
}

func newServerList(ctx context.Context, d Deps) *ServerList {
	v := &ServerList{
		base: base{
			topic: serversTopic,
			deps:  d,
			spec:  window.NewSpec(d.Offset),
			log:   d.Logger.With("module", "views.servers"),
		},
		merger: inventory.NewMerger(d.Backend, d.Sink, d.Metrics, d.Logger, d.Inventory),
	}
	v.merger.Fence(d.Tenants.Active)
	v.start(ctx, v.topic, v.refresh, v.merger.Reset)
	return v
}

func (v *ServerList) refresh(ctx context.Context, _ models.TimeWindow) {
	tenant, ok := v.tenantID()
	if !ok {
		return
	}
	v.publish(tenant, v.merger.Refresh(ctx, tenant))
}

func (v *ServerList) List() inventory.List {
	return v.merger.List()
}

func (v *ServerList) SetPage(ctx context.Context, page int) error {
	if err := v.merger.SetPage(page); err != nil {
		return err
	}
	v.kick(ctx, v.refresh)
	return nil
}

func (v *ServerList) Refresh(ctx context.Context) {
	v.kick(ctx, v.refresh)
}
