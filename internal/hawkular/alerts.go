package hawkular

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"hawkview/internal/models"
)

type alertWire struct {
	AlertID   string `json:"alertId"`
	TriggerID string `json:"triggerId"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Severity  string `json:"severity"`
	CTime     int64  `json:"ctime"`
	Trigger   *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"trigger,omitempty"`
}

func (w alertWire) raw() models.RawAlert {
	a := models.RawAlert{
		ID:        w.AlertID,
		TriggerID: w.TriggerID,
		Type:      w.Type,
		Status:    w.Status,
		Severity:  w.Severity,
		Timestamp: fromMillis(w.CTime),
	}
	if w.Trigger != nil {
		if a.TriggerID == "" {
			a.TriggerID = w.Trigger.ID
		}
		if a.Type == "" {
			a.Type = w.Trigger.Type
		}
	}
	return a
}

// QueryAlerts lists alerts matching q. Page and PerPage are only sent when
// PerPage is positive.
func (c *Client) QueryAlerts(ctx context.Context, tenant string, q models.AlertQuery) (models.AlertPage, error) {
	v := url.Values{}
	if len(q.Statuses) > 0 {
		v.Set("statuses", strings.Join(q.Statuses, ","))
	}
	if len(q.TriggerIDs) > 0 {
		v.Set("triggerIds", strings.Join(q.TriggerIDs, ","))
	}
	if !q.Window.Start.IsZero() {
		v.Set("startTime", millis(q.Window.Start))
	}
	if !q.Window.End.IsZero() {
		v.Set("endTime", millis(q.Window.End))
	}
	if q.PerPage > 0 {
		v.Set("page", strconv.Itoa(q.Page))
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	var wire []alertWire
	h, err := c.getJSON(ctx, tenant, "/hawkular/alerts", v, &wire)
	if err != nil {
		return models.AlertPage{}, err
	}
	page := models.AlertPage{Items: make([]models.RawAlert, 0, len(wire)), Links: ParsePageLinks(h)}
	for _, w := range wire {
		page.Items = append(page.Items, w.raw())
	}
	return page, nil
}

// Resolve marks the comma separated alert ids resolved.
func (c *Client) Resolve(ctx context.Context, tenant, alertIDs string) error {
	if strings.TrimSpace(alertIDs) == "" {
		return fmt.Errorf("resolve: no alert ids")
	}
	v := url.Values{}
	v.Set("alertIds", alertIDs)
	_, _, err := c.do(ctx, tenant, http.MethodPut, "/hawkular/alerts/resolve", v, nil)
	return err
}

func (c *Client) GetTrigger(ctx context.Context, tenant, triggerID string) (models.FullTrigger, error) {
	var out models.FullTrigger
	if _, err := c.getJSON(ctx, tenant, "/hawkular/alerts/triggers/trigger/"+seg(triggerID), nil, &out); err != nil {
		return models.FullTrigger{}, err
	}
	return out, nil
}

// UpdateTrigger writes only the parts of updated that differ from original:
// the trigger itself, each changed dampening, and the condition set of each
// changed trigger mode. Writes stop at the first failure.
func (c *Client) UpdateTrigger(ctx context.Context, tenant string, updated, original models.FullTrigger) error {
	diff := models.DiffTrigger(original, updated)
	if diff.Empty() {
		return nil
	}
	id := updated.Trigger.ID
	base := "/hawkular/alerts/triggers/" + seg(id)
	if diff.Trigger {
		if err := c.putJSON(ctx, tenant, base, nil, updated.Trigger); err != nil {
			return fmt.Errorf("update trigger %s: %w", id, err)
		}
	}
	for _, d := range diff.Dampenings {
		if err := c.putJSON(ctx, tenant, base+"/dampenings/"+seg(d.DampeningID), nil, d); err != nil {
			return fmt.Errorf("update dampening %s: %w", d.DampeningID, err)
		}
	}
	modes := make([]string, 0, len(diff.Conditions))
	for mode := range diff.Conditions {
		modes = append(modes, mode)
	}
	slices.Sort(modes)
	for _, mode := range modes {
		if err := c.putJSON(ctx, tenant, base+"/conditions/"+seg(mode), nil, diff.Conditions[mode]); err != nil {
			return fmt.Errorf("update %s conditions of %s: %w", mode, id, err)
		}
	}
	return nil
}
