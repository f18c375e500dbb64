package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

type fakeAPI struct {
	mu         sync.Mutex
	queries    []models.AlertQuery
	byID       map[string][]models.RawAlert
	failIDs    map[string]bool
	resolved   []string
	resolveErr error
	links      models.PageLinks
}

func (f *fakeAPI) QueryAlerts(_ context.Context, _ string, q models.AlertQuery) (models.AlertPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	var items []models.RawAlert
	for _, id := range q.TriggerIDs {
		if f.failIDs[id] {
			return models.AlertPage{}, errors.New("backend unavailable")
		}
		items = append(items, f.byID[id]...)
	}
	return models.AlertPage{Items: items, Links: f.links}, nil
}

func (f *fakeAPI) Resolve(_ context.Context, _ string, ids string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, ids)
	return f.resolveErr
}

type reports struct {
	mu   sync.Mutex
	msgs []string
}

func (r *reports) sink() notifier.Sink {
	return notifier.SinkFunc(func(_ context.Context, _ string, _ error, msg string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
	})
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var window = models.TimeWindow{
	Start: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestFanoutSettlesAllBranches(t *testing.T) {
	api := &fakeAPI{
		byID: map[string][]models.RawAlert{
			"srv1_jvm_pheap": {{ID: "x", Status: "OPEN"}},
			"srv1_jvm_garba": {{ID: "y", Status: "OPEN"}},
		},
		failIDs: map[string]bool{"srv1_jvm_nheap": true},
	}
	rep := &reports{}
	f := NewFanout(api, rep.sink(), nil, quiet())

	got := f.Refresh(context.Background(), "t", "srv1", window)
	if len(got) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(got), got)
	}
	if got[0].ID != "x" || got[0].Category != models.CategoryHeap {
		t.Fatalf("first alert: %+v", got[0])
	}
	if got[1].ID != "y" || got[1].Category != models.CategoryGCDuration {
		t.Fatalf("second alert: %+v", got[1])
	}
	if got[0].ResourceKey != "srv1" {
		t.Fatalf("resource key not tagged: %+v", got[0])
	}
	if len(rep.msgs) != 1 || rep.msgs[0] != "Error fetching NON_HEAP alerts." {
		t.Fatalf("unexpected reports %v", rep.msgs)
	}
	for _, q := range api.queries {
		if len(q.Statuses) != 1 || q.Statuses[0] != StatusOpen {
			t.Fatalf("branch query without OPEN filter: %+v", q)
		}
		if q.Window != window {
			t.Fatalf("branch query window %+v", q.Window)
		}
	}

	published, _, ok := f.Alerts()
	if !ok || len(published) != 2 {
		t.Fatalf("published %v ok=%v", published, ok)
	}
}

func TestFanoutAllFailedPublishesEmpty(t *testing.T) {
	api := &fakeAPI{failIDs: map[string]bool{"s_jvm_pheap": true, "s_jvm_nheap": true, "s_jvm_garba": true}}
	f := NewFanout(api, (&reports{}).sink(), nil, quiet())
	got := f.Refresh(context.Background(), "t", "s", window)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	f.Reset()
	if _, _, ok := f.Alerts(); ok {
		t.Fatal("reset must drop published alerts")
	}
}

func TestFenceDropsSwitchedTenant(t *testing.T) {
	active := func(tenant string) bool { return tenant == "b" }
	f := NewFanout(consoleAPI(), (&reports{}).sink(), nil, quiet())
	f.Fence(active)
	f.Refresh(context.Background(), "a", "srv1", window)
	if _, _, ok := f.Alerts(); ok {
		t.Fatal("alerts of a switched tenant were published")
	}

	c := NewConsole(consoleAPI(), (&reports{}).sink(), nil, quiet(), 5)
	c.Fence(active)
	if _, err := c.Refresh(context.Background(), "a", "srv1", window); err != nil {
		t.Fatal(err)
	}
	if c.Loaded() {
		t.Fatal("page of a switched tenant was published")
	}
	if _, err := c.Refresh(context.Background(), "b", "srv1", window); err != nil {
		t.Fatal(err)
	}
	if got := c.Current().Items; len(got) != 3 {
		t.Fatalf("expected 3 alerts for the current tenant, got %+v", got)
	}
}

func consoleAPI() *fakeAPI {
	next := 1
	return &fakeAPI{
		byID: map[string][]models.RawAlert{
			"srv1_trigger_avail": {{ID: "a1", Type: "AVAILABILITY"}},
			"srv1_trigger_thres": {{ID: "a2", Type: "THRESHOLD"}, {ID: "a3", Type: "THRESHOLD"}},
		},
		links: models.PageLinks{Next: &next, Total: 7},
	}
}

func TestConsoleTagsAndPaginates(t *testing.T) {
	api := consoleAPI()
	c := NewConsole(api, (&reports{}).sink(), nil, quiet(), 0)

	page, err := c.Refresh(context.Background(), "t", "srv1", window)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.Items[0].Category != models.CategoryAvailability || page.Items[1].Category != models.CategoryThreshold {
		t.Fatalf("unexpected categories %+v", page.Items)
	}
	if page.Links.Total != 7 || page.Links.Next == nil || *page.Links.Next != 1 {
		t.Fatalf("links not exposed: %+v", page.Links)
	}
	q := api.queries[0]
	if q.Page != 0 || q.PerPage != DefaultPerPage {
		t.Fatalf("first query page=%d per_page=%d", q.Page, q.PerPage)
	}
	if strings.Join(q.TriggerIDs, ",") != "srv1_trigger_avail,srv1_trigger_thres" {
		t.Fatalf("trigger ids %v", q.TriggerIDs)
	}

	api.byID = map[string][]models.RawAlert{"srv1_trigger_thres": {{ID: "a9", Type: "THRESHOLD"}}}
	if err := c.SetPage(1); err != nil {
		t.Fatalf("set page: %v", err)
	}
	page, err = c.Refresh(context.Background(), "t", "srv1", window)
	if err != nil {
		t.Fatalf("refresh page 1: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "a9" || page.Page != 1 {
		t.Fatalf("page 1 must replace page 0, got %+v", page)
	}
	if api.queries[1].Page != 1 {
		t.Fatalf("second query page %d", api.queries[1].Page)
	}
	if err := c.SetPage(-1); err == nil {
		t.Fatal("negative page accepted")
	}
}

func TestConsoleFailedRefreshKeepsPage(t *testing.T) {
	api := consoleAPI()
	rep := &reports{}
	c := NewConsole(api, rep.sink(), nil, quiet(), 5)
	if _, err := c.Refresh(context.Background(), "t", "srv1", window); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	api.failIDs = map[string]bool{"srv1_trigger_avail": true}
	page, err := c.Refresh(context.Background(), "t", "srv1", window)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(page.Items) != 3 {
		t.Fatalf("previous page lost: %+v", page)
	}
	if len(rep.msgs) != 1 || rep.msgs[0] != "Error fetching alerts." {
		t.Fatalf("reports %v", rep.msgs)
	}
}

func TestResolveAllEmptyIsRejectedWithoutCall(t *testing.T) {
	api := &fakeAPI{}
	c := NewConsole(api, (&reports{}).sink(), nil, quiet(), 5)
	if _, err := c.Refresh(context.Background(), "t", "srv1", window); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := c.ResolveAll(context.Background(), "t"); !errors.Is(err, ErrNothingToResolve) {
		t.Fatalf("expected ErrNothingToResolve, got %v", err)
	}
	if len(api.resolved) != 0 {
		t.Fatalf("backend called with %v", api.resolved)
	}
}

func TestResolveAll(t *testing.T) {
	api := consoleAPI()
	c := NewConsole(api, (&reports{}).sink(), nil, quiet(), 5)
	if _, err := c.Refresh(context.Background(), "t", "srv1", window); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	api.resolveErr = errors.New("conflict")
	if err := c.ResolveAll(context.Background(), "t"); err == nil {
		t.Fatal("expected resolve failure")
	}
	if len(c.Current().Items) != 3 {
		t.Fatal("failed resolve must keep the list")
	}

	api.resolveErr = nil
	if err := c.ResolveAll(context.Background(), "t"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := api.resolved[len(api.resolved)-1]; got != "a1,a2,a3" {
		t.Fatalf("resolve ids %q", got)
	}
	if len(api.resolved) != 2 {
		t.Fatalf("expected one call per resolve, got %v", api.resolved)
	}
	cur := c.Current()
	if len(cur.Items) != 0 || cur.Resolving {
		t.Fatalf("list not cleared: %+v", cur)
	}
}
