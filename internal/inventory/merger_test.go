package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

type fakeAPI struct {
	mu        sync.Mutex
	feeds     []string
	feedsErr  error
	resources map[string][]models.Resource
	failFeed  map[string]bool
	failAvail map[string]bool
	pages     []int
	onList    func()
}

func (f *fakeAPI) ListFeeds(context.Context, string, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeds, f.feedsErr
}

func (f *fakeAPI) ListResourcesOfType(_ context.Context, _, env, feed, typ string, page, perPage int) (models.ResourcePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	if f.onList != nil {
		f.onList()
	}
	if env != DefaultEnvironment || typ != DefaultResourceType || perPage != DefaultPerPage {
		return models.ResourcePage{}, errors.New("unexpected query")
	}
	if f.failFeed[feed] {
		return models.ResourcePage{}, errors.New("feed " + feed + " unavailable")
	}
	return models.ResourcePage{Items: f.resources[feed]}, nil
}

func (f *fakeAPI) GetResourceConfig(_ context.Context, _, _, feed, path string) (map[string]any, error) {
	return map[string]any{"feed": feed, "resource": path}, nil
}

func (f *fakeAPI) QueryAvailability(_ context.Context, _ string, id string) ([]models.DataPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAvail[id] {
		return nil, errors.New("no availability")
	}
	return []models.DataPoint{
		{Timestamp: time.Unix(100, 0).UTC(), Value: "down"},
		{Timestamp: time.Unix(200, 0).UTC(), Value: "up"},
	}, nil
}

func (f *fakeAPI) set(fn func(*fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
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

func paths(l List) []string {
	out := make([]string, 0, len(l.Items))
	for _, e := range l.Items {
		out = append(out, e.Path)
	}
	return out
}

func res(id string) models.Resource {
	return models.Resource{ID: id, Path: "/f/" + id}
}

func TestMergeUnionsAcrossCycles(t *testing.T) {
	api := &fakeAPI{
		feeds:     []string{"F1", "F2"},
		resources: map[string][]models.Resource{"F1": {res("p1"), res("p2")}},
		failFeed:  map[string]bool{"F2": true},
	}
	rep := &reports{}
	m := NewMerger(api, rep.sink(), nil, quiet(), Config{})

	l := m.Refresh(context.Background(), "t")
	assert.Equal(t, []string{"/f/p1", "/f/p2"}, paths(l))
	require.NotNil(t, l.UpdatedAt)

	api.set(func(f *fakeAPI) {
		f.resources = map[string][]models.Resource{"F2": {res("p3")}}
		f.failFeed = map[string]bool{"F1": true}
	})
	l = m.Refresh(context.Background(), "t")
	assert.Equal(t, []string{"/f/p1", "/f/p2", "/f/p3"}, paths(l))
	assert.Contains(t, rep.msgs, "Error fetching resources of feed F1.")
	assert.Contains(t, rep.msgs, "Error fetching resources of feed F2.")
}

func TestRefreshFillsDetailAndReplacesByPath(t *testing.T) {
	api := &fakeAPI{
		feeds:     []string{"F1"},
		resources: map[string][]models.Resource{"F1": {{ID: "p1", Path: "/f/p1", Properties: map[string]string{"name": "srv"}}}},
	}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})

	l := m.Refresh(context.Background(), "t")
	require.Len(t, l.Items, 1)
	e := l.Items[0]
	assert.Equal(t, "up", e.State)
	require.NotNil(t, e.UpdateTimestamp)
	assert.Equal(t, time.Unix(200, 0).UTC(), *e.UpdateTimestamp)
	assert.Equal(t, "F1", e.FeedID)
	assert.Equal(t, "/f/p1", e.Configuration["resource"])

	api.set(func(f *fakeAPI) {
		f.resources = map[string][]models.Resource{"F1": {{ID: "p1", Path: "/f/p1", Properties: map[string]string{"name": "renamed"}}}}
		f.failAvail = map[string]bool{AvailabilityID("p1"): true}
	})
	l = m.Refresh(context.Background(), "t")
	require.Len(t, l.Items, 1, "same path must not duplicate")
	assert.Equal(t, "renamed", l.Items[0].Properties["name"])
	assert.Equal(t, "up", l.Items[0].State, "failed detail keeps the last known state")
}

func TestFeedErrorInitializesEmptyOnlyOnce(t *testing.T) {
	api := &fakeAPI{feeds: []string{"F1"}, failFeed: map[string]bool{"F1": true}}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})

	assert.Nil(t, m.List().Items)
	l := m.Refresh(context.Background(), "t")
	assert.NotNil(t, l.Items)
	assert.Empty(t, l.Items)
}

func TestEmptyFeedListFinalizesEmpty(t *testing.T) {
	api := &fakeAPI{feeds: []string{"F1"}, resources: map[string][]models.Resource{"F1": {res("p1")}}}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})
	require.Len(t, m.Refresh(context.Background(), "t").Items, 1)

	api.set(func(f *fakeAPI) { f.feeds = nil })
	l := m.Refresh(context.Background(), "t")
	assert.NotNil(t, l.Items)
	assert.Empty(t, l.Items)
	assert.NotNil(t, l.UpdatedAt)
}

func TestFeedListErrorKeepsEntries(t *testing.T) {
	api := &fakeAPI{feeds: []string{"F1"}, resources: map[string][]models.Resource{"F1": {res("p1")}}}
	rep := &reports{}
	m := NewMerger(api, rep.sink(), nil, quiet(), Config{})
	m.Refresh(context.Background(), "t")

	api.set(func(f *fakeAPI) { f.feedsErr = errors.New("inventory down") })
	l := m.Refresh(context.Background(), "t")
	assert.Equal(t, []string{"/f/p1"}, paths(l))
	assert.Equal(t, []string{"Error fetching feeds."}, rep.msgs)
}

func TestSetPageAndReset(t *testing.T) {
	api := &fakeAPI{feeds: []string{"F1"}, resources: map[string][]models.Resource{"F1": {res("p1")}}}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})
	require.NoError(t, m.SetPage(2))
	assert.Error(t, m.SetPage(-1))
	l := m.Refresh(context.Background(), "t")
	assert.Equal(t, 2, l.Page)
	assert.Equal(t, []int{2}, api.pages)

	m.Reset()
	l = m.List()
	assert.Nil(t, l.Items)
	assert.Nil(t, l.UpdatedAt)
	assert.Zero(t, l.Page)
}

func TestResetDropsInFlightCycle(t *testing.T) {
	api := &fakeAPI{
		feeds:     []string{"F1"},
		resources: map[string][]models.Resource{"F1": {res("p1")}},
	}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})
	api.onList = m.Reset

	l := m.Refresh(context.Background(), "a")
	assert.Nil(t, l.Items)
	assert.Nil(t, l.UpdatedAt)

	api.set(func(f *fakeAPI) { f.onList = nil })
	l = m.Refresh(context.Background(), "a")
	assert.Equal(t, []string{"/f/p1"}, paths(l))
}

func TestFenceDropsSwitchedTenant(t *testing.T) {
	api := &fakeAPI{
		feeds:     []string{"F1"},
		resources: map[string][]models.Resource{"F1": {res("p1")}},
	}
	m := NewMerger(api, (&reports{}).sink(), nil, quiet(), Config{})
	m.Fence(func(tenant string) bool { return tenant == "b" })

	assert.Nil(t, m.Refresh(context.Background(), "a").Items)
	api.set(func(f *fakeAPI) { f.feeds = nil })
	assert.Nil(t, m.Refresh(context.Background(), "a").Items)

	api.set(func(f *fakeAPI) { f.feeds = []string{"F1"} })
	assert.Equal(t, []string{"/f/p1"}, paths(m.Refresh(context.Background(), "b")))
}
