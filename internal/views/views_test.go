package views

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hawkview/internal/alerts"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
	"hawkview/internal/scheduler"
	"hawkview/internal/tenant"
)

type fakeBackend struct {
	metricCalls atomic.Int64
	alertCalls  atomic.Int64
	feedCalls   atomic.Int64

	// gated tenant blocks in ListResourcesOfType until gate is closed.
	gated   string
	gate    chan struct{}
	entered chan struct{}

	mu       sync.Mutex
	tenants  []string
	resolved []string
}

func (f *fakeBackend) seen(tenant string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, tenant)
}

func (f *fakeBackend) points(start time.Time) []models.BucketPoint {
	return []models.BucketPoint{{Timestamp: start, Min: 1 << 20, Max: 2 << 20, Avg: 1 << 20}}
}

func (f *fakeBackend) QueryGauge(_ context.Context, tenant, _ string, start, _ time.Time, _ time.Duration) ([]models.BucketPoint, error) {
	f.metricCalls.Add(1)
	f.seen(tenant)
	return f.points(start), nil
}

func (f *fakeBackend) QueryCounter(_ context.Context, _, _ string, start, _ time.Time, _ time.Duration) ([]models.BucketPoint, error) {
	f.metricCalls.Add(1)
	return f.points(start), nil
}

func (f *fakeBackend) QueryCounterRate(_ context.Context, _, _ string, start, _ time.Time, _ time.Duration) ([]models.BucketPoint, error) {
	f.metricCalls.Add(1)
	return f.points(start), nil
}

func (f *fakeBackend) QueryAlerts(_ context.Context, _ string, q models.AlertQuery) (models.AlertPage, error) {
	f.alertCalls.Add(1)
	items := make([]models.RawAlert, 0, len(q.TriggerIDs))
	for _, id := range q.TriggerIDs {
		items = append(items, models.RawAlert{ID: "a-" + id, TriggerID: id, Status: alerts.StatusOpen})
	}
	return models.AlertPage{Items: items}, nil
}

func (f *fakeBackend) Resolve(_ context.Context, _ string, ids string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, ids)
	return nil
}

func (f *fakeBackend) ListFeeds(context.Context, string, string) ([]string, error) {
	f.feedCalls.Add(1)
	return []string{"F1"}, nil
}

func (f *fakeBackend) ListResourcesOfType(_ context.Context, tenant, _, feed, _ string, _, _ int) (models.ResourcePage, error) {
	if f.gate != nil && tenant == f.gated {
		f.entered <- struct{}{}
		<-f.gate
	}
	return models.ResourcePage{Items: []models.Resource{{ID: "srv1", Path: "/t;" + tenant + "/f;" + feed + "/r;srv1"}}}, nil
}

func (f *fakeBackend) GetResourceConfig(context.Context, string, string, string, string) (map[string]any, error) {
	return map[string]any{"Server State": "running"}, nil
}

func (f *fakeBackend) QueryAvailability(context.Context, string, string) ([]models.DataPoint, error) {
	return []models.DataPoint{{Timestamp: time.Unix(10, 0).UTC(), Value: "up"}}, nil
}

type manualClock struct {
	now time.Time
	ch  chan time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Ticker(time.Duration) scheduler.Ticker { return c }

func (c *manualClock) Chan() <-chan time.Time { return c.ch }

func (c *manualClock) Stop() {}

func (c *manualClock) tick() {
	select {
	case c.ch <- c.now:
	default:
	}
}

type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) Publish(topic, kind string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, topic+" "+kind)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.list...)
}

type fixture struct {
	backend *fakeBackend
	tenants *tenant.Context
	clock   *manualClock
	events  *events
	reg     *Registry
}

func newFixture(t *testing.T, persona string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		backend: &fakeBackend{},
		tenants: tenant.NewContext(),
		clock:   &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ch: make(chan time.Time, 1)},
		events:  &events{},
	}
	if persona != "" {
		f.tenants.Switch(models.Persona{ID: persona})
	}
	f.reg = NewRegistry(context.Background(), Deps{
		Backend:   f.backend,
		Tenants:   f.tenants,
		Scheduler: scheduler.New(f.clock, logger),
		Sink:      notifier.SinkFunc(func(context.Context, string, error, string) {}),
		Publisher: f.events,
		Logger:    logger,
	})
	t.Cleanup(f.reg.CloseAll)
	return f
}

func TestJVMOpenFetchesAndPublishes(t *testing.T) {
	f := newFixture(t, "t1")
	v, created := f.reg.OpenJVM("srv1")
	require.True(t, created)
	v.Settle()

	st := v.State()
	require.NotNil(t, st.Metrics)
	assert.Len(t, st.Metrics.Groups, 3)
	assert.Equal(t, time.Hour, st.Window.Duration())
	assert.Equal(t, time.Minute, st.Metrics.Bucket)
	assert.Len(t, st.Alerts, len(alerts.JVMBranches))
	assert.Equal(t, []string{"jvm/srv1 published"}, f.events.all())

	again, created := f.reg.OpenJVM("srv1")
	assert.False(t, created)
	assert.Same(t, v, again)
}

func TestNoTenantDefersUntilSwitch(t *testing.T) {
	f := newFixture(t, "")
	v, _ := f.reg.OpenJVM("srv1")
	v.Settle()
	assert.Zero(t, f.backend.metricCalls.Load())
	assert.Nil(t, v.State().Metrics)

	f.tenants.Switch(models.Persona{ID: "t2"})
	v.Settle()
	assert.NotZero(t, f.backend.metricCalls.Load())
	assert.Equal(t, []string{"jvm/srv1 reset", "jvm/srv1 published"}, f.events.all())
	f.backend.mu.Lock()
	assert.Contains(t, f.backend.tenants, "t2")
	f.backend.mu.Unlock()
}

func TestTickRefreshesUntilClosed(t *testing.T) {
	f := newFixture(t, "t1")
	v, _ := f.reg.OpenConsole("srv1")
	v.Settle()
	require.EqualValues(t, 1, f.backend.alertCalls.Load())

	f.clock.tick()
	require.Eventually(t, func() bool { return f.backend.alertCalls.Load() == 2 }, time.Second, 5*time.Millisecond)

	require.True(t, f.reg.CloseConsole("srv1"))
	assert.True(t, v.Closed())
	v.wait()
	f.clock.tick()
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 2, f.backend.alertCalls.Load())
	assert.False(t, f.reg.CloseConsole("srv1"))
}

func TestConsoleResolve(t *testing.T) {
	f := newFixture(t, "t1")
	v, _ := f.reg.OpenConsole("srv1")
	v.Settle()
	require.Len(t, v.Page().Items, 2)

	require.NoError(t, v.Resolve(context.Background()))
	assert.Empty(t, v.Page().Items)
	assert.Equal(t, []string{"a-srv1_trigger_avail,a-srv1_trigger_thres"}, f.backend.resolved)
	assert.ErrorIs(t, v.Resolve(context.Background()), alerts.ErrNothingToResolve)
}

func TestPinRangeFreezesWindow(t *testing.T) {
	f := newFixture(t, "t1")
	v, _ := f.reg.OpenJVM("srv1")
	v.Settle()

	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	assert.False(t, v.PinRange(context.Background(), end, start))
	require.True(t, v.PinRange(context.Background(), start, end))
	v.Settle()

	f.clock.now = f.clock.now.Add(time.Hour)
	st := v.State()
	assert.True(t, st.Pinned)
	assert.Equal(t, models.TimeWindow{Start: start, End: end}, st.Window)

	v.Unpin(context.Background())
	v.Settle()
	assert.Equal(t, time.Hour, v.Window().Duration())
	assert.False(t, v.State().Pinned)
}

func TestServerListIsShared(t *testing.T) {
	f := newFixture(t, "t1")
	s := f.reg.Servers()
	s.Settle()
	assert.Same(t, s, f.reg.Servers())

	l := s.List()
	require.Len(t, l.Items, 1)
	assert.Equal(t, "up", l.Items[0].State)
	assert.Equal(t, 1, f.reg.Open())
	require.NoError(t, s.SetPage(context.Background(), 1))
	assert.Error(t, s.SetPage(context.Background(), -1))
}

func TestTenantSwitchDropsSlowRefresh(t *testing.T) {
	f := newFixture(t, "tA")
	f.backend.gated = "tA"
	f.backend.gate = make(chan struct{})
	f.backend.entered = make(chan struct{}, 1)

	s := f.reg.Servers()
	select {
	case <-f.backend.entered:
	case <-time.After(time.Second):
		t.Fatal("refresh for tA never listed resources")
	}

	f.tenants.Switch(models.Persona{ID: "tB"})
	require.Eventually(t, func() bool {
		return len(s.List().Items) == 1
	}, time.Second, 5*time.Millisecond)

	close(f.backend.gate)
	s.Settle()

	l := s.List()
	require.Len(t, l.Items, 1)
	assert.Equal(t, "/t;tB/f;F1/r;srv1", l.Items[0].Path)
	assert.Equal(t, []string{"servers reset", "servers published"}, f.events.all())
}
