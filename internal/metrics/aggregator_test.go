package metrics

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

// fakeAPI buckets a constant value the way the backend does: one bucket per
// started interval of width b.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	gate  map[string]chan struct{}
	value float64
}

func (f *fakeAPI) record(kind, id string, bucket time.Duration, w models.TimeWindow) ([]models.BucketPoint, error) {
	name := id[strings.LastIndex(id, "~")+1:]
	f.mu.Lock()
	f.calls = append(f.calls, kind+":"+name+":"+bucket.String())
	fail := f.fail[name]
	gate := f.gate[name]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("backend 500")
	}
	n := w.Buckets(bucket)
	out := make([]models.BucketPoint, n)
	for i := range out {
		out[i] = models.BucketPoint{Timestamp: w.Start.Add(time.Duration(i) * bucket), Min: f.value, Max: f.value * 2, Avg: f.value}
	}
	return out, nil
}

func (f *fakeAPI) QueryGauge(_ context.Context, _ string, id string, start, end time.Time, b time.Duration) ([]models.BucketPoint, error) {
	return f.record("gauge", id, b, models.TimeWindow{Start: start, End: end})
}

func (f *fakeAPI) QueryCounter(_ context.Context, _ string, id string, start, end time.Time, b time.Duration) ([]models.BucketPoint, error) {
	return f.record("counter", id, b, models.TimeWindow{Start: start, End: end})
}

func (f *fakeAPI) QueryCounterRate(_ context.Context, _ string, id string, start, end time.Time, b time.Duration) ([]models.BucketPoint, error) {
	return f.record("rate", id, b, models.TimeWindow{Start: start, End: end})
}

func (f *fakeAPI) callsFor(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.Contains(c, ":"+name+":") {
			out = append(out, c)
		}
	}
	return out
}

type sinkRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (s *sinkRecorder) sink() notifier.Sink {
	return notifier.SinkFunc(func(_ context.Context, _ string, _ error, msg string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.msgs = append(s.msgs, msg)
	})
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRefreshYieldsCeilBucketCount(t *testing.T) {
	cases := []struct {
		window time.Duration
		bucket time.Duration
		want   int
	}{
		{time.Hour, time.Minute, 60},
		{time.Hour + 30*time.Second, time.Minute, 61},
		{59 * time.Second, time.Minute, 1},
		{time.Hour, 7 * time.Minute, 9},
	}
	for _, tc := range cases {
		api := &fakeAPI{value: 1}
		a := NewAggregator(api, (&sinkRecorder{}).sink())
		w := models.TimeWindow{Start: t0.Add(-tc.window), End: t0}

		snap := a.Refresh(context.Background(), "t", "srv1", w, tc.bucket)
		for _, name := range []string{"Heap Used", "NonHeap Committed", "Accumulated GC Duration"} {
			s, ok := snap.Series(name)
			require.True(t, ok, name)
			assert.Len(t, s.Points, tc.want, "%s over %s / %s", name, tc.window, tc.bucket)
		}
	}
}

func TestRefreshScalesMemorySeriesAndComputesStats(t *testing.T) {
	api := &fakeAPI{value: 512 * 1024 * 1024}
	a := NewAggregator(api, (&sinkRecorder{}).sink())
	w := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}

	snap := a.Refresh(context.Background(), "t", "srv1", w, time.Minute)
	require.Len(t, snap.Groups[GroupHeap], 3)
	require.Len(t, snap.Groups[GroupNonHeap], 2)
	require.Len(t, snap.Groups[GroupGC], 1)

	heap := snap.Groups[GroupHeap]
	assert.Equal(t, []string{"Heap Committed", "Heap Used", "Heap Max"}, []string{heap[0].Name, heap[1].Name, heap[2].Name})
	assert.Equal(t, models.ColorUsed, heap[1].Color)
	assert.InDelta(t, 512.0, heap[1].Points[0].Avg, 1e-9)
	assert.InDelta(t, 1024.0, heap[1].Points[0].Max, 1e-9)

	gc := snap.Groups[GroupGC][0]
	assert.InDelta(t, 512*1024*1024.0, gc.Points[0].Avg, 1e-6, "gc rate is unscaled")

	require.NotNil(t, snap.Stats.HeapUsage)
	assert.InDelta(t, 512.0, snap.Stats.HeapUsage.Avg, 1e-9)
	require.NotNil(t, snap.Stats.AccGCDuration)
	assert.InDelta(t, 512*1024*1024.0, *snap.Stats.AccGCDuration, 1e-6)
	assert.Equal(t, []string{"counter:Accumulated GC Duration:1h0m0s", "rate:Accumulated GC Duration:1m0s"}, slices.Sorted(slices.Values(api.callsFor("Accumulated GC Duration"))))
}

func TestFailedStreamIsAbsentAndReported(t *testing.T) {
	api := &fakeAPI{value: 1, fail: map[string]bool{"Heap Committed": true}}
	rec := &sinkRecorder{}
	a := NewAggregator(api, rec.sink())
	w := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}

	snap := a.Refresh(context.Background(), "t", "srv1", w, time.Minute)
	_, ok := snap.Series("Heap Committed")
	assert.False(t, ok)
	_, ok = snap.Series("Heap Used")
	assert.True(t, ok)
	assert.Len(t, snap.Groups[GroupHeap], 2)
	assert.Equal(t, []string{"Error fetching Heap Committed data."}, rec.msgs)
}

func TestToggleSkipsThenRefetchesOnlyOnRefresh(t *testing.T) {
	api := &fakeAPI{value: 1}
	a := NewAggregator(api, (&sinkRecorder{}).sink())
	w := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}
	ctx := context.Background()

	enabled, err := a.Toggle("NonHeap Used")
	require.NoError(t, err)
	assert.False(t, enabled)
	snap := a.Refresh(ctx, "t", "srv1", w, time.Minute)
	_, ok := snap.Series("NonHeap Used")
	assert.False(t, ok)
	assert.Empty(t, api.callsFor("NonHeap Used"))

	enabled, err = a.Toggle("NonHeap Used")
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Empty(t, api.callsFor("NonHeap Used"), "toggle alone must not fetch")

	w2 := models.TimeWindow{Start: t0, End: t0.Add(time.Hour)}
	snap = a.Refresh(ctx, "t", "srv1", w2, time.Minute)
	s, ok := snap.Series("NonHeap Used")
	require.True(t, ok)
	assert.Equal(t, w2.Start, s.Points[0].Timestamp, "re-enabled series carries the fresh window")
	assert.Len(t, api.callsFor("NonHeap Used"), 1)

	_, err = a.Toggle("Thread Count")
	assert.Error(t, err)
	assert.True(t, a.Visibility()["NonHeap Used"])
}

func TestSnapshotSwapsOnlyAfterAllFetchesSettle(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{value: 1}
	a := NewAggregator(api, (&sinkRecorder{}).sink())
	first := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}
	a.Refresh(context.Background(), "t", "srv1", first, time.Minute)

	api.mu.Lock()
	api.gate = map[string]chan struct{}{"Heap Max": gate}
	api.mu.Unlock()

	done := make(chan Snapshot)
	second := models.TimeWindow{Start: t0, End: t0.Add(time.Hour)}
	go func() { done <- a.Refresh(context.Background(), "t", "srv1", second, time.Minute) }()

	require.Eventually(t, func() bool { return len(api.callsFor("NonHeap Used")) == 2 }, time.Second, 5*time.Millisecond)
	snap, ok := a.Snapshot()
	require.True(t, ok)
	assert.Equal(t, first, snap.Window, "published snapshot must not change while a fetch is pending")

	close(gate)
	<-done
	snap, _ = a.Snapshot()
	assert.Equal(t, second, snap.Window)
	for _, group := range snap.Groups {
		for _, s := range group {
			assert.Equal(t, second.Start, s.Points[0].Timestamp, s.Name)
		}
	}

	a.Reset()
	_, ok = a.Snapshot()
	assert.False(t, ok)
}

func TestResetDropsInFlightRefresh(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{value: 1, gate: map[string]chan struct{}{"Heap Used": gate}}
	a := NewAggregator(api, (&sinkRecorder{}).sink())
	w := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Refresh(context.Background(), "t", "srv1", w, time.Minute)
	}()
	require.Eventually(t, func() bool { return len(api.callsFor("Heap Used")) > 0 }, time.Second, 5*time.Millisecond)
	a.Reset()
	close(gate)
	<-done

	_, ok := a.Snapshot()
	assert.False(t, ok)
}

func TestFenceDropsSwitchedTenant(t *testing.T) {
	api := &fakeAPI{value: 1}
	a := NewAggregator(api, (&sinkRecorder{}).sink(), WithFence(func(tenant string) bool { return tenant == "b" }))
	w := models.TimeWindow{Start: t0.Add(-time.Hour), End: t0}

	a.Refresh(context.Background(), "a", "srv1", w, time.Minute)
	_, ok := a.Snapshot()
	assert.False(t, ok)

	a.Refresh(context.Background(), "b", "srv1", w, time.Minute)
	_, ok = a.Snapshot()
	assert.True(t, ok)
}
