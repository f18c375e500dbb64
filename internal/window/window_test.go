package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSlidesWithNow(t *testing.T) {
	s := NewSpec(3600000 * time.Millisecond)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := s.Compute(now)
	assert.Equal(t, now.Add(-3600000*time.Millisecond), w.Start)
	assert.Equal(t, now, w.End)

	later := now.Add(20 * time.Second)
	w = s.Compute(later)
	assert.Equal(t, later, w.End)
}

func TestPinnedEndIsNotAdvanced(t *testing.T) {
	s := NewSpec(time.Hour)
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s.Pin(t0)

	for _, now := range []time.Time{t0.Add(time.Hour), t0.Add(48 * time.Hour)} {
		w := s.Compute(now)
		assert.Equal(t, t0, w.End)
		assert.Equal(t, t0.Add(-time.Hour), w.Start)
	}

	s.Unpin()
	now := t0.Add(3 * time.Hour)
	assert.Equal(t, now, s.Compute(now).End)
}

func TestPinRangeRejectsInvertedRange(t *testing.T) {
	s := NewSpec(0)
	assert.Equal(t, DefaultOffset, s.Offset())

	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.False(t, s.PinRange(start, start))

	require.True(t, s.PinRange(start, start.Add(10*time.Minute)))
	w := s.Compute(time.Now())
	assert.Equal(t, start, w.Start)
	assert.Equal(t, start.Add(10*time.Minute), w.End)
	assert.True(t, w.Valid())
}

func TestSetOffsetRestoresDefault(t *testing.T) {
	s := NewSpec(time.Hour)
	s.SetOffset(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, s.Offset())
	s.SetOffset(0)
	require.Equal(t, DefaultOffset, s.Offset())
}
