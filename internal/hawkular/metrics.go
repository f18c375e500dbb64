package hawkular

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"hawkview/internal/models"
)

type bucketWire struct {
	Start int64     `json:"start"`
	End   int64     `json:"end"`
	Min   flexFloat `json:"min"`
	Max   flexFloat `json:"max"`
	Avg   flexFloat `json:"avg"`
	Empty bool      `json:"empty"`
}

// flexFloat accepts numbers, null and the quoted "NaN"/"Infinity" spellings the
// metrics service uses for empty buckets.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = flexFloat(math.NaN())
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("bucket value %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func finite(v flexFloat) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func (w bucketWire) point() models.BucketPoint {
	p := models.BucketPoint{Timestamp: fromMillis(w.Start)}
	if w.Empty || !finite(w.Min) || !finite(w.Max) || !finite(w.Avg) {
		p.Empty = true
		return p
	}
	p.Min, p.Max, p.Avg = float64(w.Min), float64(w.Max), float64(w.Avg)
	return p
}

func (c *Client) QueryGauge(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error) {
	return c.buckets(ctx, tenant, "/hawkular/metrics/gauges/"+seg(metricID)+"/data", start, end, bucket)
}

func (c *Client) QueryCounter(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error) {
	return c.buckets(ctx, tenant, "/hawkular/metrics/counters/"+seg(metricID)+"/data", start, end, bucket)
}

func (c *Client) QueryCounterRate(ctx context.Context, tenant, metricID string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error) {
	return c.buckets(ctx, tenant, "/hawkular/metrics/counters/"+seg(metricID)+"/rate", start, end, bucket)
}

func (c *Client) buckets(ctx context.Context, tenant, p string, start, end time.Time, bucket time.Duration) ([]models.BucketPoint, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("bucket duration must be positive, got %s", bucket)
	}
	q := url.Values{}
	q.Set("start", millis(start))
	q.Set("end", millis(end))
	q.Set("bucketDuration", fmt.Sprintf("%dms", bucket.Milliseconds()))

	b, _, err := c.do(ctx, tenant, http.MethodGet, p, q, nil)
	if err != nil {
		return nil, err
	}
	// 204 means no data in range.
	if len(bytes.TrimSpace(b)) == 0 {
		return []models.BucketPoint{}, nil
	}
	var wire []bucketWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	out := make([]models.BucketPoint, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.point())
	}
	return out, nil
}

type availabilityWire struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// QueryAvailability returns availability transitions only (distinct=true),
// oldest first.
func (c *Client) QueryAvailability(ctx context.Context, tenant, availabilityID string) ([]models.DataPoint, error) {
	p := "/hawkular/metrics/availability/" + seg(availabilityID) + "/data"
	q := url.Values{}
	q.Set("distinct", "true")
	b, _, err := c.do(ctx, tenant, http.MethodGet, p, q, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []models.DataPoint{}, nil
	}
	var wire []availabilityWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	out := make([]models.DataPoint, 0, len(wire))
	for _, w := range wire {
		out = append(out, models.DataPoint{Timestamp: fromMillis(w.Timestamp), Value: w.Value})
	}
	return out, nil
}
