// Package hawkular talks to the Hawkular metrics, alerts, inventory and
// accounts REST APIs. Every call is scoped to a tenant passed by the caller.
package hawkular

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const tenantHeader = "Hawkular-Tenant"

// APIError is returned for any non-2xx backend response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hawkular api %s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{base: u, http: &http.Client{Transport: transport, Timeout: timeout}}, nil
}

// Status queries the metrics status endpoint; used by readiness checks.
func (c *Client) Status(ctx context.Context) error {
	_, _, err := c.do(ctx, "", http.MethodGet, "/hawkular/metrics/status", nil, nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, tenant, p string, q url.Values, out any) (http.Header, error) {
	b, h, err := c.do(ctx, tenant, http.MethodGet, p, q, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return h, nil
}

func (c *Client) putJSON(ctx context.Context, tenant, p string, q url.Values, in any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}
	_, _, err := c.do(ctx, tenant, http.MethodPut, p, q, body)
	return err
}

// do issues one request. p must already be escaped; see seg.
func (c *Client) do(ctx context.Context, tenant, method, p string, q url.Values, body []byte) ([]byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	target := c.base.String() + p
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(tenantHeader, tenant)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 10<<20))
	if err != nil {
		return nil, nil, err
	}
	if res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = res.Status
		}
		return nil, nil, &APIError{Method: method, Path: p, Status: res.StatusCode, Message: msg}
	}
	return b, res.Header, nil
}

// seg escapes one path segment. Hawkular ids carry '~', '[' and spaces.
func seg(s string) string {
	return url.PathEscape(s)
}

func millis(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
