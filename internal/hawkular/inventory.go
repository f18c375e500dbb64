package hawkular

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"hawkview/internal/models"
)

type feedWire struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type resourceWire struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Properties map[string]any `json:"properties"`
}

func (c *Client) ListFeeds(ctx context.Context, tenant, env string) ([]string, error) {
	var wire []feedWire
	if _, err := c.getJSON(ctx, tenant, "/hawkular/inventory/"+seg(env)+"/feeds", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(wire))
	for _, f := range wire {
		out = append(out, f.ID)
	}
	return out, nil
}

func (c *Client) ListResourcesOfType(ctx context.Context, tenant, env, feed, resourceType string, page, perPage int) (models.ResourcePage, error) {
	p := "/hawkular/inventory/" + seg(env) + "/" + seg(feed) + "/resourceTypes/" + seg(resourceType) + "/resources"
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	var wire []resourceWire
	h, err := c.getJSON(ctx, tenant, p, q, &wire)
	if err != nil {
		return models.ResourcePage{}, err
	}
	out := models.ResourcePage{Items: make([]models.Resource, 0, len(wire)), Links: ParsePageLinks(h)}
	for _, r := range wire {
		out.Items = append(out.Items, models.Resource{ID: r.ID, Path: r.Path, Properties: stringProps(r.Properties)})
	}
	return out, nil
}

// GetResourceConfig returns the raw configuration data of one resource.
func (c *Client) GetResourceConfig(ctx context.Context, tenant, env, feed, resourcePath string) (map[string]any, error) {
	p := "/hawkular/inventory/" + seg(env) + "/" + seg(feed) + "/resources/" + seg(resourcePath) + "/data"
	out := map[string]any{}
	if _, err := c.getJSON(ctx, tenant, p, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringProps(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case nil:
		default:
			b, err := jsonString(t)
			if err == nil {
				out[k] = b
			}
		}
	}
	return out
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
