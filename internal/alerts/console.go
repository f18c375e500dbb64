package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"hawkview/internal/instrument"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

const DefaultPerPage = 5

// ErrNothingToResolve rejects a bulk resolve of an empty list before any
// backend call is made.
var ErrNothingToResolve = errors.New("no alerts to resolve")

// ConsoleTriggerIDs are the triggers whose alerts the console lists.
func ConsoleTriggerIDs(resourceKey string) []string {
	return []string{resourceKey + "_trigger_avail", resourceKey + "_trigger_thres"}
}

// Page is one published page of the console list.
type Page struct {
	Items     []models.AlertRecord `json:"items"`
	Links     models.PageLinks     `json:"links"`
	Page      int                  `json:"page"`
	PerPage   int                  `json:"perPage"`
	Resolving bool                 `json:"resolving"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

type Console struct {
	api     API
	sink    notifier.Sink
	metrics *instrument.Metrics
	log     *slog.Logger
	perPage int
	now     func() time.Time
	fence   func(tenant string) bool

	mu        sync.RWMutex
	page      int
	current   Page
	loaded    bool
	resolving bool
	gen       uint64
}

func NewConsole(api API, sink notifier.Sink, m *instrument.Metrics, logger *slog.Logger, perPage int) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Console{
		api:     api,
		sink:    sink,
		metrics: m,
		log:     logger.With("module", "alerts.console"),
		perPage: perPage,
		now:     time.Now,
	}
}

func categoryOf(raw models.RawAlert) models.AlertCategory {
	switch raw.Type {
	case "AVAILABILITY":
		return models.CategoryAvailability
	case "THRESHOLD":
		return models.CategoryThreshold
	default:
		return models.AlertCategory(raw.Type)
	}
}

// Fence drops a refresh at publish time unless fn still accepts the tenant
// it queried for.
func (c *Console) Fence(fn func(tenant string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fence = fn
}

// Refresh fetches the current page. The fetched page replaces the published
// one; pages are never merged. A failed fetch keeps the previous page.
func (c *Console) Refresh(ctx context.Context, tenant, resourceKey string, w models.TimeWindow) (Page, error) {
	started := c.now()
	c.mu.RLock()
	page, gen := c.page, c.gen
	c.mu.RUnlock()

	res, err := c.api.QueryAlerts(ctx, tenant, models.AlertQuery{
		Statuses:   []string{StatusOpen},
		TriggerIDs: ConsoleTriggerIDs(resourceKey),
		Window:     w,
		Page:       page,
		PerPage:    c.perPage,
	})
	c.metrics.Fetch("alerts.console", err)
	if err != nil {
		c.sink.Report(ctx, "alerts", err, "Error fetching alerts.")
		return c.Current(), fmt.Errorf("query console alerts: %w", err)
	}

	items := make([]models.AlertRecord, 0, len(res.Items))
	for _, raw := range res.Items {
		items = append(items, Tag(raw, resourceKey, categoryOf(raw)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page != page {
		// SetPage raced with this fetch; its own refresh publishes.
		return c.current, nil
	}
	if gen != c.gen || (c.fence != nil && !c.fence(tenant)) {
		c.log.Debug("page dropped, tenant changed", "tenant", tenant)
		return c.current, nil
	}
	c.current = Page{
		Items:     items,
		Links:     res.Links,
		Page:      page,
		PerPage:   c.perPage,
		Resolving: c.resolving,
		UpdatedAt: c.now(),
	}
	c.loaded = true
	c.metrics.Published("alerts.console", started)
	return c.current, nil
}

// SetPage selects the page index (from 0) used by the following refreshes.
func (c *Console) SetPage(page int) error {
	if page < 0 {
		return fmt.Errorf("page must not be negative, got %d", page)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.page = page
	return nil
}

func (c *Console) Current() Page {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.current
	p.Resolving = c.resolving
	if !c.loaded {
		p.Page, p.PerPage = c.page, c.perPage
	}
	return p
}

func (c *Console) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Page{}
	c.loaded = false
	c.page = 0
	c.gen++
}

// ResolveAll resolves every alert currently listed with a single call. On
// success the local list is cleared; on failure it is kept.
func (c *Console) ResolveAll(ctx context.Context, tenant string) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.current.Items))
	for _, a := range c.current.Items {
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		c.mu.Unlock()
		return ErrNothingToResolve
	}
	c.resolving = true
	c.mu.Unlock()

	err := c.api.Resolve(ctx, tenant, strings.Join(ids, ","))

	c.mu.Lock()
	c.resolving = false
	if err == nil {
		c.current.Items = []models.AlertRecord{}
	}
	c.mu.Unlock()
	if err != nil {
		c.sink.Report(ctx, "alerts", err, "Error resolving alerts.")
		return fmt.Errorf("resolve %d alerts: %w", len(ids), err)
	}
	c.log.Info("alerts resolved", "count", len(ids))
	return nil
}
