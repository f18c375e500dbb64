// Package inventory discovers application servers. Feeds are listed first;
// each feed's resources are then fetched with their availability and
// configuration, and merged into a long-lived list keyed by resource path.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hawkview/internal/instrument"
	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

const (
	DefaultResourceType = "WildFly Server"
	DefaultPerPage      = 10
	DefaultEnvironment  = "test"

	component = "inventory"
)

type API interface {
	ListFeeds(ctx context.Context, tenant, env string) ([]string, error)
	ListResourcesOfType(ctx context.Context, tenant, env, feed, resourceType string, page, perPage int) (models.ResourcePage, error)
	GetResourceConfig(ctx context.Context, tenant, env, feed, resourcePath string) (map[string]any, error)
	QueryAvailability(ctx context.Context, tenant, availabilityID string) ([]models.DataPoint, error)
}

// AvailabilityID formats the server availability metric of a resource.
func AvailabilityID(resourceID string) string {
	return "AI~R~[" + resourceID + "]~AT~Server Availability~App Server"
}

type Config struct {
	Environment  string
	ResourceType string
	PerPage      int
	// Concurrency bounds the per-resource detail fetches of one feed.
	Concurrency int
}

// List is the published inventory. Items is nil until the first merge.
type List struct {
	Items     []models.ResourceEntry      `json:"items"`
	Links     map[string]models.PageLinks `json:"links,omitempty"`
	Page      int                         `json:"page"`
	PerPage   int                         `json:"perPage"`
	UpdatedAt *time.Time                  `json:"updatedAt,omitempty"`
}

type Merger struct {
	api     API
	sink    notifier.Sink
	metrics *instrument.Metrics
	log     *slog.Logger
	cfg     Config
	now     func() time.Time
	fence   func(tenant string) bool

	mu        sync.RWMutex
	entries   []models.ResourceEntry
	index     map[string]int
	links     map[string]models.PageLinks
	page      int
	updatedAt *time.Time
	gen       uint64
}

func NewMerger(api API, sink notifier.Sink, m *instrument.Metrics, logger *slog.Logger, cfg Config) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}
	if cfg.ResourceType == "" {
		cfg.ResourceType = DefaultResourceType
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Merger{
		api:     api,
		sink:    sink,
		metrics: m,
		log:     logger.With("module", component),
		cfg:     cfg,
		now:     time.Now,
		index:   map[string]int{},
		links:   map[string]models.PageLinks{},
	}
}

// Fence drops feed results at merge time unless fn still accepts the tenant
// they were fetched for.
func (m *Merger) Fence(fn func(tenant string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fence = fn
}

// stale reports whether results of a cycle started at generation gen for
// tenant must be dropped. Callers hold m.mu.
func (m *Merger) stale(gen uint64, tenant string) bool {
	return gen != m.gen || (m.fence != nil && !m.fence(tenant))
}

// Refresh runs one discovery cycle. Feeds are processed concurrently and each
// feed merges its own batch as soon as it settles, so a slow or failing feed
// never holds back the others. Batches of a cycle overtaken by Reset are
// dropped.
func (m *Merger) Refresh(ctx context.Context, tenant string) List {
	started := m.now()
	m.mu.RLock()
	page, gen := m.page, m.gen
	m.mu.RUnlock()

	feeds, err := m.api.ListFeeds(ctx, tenant, m.cfg.Environment)
	m.metrics.Fetch(component, err)
	if err != nil {
		m.sink.Report(ctx, component, err, "Error fetching feeds.")
		return m.List()
	}
	if len(feeds) == 0 {
		m.mu.Lock()
		if m.stale(gen, tenant) {
			m.mu.Unlock()
			return m.List()
		}
		m.entries = []models.ResourceEntry{}
		m.index = map[string]int{}
		m.links = map[string]models.PageLinks{}
		m.touch()
		m.mu.Unlock()
		m.metrics.Published(component, started)
		return m.List()
	}

	var g errgroup.Group
	for _, feed := range feeds {
		g.Go(func() error {
			m.refreshFeed(ctx, tenant, feed, page, gen)
			return nil
		})
	}
	_ = g.Wait()
	m.metrics.Published(component, started)
	return m.List()
}

func (m *Merger) refreshFeed(ctx context.Context, tenant, feed string, page int, gen uint64) {
	res, err := m.api.ListResourcesOfType(ctx, tenant, m.cfg.Environment, feed, m.cfg.ResourceType, page, m.cfg.PerPage)
	m.metrics.Fetch(component, err)
	if err != nil {
		m.sink.Report(ctx, component, err, fmt.Sprintf("Error fetching resources of feed %s.", feed))
		m.mu.Lock()
		if m.entries == nil && !m.stale(gen, tenant) {
			m.entries = []models.ResourceEntry{}
			m.touch()
		}
		m.mu.Unlock()
		return
	}

	batch := make([]models.ResourceEntry, len(res.Items))
	var g errgroup.Group
	g.SetLimit(m.cfg.Concurrency)
	for i, r := range res.Items {
		batch[i] = models.ResourceEntry{Path: r.Path, ID: r.ID, FeedID: feed, Properties: maps.Clone(r.Properties)}
		entry := &batch[i]
		g.Go(func() error {
			m.availability(ctx, tenant, entry)
			return nil
		})
		g.Go(func() error {
			m.configuration(ctx, tenant, feed, entry)
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	if m.stale(gen, tenant) {
		m.mu.Unlock()
		m.log.Debug("feed dropped, tenant changed", "tenant", tenant, "feed", feed)
		return
	}
	m.links[feed] = res.Links
	m.merge(batch)
	m.touch()
	m.mu.Unlock()
	m.log.Debug("feed merged", "feed", feed, "resources", len(batch))
}

func (m *Merger) availability(ctx context.Context, tenant string, e *models.ResourceEntry) {
	points, err := m.api.QueryAvailability(ctx, tenant, AvailabilityID(e.ID))
	m.metrics.Fetch(component, err)
	if err != nil {
		m.sink.Report(ctx, component, err, fmt.Sprintf("Error fetching availability of %s.", e.ID))
		return
	}
	if len(points) == 0 {
		return
	}
	latest := points[len(points)-1]
	ts := latest.Timestamp
	e.State = latest.Value
	e.UpdateTimestamp = &ts
}

func (m *Merger) configuration(ctx context.Context, tenant, feed string, e *models.ResourceEntry) {
	cfg, err := m.api.GetResourceConfig(ctx, tenant, m.cfg.Environment, feed, e.ID)
	m.metrics.Fetch(component, err)
	if err != nil {
		m.sink.Report(ctx, component, err, fmt.Sprintf("Error fetching configuration of %s.", e.ID))
		return
	}
	e.Configuration = cfg
}

// merge unions batch into the published entries by path. A fresh entry
// replaces the existing one in place and inherits whichever detail it failed
// to fetch; unseen paths are appended. Callers hold m.mu.
func (m *Merger) merge(batch []models.ResourceEntry) {
	if m.entries == nil {
		m.entries = make([]models.ResourceEntry, 0, len(batch))
	}
	for _, e := range batch {
		i, ok := m.index[e.Path]
		if !ok {
			m.index[e.Path] = len(m.entries)
			m.entries = append(m.entries, e)
			continue
		}
		prev := m.entries[i]
		if e.State == "" && e.UpdateTimestamp == nil {
			e.State, e.UpdateTimestamp = prev.State, prev.UpdateTimestamp
		}
		if e.Configuration == nil {
			e.Configuration = prev.Configuration
		}
		m.entries[i] = e
	}
}

func (m *Merger) touch() {
	now := m.now().UTC()
	m.updatedAt = &now
}

// List returns a copy of the published inventory.
func (m *Merger) List() List {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := List{
		Links:     maps.Clone(m.links),
		Page:      m.page,
		PerPage:   m.cfg.PerPage,
		UpdatedAt: m.updatedAt,
	}
	if m.entries != nil {
		out.Items = append([]models.ResourceEntry{}, m.entries...)
	}
	return out
}

// SetPage selects the resource page requested from every feed by the next
// refresh.
func (m *Merger) SetPage(page int) error {
	if page < 0 {
		return fmt.Errorf("page must not be negative, got %d", page)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.page = page
	return nil
}

// Reset forgets every entry; used when the tenant changes.
func (m *Merger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.index = map[string]int{}
	m.links = map[string]models.PageLinks{}
	m.updatedAt = nil
	m.page = 0
	m.gen++
}
