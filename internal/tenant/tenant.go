// Package tenant holds the active persona. Views subscribe to it and discard
// their published data when the persona changes.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

var (
	ErrNoTenant       = errors.New("no current tenant")
	ErrUnknownPersona = errors.New("unknown persona")
)

type Context struct {
	mu      sync.RWMutex
	current *models.Persona
	nextID  int
	subs    map[int]func(models.Persona)
}

func NewContext() *Context {
	return &Context{subs: map[int]func(models.Persona){}}
}

func (c *Context) Current() (models.Persona, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return models.Persona{}, false
	}
	return *c.current, true
}

// ID returns the current tenant id or ErrNoTenant.
func (c *Context) ID() (string, error) {
	p, ok := c.Current()
	if !ok || p.ID == "" {
		return "", ErrNoTenant
	}
	return p.ID, nil
}

// Active reports whether id is the current tenant. Components use it to drop
// results fetched for a tenant that has since been switched away.
func (c *Context) Active(id string) bool {
	cur, err := c.ID()
	return err == nil && cur == id
}

// Subscribe registers fn for persona changes. fn runs synchronously on the
// goroutine calling Switch and must not block. The returned func unsubscribes.
func (c *Context) Subscribe(fn func(models.Persona)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Switch makes p current and notifies subscribers. Switching to the persona
// that is already current notifies nobody.
func (c *Context) Switch(p models.Persona) bool {
	c.mu.Lock()
	if c.current != nil && c.current.ID == p.ID {
		c.current = &p
		c.mu.Unlock()
		return false
	}
	c.current = &p
	subs := make([]func(models.Persona), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
	return true
}

// PersonaAPI is the accounts backend.
type PersonaAPI interface {
	CurrentPersona(ctx context.Context) (models.Persona, error)
	Personas(ctx context.Context) ([]models.Persona, error)
}

// Loader resolves the current persona from the accounts service.
type Loader struct {
	api  PersonaAPI
	tc   *Context
	sink notifier.Sink
	log  *slog.Logger
}

func NewLoader(api PersonaAPI, tc *Context, sink notifier.Sink, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{api: api, tc: tc, sink: sink, log: logger.With("module", "tenant")}
}

// LoadCurrent fetches the caller's persona and switches to it.
func (l *Loader) LoadCurrent(ctx context.Context) (models.Persona, error) {
	p, err := l.api.CurrentPersona(ctx)
	if err != nil {
		l.sink.Report(ctx, "tenant", err, "Failed in retrieving the current persona.")
		return models.Persona{}, fmt.Errorf("load current persona: %w", err)
	}
	if l.tc.Switch(p) {
		l.log.Info("persona loaded", "persona", p.ID, "name", p.Name)
	}
	return p, nil
}

func (l *Loader) Personas(ctx context.Context) ([]models.Persona, error) {
	out, err := l.api.Personas(ctx)
	if err != nil {
		l.sink.Report(ctx, "tenant", err, "List of personas could NOT be retrieved.")
		return nil, fmt.Errorf("list personas: %w", err)
	}
	return out, nil
}

// SwitchTo switches to one of the personas the caller may act as.
func (l *Loader) SwitchTo(ctx context.Context, id string) (models.Persona, error) {
	all, err := l.Personas(ctx)
	if err != nil {
		return models.Persona{}, err
	}
	for _, p := range all {
		if p.ID == id {
			l.tc.Switch(p)
			l.log.Info("persona switched", "persona", p.ID)
			return p, nil
		}
	}
	return models.Persona{}, fmt.Errorf("persona %q: %w", id, ErrUnknownPersona)
}
