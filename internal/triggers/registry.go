package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

// Session is an Editor with its draft type erased.
type Session interface {
	ID() string
	Kind() models.TriggerKind
	TriggerID() string
	State() State
	Closed() bool
	Wait(ctx context.Context) error
	Reload(ctx context.Context) error
	View() View
	Patch(raw json.RawMessage) (State, error)
	Save(ctx context.Context) error
	Close()
}

var (
	_ Session = (*Editor[AvailabilityDraft])(nil)
	_ Session = (*Editor[ThresholdDraft])(nil)
	_ Session = (*Editor[EventDraft])(nil)
)

type opener func(ctx context.Context, tenant, key string) Session

// Registry opens edit sessions by trigger kind.
type Registry struct {
	openers map[models.TriggerKind]opener
}

func register[D any](r *Registry, api API, sink notifier.Sink, logger *slog.Logger, v Variant[D]) {
	r.openers[v.Kind()] = func(ctx context.Context, tenant, key string) Session {
		return Open(ctx, api, sink, logger, tenant, key, v)
	}
}

func NewRegistry(api API, sink notifier.Sink, logger *slog.Logger) *Registry {
	r := &Registry{openers: map[models.TriggerKind]opener{}}
	register(r, api, sink, logger, Availability{})
	register(r, api, sink, logger, Threshold{})
	register(r, api, sink, logger, Event{})
	return r
}

func (r *Registry) Supports(kind models.TriggerKind) bool {
	_, ok := r.openers[kind]
	return ok
}

// Open panics when no variant handles kind; callers check Supports for user
// input.
func (r *Registry) Open(ctx context.Context, kind models.TriggerKind, tenant, key string) Session {
	open, ok := r.openers[kind]
	if !ok {
		panic(fmt.Sprintf("triggers: no editor variant for kind %q", kind))
	}
	return open(ctx, tenant, key)
}

// Sessions tracks the open edit sessions.
type Sessions struct {
	mu    sync.RWMutex
	items map[string]Session
}

func NewSessions() *Sessions {
	return &Sessions{items: map[string]Session{}}
}

func (s *Sessions) Add(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID()] = sess
}

func (s *Sessions) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.items[id]
	return sess, ok
}

// Remove closes and forgets a session.
func (s *Sessions) Remove(id string) bool {
	s.mu.Lock()
	sess, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
	return ok
}

// CloseAll closes every session; used on tenant change and shutdown.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = map[string]Session{}
	s.mu.Unlock()
	for _, sess := range items {
		sess.Close()
	}
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// PruneClosed forgets sessions that were saved or closed.
func (s *Sessions) PruneClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.items {
		if sess.Closed() {
			delete(s.items, id)
			n++
		}
	}
	return n
}
