// Package triggers edits alert trigger settings. An Editor loads one trigger
// definition, exposes a typed draft of its editable fields, tracks whether
// the draft differs from what was loaded and saves a diffed update.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"hawkview/internal/models"
	"hawkview/internal/notifier"
)

type State int

const (
	Unloaded State = iota
	Loading
	Clean
	Dirty
	Saving
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	ErrSessionClosed = errors.New("edit session closed")
	ErrNotLoaded     = errors.New("trigger not loaded")
	ErrNothingToSave = errors.New("no unsaved changes")
	ErrBusy          = errors.New("edit session busy")
)

const savedMessage = "Changes saved successfully."

type API interface {
	GetTrigger(ctx context.Context, tenant, triggerID string) (models.FullTrigger, error)
	UpdateTrigger(ctx context.Context, tenant string, updated, original models.FullTrigger) error
}

// Editor is one edit session over a single trigger. It is closed after the
// first save attempt, successful or not.
type Editor[D any] struct {
	id        string
	variant   Variant[D]
	triggerID string
	tenant    string
	api       API
	sink      notifier.Sink
	log       *slog.Logger
	now       func() time.Time
	loaded    chan struct{}

	mu       sync.RWMutex
	state    State
	closed   bool
	loadErr  error
	original models.FullTrigger
	baseline D
	draft    D
	notes    []models.Notification
}

// Open starts loading the trigger derived from key and returns immediately.
// The load outlives ctx cancellation; the backend client timeout bounds it.
func Open[D any](ctx context.Context, api API, sink notifier.Sink, logger *slog.Logger, tenant, key string, v Variant[D]) *Editor[D] {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Editor[D]{
		id:        uuid.NewString(),
		variant:   v,
		triggerID: v.TriggerID(key),
		tenant:    tenant,
		api:       api,
		sink:      sink,
		now:       time.Now,
	}
	e.log = logger.With("module", "triggers", "session", e.id, "trigger", e.triggerID)
	e.startLoad(context.WithoutCancel(ctx))
	return e
}

func (e *Editor[D]) startLoad(ctx context.Context) {
	e.mu.Lock()
	e.state = Loading
	e.loadErr = nil
	done := make(chan struct{})
	e.loaded = done
	e.mu.Unlock()
	go func() {
		defer close(done)
		e.load(ctx)
	}()
}

func (e *Editor[D]) load(ctx context.Context) {
	def, err := e.api.GetTrigger(ctx, e.tenant, e.triggerID)
	var draft D
	if err == nil {
		draft, err = e.variant.Extract(def)
	}
	if err != nil {
		e.sink.Report(ctx, "triggers", err, fmt.Sprintf("Error loading trigger %s.", e.triggerID))
		e.mu.Lock()
		e.state = Unloaded
		e.loadErr = err
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.original = def
	e.baseline = draft
	e.draft = draft
	e.state = Clean
	e.log.Debug("trigger loaded")
}

// Reload retries a failed load.
func (e *Editor[D]) Reload(ctx context.Context) error {
	e.mu.RLock()
	closed, state := e.closed, e.state
	e.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	if state != Unloaded {
		return ErrBusy
	}
	e.startLoad(context.WithoutCancel(ctx))
	return nil
}

// Wait blocks until the current load settled and returns its error.
func (e *Editor[D]) Wait(ctx context.Context) error {
	e.mu.RLock()
	done := e.loaded
	e.mu.RUnlock()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadErr
}

func (e *Editor[D]) ID() string { return e.id }

func (e *Editor[D]) Kind() models.TriggerKind { return e.variant.Kind() }

func (e *Editor[D]) TriggerID() string { return e.triggerID }

func (e *Editor[D]) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Editor[D]) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Editor[D]) Dirty() bool {
	return e.State() == Dirty
}

func (e *Editor[D]) Draft() (D, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var zero D
	if e.state == Unloaded || e.state == Loading {
		return zero, ErrNotLoaded
	}
	return e.draft, nil
}

// Definition returns a copy of the loaded trigger, including the read-only
// context of event triggers.
func (e *Editor[D]) Definition() (models.FullTrigger, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == Unloaded || e.state == Loading {
		return models.FullTrigger{}, false
	}
	return e.original.Clone(), true
}

// Update mutates the draft and recomputes the dirty state by comparing it
// with the loaded values, so reverting an edit makes the session clean again.
func (e *Editor[D]) Update(fn func(*D)) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return e.state, ErrSessionClosed
	}
	switch e.state {
	case Unloaded, Loading:
		return e.state, ErrNotLoaded
	case Saving:
		return e.state, ErrBusy
	}
	fn(&e.draft)
	if cmp.Equal(e.draft, e.baseline) {
		e.state = Clean
	} else {
		e.state = Dirty
	}
	return e.state, nil
}

// Save writes the draft onto a copy of the loaded definition and sends the
// difference to the backend. The session notification list is replaced by a
// single entry describing the outcome and the session is closed either way.
func (e *Editor[D]) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrSessionClosed
	}
	switch e.state {
	case Unloaded, Loading:
		e.mu.Unlock()
		return ErrNotLoaded
	case Saving:
		e.mu.Unlock()
		return ErrBusy
	case Clean:
		e.mu.Unlock()
		return ErrNothingToSave
	}
	e.state = Saving
	original := e.original
	draft := e.draft
	e.mu.Unlock()

	updated := original.Clone()
	e.variant.Apply(&updated, draft)
	err := e.api.UpdateTrigger(ctx, e.tenant, updated, original)

	note := models.Notification{
		ID:      uuid.NewString(),
		TS:      e.now().UTC(),
		Source:  "triggers",
		Level:   models.LevelSuccess,
		Message: savedMessage,
	}
	if err != nil {
		note.Level = models.LevelError
		note.Message = fmt.Sprintf("Error saving trigger %s.", e.triggerID)
		note.Cause = err.Error()
		e.sink.Report(ctx, "triggers", err, note.Message)
	}

	e.mu.Lock()
	e.notes = []models.Notification{note}
	if err != nil {
		e.state = Dirty
	} else {
		e.original = updated
		e.baseline = draft
		e.state = Clean
	}
	e.closed = true
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("save trigger %s: %w", e.triggerID, err)
	}
	e.log.Info("trigger saved")
	return nil
}

// Close discards the session. Loads still in flight are dropped on arrival.
func (e *Editor[D]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *Editor[D]) Notifications() []models.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Notification, len(e.notes))
	copy(out, e.notes)
	return out
}

// View is the JSON form of a session.
type View struct {
	ID            string                `json:"id"`
	Kind          models.TriggerKind    `json:"kind"`
	TriggerID     string                `json:"triggerId"`
	State         State                 `json:"state"`
	Closed        bool                  `json:"closed"`
	Draft         any                   `json:"draft,omitempty"`
	Context       map[string]string     `json:"context,omitempty"`
	Notifications []models.Notification `json:"notifications"`
	Error         string                `json:"error,omitempty"`
}

func (e *Editor[D]) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v := View{
		ID:            e.id,
		Kind:          e.variant.Kind(),
		TriggerID:     e.triggerID,
		State:         e.state,
		Closed:        e.closed,
		Notifications: append([]models.Notification{}, e.notes...),
	}
	if e.loadErr != nil {
		v.Error = e.loadErr.Error()
	}
	if e.state != Unloaded && e.state != Loading {
		v.Draft = e.draft
		if e.variant.Kind() == models.KindEvent {
			v.Context = e.original.Trigger.Context
		}
	}
	return v
}

// Patch decodes a partial JSON draft over the current draft. Fields absent
// from raw keep their values.
func (e *Editor[D]) Patch(raw json.RawMessage) (State, error) {
	var decodeErr error
	state, err := e.Update(func(d *D) {
		next := *d
		if decodeErr = json.Unmarshal(raw, &next); decodeErr == nil {
			*d = next
		}
	})
	if err != nil {
		return state, err
	}
	if decodeErr != nil {
		return state, fmt.Errorf("decode draft: %w", decodeErr)
	}
	return state, nil
}
