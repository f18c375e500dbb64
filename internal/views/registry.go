package views

import (
	"context"
	"sync"
)

type view interface {
	Close()
	Settle()
	wait()
}

// Registry owns every open view. Views are keyed by resource id; opening an
// already open view returns the existing one.
type Registry struct {
	ctx  context.Context
	deps Deps

	mu       sync.Mutex
	jvm      map[string]*JVMDetails
	consoles map[string]*AlertConsole
	servers  *ServerList
}

// NewRegistry creates an empty registry. ctx bounds every refresh task.
func NewRegistry(ctx context.Context, d Deps) *Registry {
	d.defaults()
	return &Registry{
		ctx:      ctx,
		deps:     d,
		jvm:      map[string]*JVMDetails{},
		consoles: map[string]*AlertConsole{},
	}
}

func (r *Registry) OpenJVM(resourceID string) (*JVMDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.jvm[resourceID]; ok {
		return v, false
	}
	v := newJVMDetails(r.ctx, r.deps, resourceID)
	r.jvm[resourceID] = v
	return v, true
}

func (r *Registry) JVM(resourceID string) (*JVMDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.jvm[resourceID]
	return v, ok
}

func (r *Registry) CloseJVM(resourceID string) bool {
	r.mu.Lock()
	v, ok := r.jvm[resourceID]
	delete(r.jvm, resourceID)
	r.mu.Unlock()
	if ok {
		v.Close()
	}
	return ok
}

func (r *Registry) OpenConsole(resourceID string) (*AlertConsole, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.consoles[resourceID]; ok {
		return v, false
	}
	v := newAlertConsole(r.ctx, r.deps, resourceID)
	r.consoles[resourceID] = v
	return v, true
}

func (r *Registry) Console(resourceID string) (*AlertConsole, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.consoles[resourceID]
	return v, ok
}

func (r *Registry) CloseConsole(resourceID string) bool {
	r.mu.Lock()
	v, ok := r.consoles[resourceID]
	delete(r.consoles, resourceID)
	r.mu.Unlock()
	if ok {
		v.Close()
	}
	return ok
}

// Servers returns the inventory view, starting it on first use.
func (r *Registry) Servers() *ServerList {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.servers == nil {
		r.servers = newServerList(r.ctx, r.deps)
	}
	return r.servers
}

// Open reports the number of open views.
func (r *Registry) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.jvm) + len(r.consoles)
	if r.servers != nil {
		n++
	}
	return n
}

// CloseAll closes every view and waits for their tasks to stop.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	closers := make([]view, 0, len(r.jvm)+len(r.consoles)+1)
	for _, v := range r.jvm {
		closers = append(closers, v)
	}
	for _, v := range r.consoles {
		closers = append(closers, v)
	}
	if r.servers != nil {
		closers = append(closers, r.servers)
	}
	r.jvm = map[string]*JVMDetails{}
	r.consoles = map[string]*AlertConsole{}
	r.servers = nil
	r.mu.Unlock()

	for _, v := range closers {
		v.Close()
	}
	for _, v := range closers {
		v.wait()
		v.Settle()
	}
}
