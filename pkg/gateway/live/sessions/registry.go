// Package sessions keeps the set of open studio sessions so the server can
// warn and close them during shutdown.
package sessions

import (
	"context"
	"sync"
)

// Handle is what a session exposes to the registry.
type Handle struct {
	Cancel func()
	Notice func(code, message string) error
}

type entry struct {
	handle Handle
	once   sync.Once
}

type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a session. Registering an id twice replaces the older entry.
// The returned func is safe to call more than once.
func (r *Registry) Register(id string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}
	e := &entry{handle: h}

	r.mu.Lock()
	if r.entries == nil {
		r.entries = make(map[string]*entry)
	}
	prev := r.entries[id]
	r.entries[id] = e
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		r.remove(id, prev)
	}
	return func() { r.remove(id, e) }
}

func (r *Registry) remove(id string, e *entry) {
	e.once.Do(func() {
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) handles() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.handle)
	}
	return out
}

// NoticeAll sends a non-fatal notice to every session and reports how many
// accepted it.
func (r *Registry) NoticeAll(code, message string) (sent int) {
	if r == nil {
		return 0
	}
	for _, h := range r.handles() {
		if h.Notice == nil {
			continue
		}
		if h.Notice(code, message) == nil {
			sent++
		}
	}
	return sent
}

func (r *Registry) CancelAll() (canceled int) {
	if r == nil {
		return 0
	}
	for _, h := range r.handles() {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered or ctx is
// done. It reports whether all sessions finished.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
