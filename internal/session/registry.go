// Package session holds inference contexts behind opaque integer handles.
//
// A Registry issues handles, resolves them to Contexts and tears them down.
// Each Context binds one inference engine to one model, runs decode and
// inference on demand and keeps its last result or last error for retrieval
// with the two-phase size-query/fill calls.
package session

import (
	"log/slog"
	"math"
	"sync"

	"github.com/chaz8081/audioembed/internal/engine"
)

// Handle identifies a Context. Valid handles are positive; 0 is never issued.
type Handle int32

type entry struct {
	ctx  *Context
	refs int // the table's reference plus one per in-flight Lookup
}

// Registry maps handles to live contexts. It is safe for concurrent use; its
// lock is held only for table reads and writes, never across engine work.
type Registry struct {
	newEngine engine.Factory

	mu      sync.Mutex
	last    Handle
	entries map[Handle]*entry
}

// NewRegistry returns an empty registry whose contexts build engines with newEngine.
func NewRegistry(newEngine engine.Factory) *Registry {
	return &Registry{
		newEngine: newEngine,
		entries:   make(map[Handle]*entry),
	}
}

// Create registers a new unconfigured Context and returns its handle.
// Handles increase monotonically and are never reused.
func (r *Registry) Create() (Handle, error) {
	c := newContext(r.newEngine)

	r.mu.Lock()
	if r.last == math.MaxInt32 {
		r.mu.Unlock()
		return 0, ErrHandlesExhausted
	}
	r.last++
	c.id = r.last
	r.entries[c.id] = &entry{ctx: c, refs: 1}
	r.mu.Unlock()

	slog.Debug("[session] context created", "context", c.id)
	return c.id, nil
}

// Lookup runs fn with the Context for h. The Context stays alive until fn
// returns even if h is destroyed meanwhile.
func (r *Registry) Lookup(h Handle, fn func(*Context) error) error {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		e.refs++
	}
	r.mu.Unlock()

	if !ok {
		return ErrHandleNotFound
	}
	defer r.release(e)
	return fn(e.ctx)
}

// Destroy removes h. The Context's engine is released once no Lookup is
// using it. Destroying an unknown handle returns ErrHandleNotFound.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	e, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
	}
	r.mu.Unlock()

	if !ok {
		return ErrHandleNotFound
	}
	r.release(e)
	slog.Debug("[session] context destroyed", "context", h)
	return nil
}

// Close destroys every context. Issued handles stay retired; the registry
// remains usable.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Handle]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		r.release(e)
	}
	if len(entries) > 0 {
		slog.Info("[session] registry closed", "contexts", len(entries))
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) release(e *entry) {
	r.mu.Lock()
	e.refs--
	last := e.refs == 0
	r.mu.Unlock()

	if last {
		e.ctx.release()
	}
}
