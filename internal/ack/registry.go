package ack

import (
	"sync"
	"sync/atomic"

	"github.com/luciancaetano/kephasio/internal/protocol"
)

// Registry correlates outbound ack ids with their completion callbacks.
type Registry struct {
	counter atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]func()
}

var shared = New()

// Shared returns the process-wide registry. Every client uses it unless
// configured with its own, so ack ids are unique across clients.
func Shared() *Registry {
	return shared
}

// New creates an empty registry with its own id counter.
func New() *Registry {
	return &Registry{
		pending: make(map[uint64]func()),
	}
}

// Next returns the next ack id. It never returns 0, which means "no ack".
func (r *Registry) Next() uint64 {
	for {
		if id := r.counter.Add(1); id != 0 {
			return id
		}
	}
}

// Register stores fn under id, replacing any previous callback.
func (r *Registry) Register(id uint64, fn func()) {
	if fn == nil {
		fn = func() {}
	}

	r.mu.Lock()
	r.pending[id] = fn
	r.mu.Unlock()
}

// Remove drops the callback registered under id without invoking it.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Resolve invokes and removes the callback for the id found at the start of
// payload. Unknown or unparseable ids are ignored. It reports whether a
// callback ran.
func (r *Registry) Resolve(payload string) bool {
	id, ok := protocol.ParseID(payload)
	if !ok {
		return false
	}

	r.mu.Lock()
	fn, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	fn()
	return true
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
