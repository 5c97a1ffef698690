package viz

import "sync"

// Disposable releases whatever resources a rendered chart instance holds.
type Disposable interface {
	Dispose()
}

// Registry owns the live chart instances, one per container key. It is the
// single piece of shared mutable state in the rendering pipeline, so its
// lifecycle is explicit: registering under an occupied key disposes the
// previous instance first, and Close disposes everything. Silent overwrite
// is not possible through this API.
type Registry struct {
	mu     sync.Mutex
	charts map[string]Disposable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{charts: make(map[string]Disposable)}
}

// Register binds chart to key, disposing any instance already bound there.
func (r *Registry) Register(key string, chart Disposable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.charts[key]; ok {
		old.Dispose()
	}
	r.charts[key] = chart
}

// Dispose releases the instance bound to key, if any.
func (r *Registry) Dispose(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.charts[key]; ok {
		old.Dispose()
		delete(r.charts, key)
	}
}

// Get returns the instance bound to key, or nil.
func (r *Registry) Get(key string) Disposable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.charts[key]
}

// Len reports how many instances are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.charts)
}

// Close disposes every live instance. Call on teardown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, chart := range r.charts {
		chart.Dispose()
		delete(r.charts, key)
	}
}
