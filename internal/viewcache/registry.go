package viewcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel indicates an operation referenced a model that was never registered.
var ErrUnknownModel = errors.New("viewcache: model not registered")

// Spec identifies a single cached record by model name and primary key.
type Spec struct {
	Model string
	PK    string
}

// Invalidation describes an upstream cache entry affected by a record change.
// Either Key is set (a raw cache key to drop) or Model/PK reference another
// registered record. Immediate entries are deleted as soon as the triggering
// change is processed; the rest are refreshed by the invalidation worker.
type Invalidation struct {
	Key       string
	Model     string
	PK        string
	Immediate bool
}

// Serializer produces the cached payload for a model instance.
type Serializer func(instance any) ([]byte, error)

// Loader fetches a model instance by primary key. A (nil, nil) return means
// the record does not exist.
type Loader func(ctx context.Context, pk string) (any, error)

// Invalidator lists the upstream entries invalidated by a change to instance.
type Invalidator func(instance any) []Invalidation

// Binding wires one model into the cache.
type Binding struct {
	// Prototype is a pointer to the zero model struct, used for primary-key
	// queries and schema lookups.
	Prototype   any
	Serializer  Serializer
	Loader      Loader
	Invalidator Invalidator
}

// Registry holds the per-model bindings. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Register adds a model binding. Serializer, Loader and Prototype are required.
func (r *Registry) Register(model string, binding Binding) error {
	if model == "" {
		return errors.New("viewcache: model name is required")
	}
	if binding.Prototype == nil {
		return fmt.Errorf("viewcache: binding for %q needs a prototype", model)
	}
	if binding.Serializer == nil {
		return fmt.Errorf("viewcache: binding for %q needs a serializer", model)
	}
	if binding.Loader == nil {
		return fmt.Errorf("viewcache: binding for %q needs a loader", model)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bindings[model]; exists {
		return fmt.Errorf("viewcache: model %q already registered", model)
	}
	r.bindings[model] = binding
	return nil
}

// Binding returns the binding registered for model.
func (r *Registry) Binding(model string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, ok := r.bindings[model]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return binding, nil
}

// Has reports whether a binding exists for model.
func (r *Registry) Has(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.bindings[model]
	return ok
}

// Models returns the registered model names in sorted order.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
