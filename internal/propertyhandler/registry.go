// Package propertyhandler keeps the per-type property handlers of an engine.
package propertyhandler

import (
	"reflect"
	"sync"

	"github.com/hanpama/pathway/internal/accessor"
)

type ifaceEntry struct {
	t reflect.Type
	h accessor.PropertyHandler
}

// Registry maps types to property handlers. A handler registered for a
// concrete type serves exactly that type; one registered for an interface
// type serves every type implementing it, in registration order. Exact
// registrations win over interface ones.
type Registry struct {
	mu     sync.RWMutex
	exact  map[reflect.Type]accessor.PropertyHandler
	ifaces []ifaceEntry
	// resolved caches Lookup results, including misses.
	resolved map[reflect.Type]accessor.PropertyHandler
}

var _ accessor.HandlerLookup = (*Registry)(nil)

func New() *Registry {
	return &Registry{
		exact:    make(map[reflect.Type]accessor.PropertyHandler),
		resolved: make(map[reflect.Type]accessor.PropertyHandler),
	}
}

// Register installs h for t, replacing an earlier registration of the same
// type. A nil h removes the registration.
func (r *Registry) Register(t reflect.Type, h accessor.PropertyHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Kind() == reflect.Interface {
		for i, e := range r.ifaces {
			if e.t == t {
				r.ifaces = append(r.ifaces[:i], r.ifaces[i+1:]...)
				break
			}
		}
		if h != nil {
			r.ifaces = append(r.ifaces, ifaceEntry{t: t, h: h})
		}
	} else if h == nil {
		delete(r.exact, t)
	} else {
		r.exact[t] = h
	}
	clear(r.resolved)
}

// Lookup returns the handler serving t, or nil.
func (r *Registry) Lookup(t reflect.Type) accessor.PropertyHandler {
	if r == nil || t == nil {
		return nil
	}
	r.mu.RLock()
	h, ok := r.resolved[t]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	h = r.exact[t]
	if h == nil {
		for _, e := range r.ifaces {
			if t.Implements(e.t) {
				h = e.h
				break
			}
		}
	}
	r.resolved[t] = h
	return h
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.ifaces)
}
