package adaptive

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
)

// Compiler is the specialization backend. Compile must not evaluate the
// chain and must return an error wrapping
// accessor.ErrCompilationNotSupported for chains it declines.
type Compiler interface {
	Compile(head *accessor.Node) (accessor.Accessor, error)
}

// unit is one live compiled accessor and the call site it is installed in.
type unit struct {
	site *Accessor
	acc  accessor.Accessor
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Live     int
	Compiled int64
	Declined int64
	Evicted  int64
	Resets   int64
}

// Registry tracks every live compiled unit of an engine and bounds their
// number. Compilation and registration run under a shared lock; a global
// reset takes the lock exclusively.
type Registry struct {
	opts     Options
	compiler Compiler

	global sync.RWMutex

	mu    sync.Mutex
	units *list.List // of *unit, oldest first

	compiled atomic.Int64
	declined atomic.Int64
	evicted  atomic.Int64
	resets   atomic.Int64
}

// NewRegistry returns a registry that specializes with compiler.
func NewRegistry(compiler Compiler, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.normalize()
	return &Registry{opts: *o, compiler: compiler, units: list.New()}
}

// Options returns the effective options.
func (r *Registry) Options() Options { return r.opts }

// Len returns the number of live units.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units.Len()
}

// IsOverloaded reports whether more units are live than the tenure limit
// permits.
func (r *Registry) IsOverloaded() bool {
	return r.Len() > r.opts.TenureLimit
}

// register appends u and evicts the oldest units while the tenure limit is
// exceeded. Evicted units are deoptimized after the list lock is released.
func (r *Registry) register(u *unit) {
	var evicted []*unit
	r.mu.Lock()
	r.units.PushBack(u)
	for r.units.Len() > r.opts.TenureLimit {
		front := r.units.Front()
		evicted = append(evicted, r.units.Remove(front).(*unit))
	}
	r.mu.Unlock()

	r.compiled.Add(1)
	for _, e := range evicted {
		r.evicted.Add(1)
		e.site.deoptimize(e, "tenure limit")
	}
}

// EnforceTenureLimit deoptimizes every live unit if the registry is
// overloaded. It reports whether a reset happened.
func (r *Registry) EnforceTenureLimit() bool {
	r.global.Lock()
	defer r.global.Unlock()
	if r.Len() <= r.opts.TenureLimit {
		return false
	}
	r.resetLocked("tenure limit exceeded")
	return true
}

// Reset deoptimizes every live unit and clears the registry.
func (r *Registry) Reset() {
	r.global.Lock()
	defer r.global.Unlock()
	r.resetLocked("reset")
}

func (r *Registry) resetLocked(reason string) {
	r.mu.Lock()
	all := make([]*unit, 0, r.units.Len())
	for e := r.units.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*unit))
	}
	r.units.Init()
	r.mu.Unlock()

	for _, u := range all {
		u.site.deoptimize(u, reason)
	}
	r.resets.Add(1)
	eventbus.Publish(context.Background(), r.opts.Bus, events.RegistryReset{Units: len(all), Reason: reason})
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Live:     r.Len(),
		Compiled: r.compiled.Load(),
		Declined: r.declined.Load(),
		Evicted:  r.evicted.Load(),
		Resets:   r.resets.Load(),
	}
}
