// Package adaptive promotes hot call sites from the interpreted strategy to a
// compiled one.
//
// Each Accessor profiles its own invocations within a sliding time window.
// When the count reaches the threshold inside the window the site attempts
// specialization once, synchronously, on the calling goroutine. A successful
// unit is installed and registered; a declined chain pins the site to the
// interpreted strategy. The registry may later deoptimize any unit, which puts
// its site back on the interpreted strategy with fresh counters.
//
// Profiling counters are plain atomic loads and stores without
// compare-and-swap. Concurrent callers may lose increments, which only moves
// the moment of promotion.
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/scope"
	"github.com/hanpama/pathway/internal/siteid"
)

// State is the tier of a call site.
type State uint32

const (
	// Cold sites have never been invoked.
	Cold State = iota
	// Warm sites run interpreted and count invocations.
	Warm
	// Hot sites run a compiled unit.
	Hot
	// Demoted sites were deoptimized and run interpreted until they warm up
	// again.
	Demoted
)

func (s State) String() string {
	switch s {
	case Cold:
		return "COLD"
	case Warm:
		return "WARM"
	case Hot:
		return "HOT"
	case Demoted:
		return "DEMOTED"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

type installed struct {
	acc  accessor.Accessor
	unit *unit
}

// Accessor is one adaptive call site.
type Accessor struct {
	site siteid.Site
	head *accessor.Node
	safe accessor.Accessor
	reg  *Registry

	current atomic.Pointer[installed]

	count     atomic.Int64
	stamp     atomic.Int64 // window start, unix nanoseconds; 0 before the first call
	optimized atomic.Bool
	declined  atomic.Bool
	busy      atomic.Bool
	state     atomic.Uint32
}

var _ accessor.Accessor = (*Accessor)(nil)

// New returns a call site over head. safe is the interpreted accessor over
// the same chain; it is installed first and restored on deoptimization.
func New(site siteid.Site, head *accessor.Node, safe accessor.Accessor, reg *Registry) *Accessor {
	a := &Accessor{site: site, head: head, safe: safe, reg: reg}
	a.current.Store(&installed{acc: safe})
	return a
}

// Site returns the call-site identity.
func (a *Accessor) Site() siteid.Site { return a.site }

// State returns the current tier.
func (a *Accessor) State() State { return State(a.state.Load()) }

// Declined reports whether the compiler refused this chain. Declined sites stay
// interpreted for their whole lifetime.
func (a *Accessor) Declined() bool { return a.declined.Load() }

// Invocations returns the invocation count of the current window.
func (a *Accessor) Invocations() int64 { return a.count.Load() }

// Current returns the accessor that serves calls right now.
func (a *Accessor) Current() accessor.Accessor { return a.current.Load().acc }

func (a *Accessor) Get(target, root any, s *scope.Scope) (any, error) {
	if !a.optimized.Load() {
		a.profile()
	}
	return a.current.Load().acc.Get(target, root, s)
}

func (a *Accessor) Set(target, root any, s *scope.Scope, value any) (any, error) {
	if !a.optimized.Load() {
		a.profile()
	}
	return a.current.Load().acc.Set(target, root, s, value)
}

func (a *Accessor) KnownEgressType() reflect.Type { return a.safe.KnownEgressType() }

// profile counts one invocation and attempts specialization when the count
// reaches the threshold inside the window.
func (a *Accessor) profile() {
	o := &a.reg.opts
	now := o.Clock().UnixNano()
	stamp := a.stamp.Load()
	if stamp == 0 || time.Duration(now-stamp) > o.TimeSpan {
		a.stamp.Store(now)
		a.count.Store(0)
		a.state.Store(uint32(Warm))
	}
	n := a.count.Load() + 1
	a.count.Store(n)
	if n >= o.Threshold {
		a.specialize()
	}
}

func (a *Accessor) specialize() {
	if !a.busy.CompareAndSwap(false, true) {
		return
	}
	defer a.busy.Store(false)
	if a.optimized.Load() {
		return
	}

	r := a.reg
	if r.IsOverloaded() {
		r.EnforceTenureLimit()
	}

	ctx := siteid.NewContext(context.Background(), a.site)
	bus := r.opts.Bus
	eventbus.Publish(ctx, bus, events.SpecializeStart{Site: a.site, Invocations: a.count.Load()})
	started := time.Now()

	r.global.RLock()
	acc, err := r.compiler.Compile(a.head)
	if err != nil {
		r.global.RUnlock()
		r.declined.Add(1)
		a.declined.Store(true)
		a.optimized.Store(true)
		if !errors.Is(err, accessor.ErrCompilationNotSupported) {
			err = fmt.Errorf("specialize %s: %w", a.site, err)
		}
		eventbus.Publish(ctx, bus, events.SpecializeFinish{Site: a.site, Declined: true, Err: err, Duration: time.Since(started)})
		return
	}
	u := &unit{site: a, acc: acc}
	a.current.Store(&installed{acc: acc, unit: u})
	a.optimized.Store(true)
	a.state.Store(uint32(Hot))
	r.register(u)
	r.global.RUnlock()

	eventbus.Publish(ctx, bus, events.SpecializeFinish{Site: a.site, Duration: time.Since(started)})
}

// deoptimize puts the site back on its safe accessor if u is still the
// installed unit. It never fails.
func (a *Accessor) deoptimize(u *unit, reason string) {
	cur := a.current.Load()
	if cur.unit != u || !a.current.CompareAndSwap(cur, &installed{acc: a.safe}) {
		return
	}
	a.count.Store(0)
	a.stamp.Store(0)
	a.state.Store(uint32(Demoted))
	a.optimized.Store(false)
	eventbus.Publish(siteid.NewContext(context.Background(), a.site), a.reg.opts.Bus, events.Deoptimized{Site: a.site, Reason: reason})
}
