package adaptive

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/compiled"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/siteid"
)

type account struct {
	Owner string
	Limit int
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingCompiler records how often Compile runs.
type countingCompiler struct {
	inner Compiler
	calls atomic.Int64
}

func (c *countingCompiler) Compile(head *accessor.Node) (accessor.Accessor, error) {
	c.calls.Add(1)
	return c.inner.Compile(head)
}

type decliningCompiler struct{ calls atomic.Int64 }

func (c *decliningCompiler) Compile(*accessor.Node) (accessor.Accessor, error) {
	c.calls.Add(1)
	return nil, &accessor.CompilationNotSupportedError{Reason: "test"}
}

func ownerChain() *accessor.Node {
	return accessor.Chain(&accessor.Node{Kind: accessor.KindProperty, Name: "Owner"})
}

func newSite(reg *Registry) *Accessor {
	head := ownerChain()
	return New(siteid.New("owner", 0, 5), head, interp.New(head, nil), reg)
}

func TestTieringProgression(t *testing.T) {
	clock := newClock()
	cc := &countingCompiler{inner: compiled.New(nil)}
	reg := NewRegistry(cc, WithClock(clock.Now))
	site := newSite(reg)
	target := &account{Owner: "ada"}

	require.Equal(t, Cold, site.State())
	for i := 1; i < DefaultThreshold; i++ {
		v, err := site.Get(target, target, nil)
		require.NoError(t, err)
		require.Equal(t, "ada", v)
	}
	require.Equal(t, Warm, site.State())
	require.EqualValues(t, DefaultThreshold-1, site.Invocations())
	require.EqualValues(t, 0, cc.calls.Load())

	v, err := site.Get(target, target, nil)
	require.NoError(t, err)
	require.Equal(t, "ada", v)
	require.Equal(t, Hot, site.State())
	require.EqualValues(t, 1, cc.calls.Load())
	require.Equal(t, 1, reg.Len())
	require.IsType(t, &compiled.Accessor{}, site.Current())

	for i := 0; i < 10; i++ {
		_, err := site.Get(target, target, nil)
		require.NoError(t, err)
	}
	require.EqualValues(t, DefaultThreshold, site.Invocations())
	require.EqualValues(t, 1, cc.calls.Load())
}

func TestWindowExpiryRestartsProfile(t *testing.T) {
	clock := newClock()
	reg := NewRegistry(compiled.New(nil), WithClock(clock.Now), WithThreshold(3))
	site := newSite(reg)
	target := &account{Owner: "ada"}

	site.Get(target, target, nil)
	clock.Advance(60 * time.Millisecond)
	site.Get(target, target, nil)
	require.EqualValues(t, 2, site.Invocations())

	clock.Advance(60 * time.Millisecond)
	site.Get(target, target, nil)
	require.EqualValues(t, 1, site.Invocations())
	require.Equal(t, Warm, site.State())

	site.Get(target, target, nil)
	site.Get(target, target, nil)
	require.Equal(t, Hot, site.State())
}

func TestDeclinePinsInterpreted(t *testing.T) {
	dc := &decliningCompiler{}
	bus := eventbus.New()
	var finishes []events.SpecializeFinish
	eventbus.Subscribe(bus, func(_ context.Context, e events.SpecializeFinish) { finishes = append(finishes, e) })

	reg := NewRegistry(dc, WithClock(newClock().Now), WithThreshold(5), WithBus(bus))
	site := newSite(reg)
	target := &account{Owner: "ada"}

	for i := 0; i < 20; i++ {
		v, err := site.Get(target, target, nil)
		require.NoError(t, err)
		require.Equal(t, "ada", v)
	}
	require.EqualValues(t, 1, dc.calls.Load())
	require.True(t, site.Declined())
	require.Equal(t, Warm, site.State())
	require.Equal(t, 0, reg.Len())
	require.EqualValues(t, 1, reg.Stats().Declined)

	require.Len(t, finishes, 1)
	require.True(t, finishes[0].Declined)
	require.ErrorIs(t, finishes[0].Err, accessor.ErrCompilationNotSupported)
}

func TestEvictionDeoptimizesOldest(t *testing.T) {
	const limit = 1500
	reg := NewRegistry(compiled.New(nil), WithClock(newClock().Now), WithThreshold(1), WithTenureLimit(limit))

	sites := make([]*Accessor, limit+1)
	for i := range sites {
		sites[i] = newSite(reg)
		target := &account{Owner: "owner"}
		_, err := sites[i].Get(target, target, nil)
		require.NoError(t, err)
	}

	require.Equal(t, limit, reg.Len())
	require.Equal(t, Demoted, sites[0].State())
	require.Equal(t, Hot, sites[1].State())
	require.Equal(t, Hot, sites[limit].State())
	require.EqualValues(t, 1, reg.Stats().Evicted)
	require.False(t, reg.IsOverloaded())

	target := &account{Owner: "still here"}
	require.IsType(t, &interp.Accessor{}, sites[0].Current())
	v, err := sites[0].Get(target, target, nil)
	require.NoError(t, err)
	require.Equal(t, "still here", v)
}

func TestResetDeoptimizesEverySite(t *testing.T) {
	bus := eventbus.New()
	var resets []events.RegistryReset
	var deopts atomic.Int64
	eventbus.Subscribe(bus, func(_ context.Context, e events.RegistryReset) { resets = append(resets, e) })
	eventbus.Subscribe(bus, func(ctx context.Context, e events.Deoptimized) {
		s, ok := siteid.FromContext(ctx)
		require.True(t, ok)
		require.Equal(t, e.Site, s)
		deopts.Add(1)
	})

	reg := NewRegistry(compiled.New(nil), WithClock(newClock().Now), WithThreshold(1), WithBus(bus))
	target := &account{Owner: "x"}
	var sites []*Accessor
	for i := 0; i < 3; i++ {
		s := newSite(reg)
		s.Get(target, target, nil)
		sites = append(sites, s)
	}
	require.Equal(t, 3, reg.Len())
	require.False(t, reg.EnforceTenureLimit())

	reg.Reset()
	require.Equal(t, 0, reg.Len())
	for _, s := range sites {
		require.Equal(t, Demoted, s.State())
		require.EqualValues(t, 0, s.Invocations())
	}
	require.EqualValues(t, 3, deopts.Load())
	require.Equal(t, []events.RegistryReset{{Units: 3, Reason: "reset"}}, resets)

	// a demoted site warms up again
	sites[0].Get(target, target, nil)
	require.Equal(t, Hot, sites[0].State())
}

func TestDeoptimizeIgnoresStaleUnit(t *testing.T) {
	reg := NewRegistry(compiled.New(nil), WithClock(newClock().Now), WithThreshold(1))
	site := newSite(reg)
	target := &account{Owner: "x"}
	site.Get(target, target, nil)
	require.Equal(t, Hot, site.State())

	site.deoptimize(&unit{site: site}, "stale")
	require.Equal(t, Hot, site.State())
}

func TestSetPromotes(t *testing.T) {
	reg := NewRegistry(compiled.New(nil), WithClock(newClock().Now), WithThreshold(2))
	head := accessor.Chain(&accessor.Node{Kind: accessor.KindProperty, Name: "Limit"})
	site := New(siteid.New("limit", 0, 5), head, interp.New(head, nil), reg)

	target := &account{}
	for i := 1; i <= 4; i++ {
		v, err := site.Set(target, target, nil, i*10)
		require.NoError(t, err)
		require.Equal(t, i*10, v)
		require.Equal(t, i*10, target.Limit)
	}
	require.Equal(t, Hot, site.State())
}

func TestConcurrentCallSites(t *testing.T) {
	reg := NewRegistry(compiled.New(nil), WithThreshold(10), WithTenureLimit(4))
	sites := make([]*Accessor, 8)
	for i := range sites {
		sites[i] = newSite(reg)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			target := &account{Owner: "worker"}
			for i := 0; i < 500; i++ {
				v, err := sites[(w+i)%len(sites)].Get(target, target, nil)
				if err != nil || v != "worker" {
					errs <- err
					return
				}
				if i%97 == 0 {
					reg.Reset()
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected result: %v", err)
	}
	require.LessOrEqual(t, reg.Len(), 4)
}
