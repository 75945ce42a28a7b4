package adaptive

import (
	"time"

	"github.com/hanpama/pathway/internal/eventbus"
)

// Options configures tiering for every call site of a Registry.
//
// Defaults:
// - Threshold:   50 invocations
// - TimeSpan:    100ms profiling window, measured from the first call of a window
// - TenureLimit: 1500 live compiled units
// - Clock:       time.Now
//
// Bus may be nil, in which case no events are published.
//
// Zero or negative values fall back to the defaults.

type Options struct {
	Threshold   int64
	TimeSpan    time.Duration
	TenureLimit int

	Bus   *eventbus.Bus
	Clock func() time.Time
}

// Option mutates Options
//
// Use WithX helpers below.

type Option func(*Options)

const (
	DefaultThreshold   = 50
	DefaultTimeSpan    = 100 * time.Millisecond
	DefaultTenureLimit = 1500
)

func defaultOptions() *Options {
	return &Options{
		Threshold:   DefaultThreshold,
		TimeSpan:    DefaultTimeSpan,
		TenureLimit: DefaultTenureLimit,
		Clock:       time.Now,
	}
}

func (o *Options) normalize() {
	d := defaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.TimeSpan <= 0 {
		o.TimeSpan = d.TimeSpan
	}
	if o.TenureLimit <= 0 {
		o.TenureLimit = d.TenureLimit
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
}

func WithThreshold(n int64) Option          { return func(o *Options) { o.Threshold = n } }
func WithTimeSpan(d time.Duration) Option   { return func(o *Options) { o.TimeSpan = d } }
func WithTenureLimit(n int) Option          { return func(o *Options) { o.TenureLimit = n } }
func WithBus(b *eventbus.Bus) Option        { return func(o *Options) { o.Bus = b } }
func WithClock(now func() time.Time) Option { return func(o *Options) { o.Clock = now } }
