package engine

import (
	"time"

	"github.com/hanpama/pathway/internal/adaptive"
	"github.com/hanpama/pathway/internal/config"
	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/scope"
)

type Options struct {
	// Converter coerces arguments, indices and assigned values. Defaults to
	// convert.Standard.
	Converter convert.Converter

	// Bus receives tiering events and, with AccessEvents, property events.
	// A fresh bus is created when nil.
	Bus *eventbus.Bus

	// Strategy is the default strategy of compiled paths.
	Strategy Strategy

	// Tiering configures the adaptive registry.
	Tiering []adaptive.Option

	// AccessEvents publishes events.PropertyGet and events.PropertySet for
	// every property a path touches.
	AccessEvents bool

	// NoProtobuf skips registering the protobuf message handler.
	NoProtobuf bool
}

type Option func(*Options)

func WithConverter(c convert.Converter) Option { return func(o *Options) { o.Converter = c } }
func WithBus(b *eventbus.Bus) Option           { return func(o *Options) { o.Bus = b } }
func WithDefaultStrategy(s Strategy) Option    { return func(o *Options) { o.Strategy = s } }
func WithAccessEvents() Option                 { return func(o *Options) { o.AccessEvents = true } }
func WithoutProtobuf() Option                  { return func(o *Options) { o.NoProtobuf = true } }
func WithTiering(opts ...adaptive.Option) Option {
	return func(o *Options) { o.Tiering = append(o.Tiering, opts...) }
}

// WithConfig applies the tiering section of cfg. The strategy is assumed
// valid, as guaranteed by cfg.Validate.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		t := cfg.Tiering
		if s, err := ParseStrategy(t.Strategy); err == nil {
			o.Strategy = s
		}
		o.Tiering = append(o.Tiering,
			adaptive.WithThreshold(t.Threshold),
			adaptive.WithTimeSpan(time.Duration(t.TimeSpan)),
			adaptive.WithTenureLimit(t.TenureLimit),
		)
	}
}

// CompileOptions tunes a single Compile call.
type CompileOptions struct {
	strategy Strategy
	scope    *scope.Scope
}

type CompileOption func(*CompileOptions)

// WithStrategy overrides the engine's default strategy for one path.
func WithStrategy(s Strategy) CompileOption {
	return func(o *CompileOptions) { o.strategy = s }
}

// WithScope declares the variables visible when the path is built. Root names
// bound in s are typed from their declarations and shadow statics.
func WithScope(s *scope.Scope) CompileOption {
	return func(o *CompileOptions) { o.scope = s }
}
