// Package config reads engine configuration from YAML.
//
// Example:
//
//	tiering:
//	  threshold: 50
//	  timespan: 100ms
//	  tenure_limit: 1500
//	  strategy: adaptive
//	telemetry:
//	  endpoint: localhost:4317
//	  service: pathway
//
// Omitted keys keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Strategy names accepted by tiering.strategy.
const (
	StrategyAdaptive    = "adaptive"
	StrategyInterpreted = "interpreted"
	StrategyCompiled    = "compiled"
)

// Config is the top-level configuration.
type Config struct {
	Tiering   Tiering   `yaml:"tiering"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Tiering controls call-site promotion.
type Tiering struct {
	Threshold   int64    `yaml:"threshold"`
	TimeSpan    Duration `yaml:"timespan"`
	TenureLimit int      `yaml:"tenure_limit"`
	Strategy    string   `yaml:"strategy"`
}

// Telemetry configures trace export. An empty endpoint disables it.
type Telemetry struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Service  string `yaml:"service,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tiering: Tiering{
			Threshold:   50,
			TimeSpan:    Duration(100 * time.Millisecond),
			TenureLimit: 1500,
			Strategy:    StrategyAdaptive,
		},
		Telemetry: Telemetry{Service: "pathway"},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses YAML content over the defaults. path is used in messages only.
func Parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	t := c.Tiering
	if t.Threshold <= 0 {
		return fmt.Errorf("tiering.threshold must be positive, got %d", t.Threshold)
	}
	if t.TimeSpan <= 0 {
		return fmt.Errorf("tiering.timespan must be positive, got %s", time.Duration(t.TimeSpan))
	}
	if t.TenureLimit <= 0 {
		return fmt.Errorf("tiering.tenure_limit must be positive, got %d", t.TenureLimit)
	}
	switch t.Strategy {
	case StrategyAdaptive, StrategyInterpreted, StrategyCompiled:
	default:
		return fmt.Errorf("tiering.strategy: unknown strategy %q", t.Strategy)
	}
	if c.Telemetry.Endpoint != "" && c.Telemetry.Service == "" {
		return errors.New("telemetry.service is required with telemetry.endpoint")
	}
	return nil
}
