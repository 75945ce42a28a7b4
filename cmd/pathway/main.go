package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/hanpama/pathway/internal/adaptive"
	"github.com/hanpama/pathway/internal/config"
	"github.com/hanpama/pathway/internal/engine"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/otel"
	"github.com/hanpama/pathway/internal/scope"
)

const rootUsage = `pathway - accessor path evaluation tools

USAGE:
  pathway [-v] <command> [flags] <path>

COMMANDS:
  eval             Evaluate a path against a YAML or JSON document
  bench            Evaluate a path repeatedly and report its tier
  help             Show help for any command

GLOBAL FLAGS:
  -v               Log tiering events to stderr
`

const evalUsage = `eval FLAGS:
  -data <file>           YAML or JSON document used as the root ("-" for stdin)
  -var <name=value>      Define a scope variable; value is parsed as YAML. Repeatable
  -set <value>           Assign value through the path and print the document
  -config <file>         Engine configuration file
  -strategy <name>       adaptive, interpreted or compiled (default: from config)
`

const benchUsage = `bench FLAGS:
  -data <file>           YAML or JSON document used as the root ("-" for stdin)
  -var <name=value>      Define a scope variable; value is parsed as YAML. Repeatable
  -n <count>             Evaluations per worker (default: 1000)
  -workers <count>       Concurrent workers (default: 4)
  -config <file>         Engine configuration file
  -strategy <name>       adaptive, interpreted or compiled (default: from config)
  -otel.endpoint <addr>  OTLP collector endpoint
  -otel.service <name>   OpenTelemetry service name (default: pathway)
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

// cli carries the process streams and global flags of one invocation.
type cli struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	verbose bool
	color   bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	if f, ok := stdout.(*os.File); ok {
		c.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	global := flag.NewFlagSet("pathway", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	global.BoolVar(&c.verbose, "v", false, "Log tiering events")
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "eval":
		return c.cmdEval(cmdArgs)
	case "bench":
		return c.cmdBench(cmdArgs)
	case "help":
		return c.cmdHelp(cmdArgs)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "eval":
		fmt.Fprint(c.stdout, evalUsage)
	case "bench":
		fmt.Fprint(c.stdout, benchUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// varsFlag collects -var name=value pairs in order.
type varsFlag struct {
	names  []string
	values map[string]any
}

func (v *varsFlag) String() string { return "" }

func (v *varsFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid variable %q", s)
	}
	if v.values == nil {
		v.values = map[string]any{}
	}
	if _, dup := v.values[name]; !dup {
		v.names = append(v.names, name)
	}
	v.values[name] = parseValue(raw)
	return nil
}

func (v *varsFlag) scope() *scope.Scope {
	s := scope.New(nil)
	for _, n := range v.names {
		s.Define(n, v.values[n])
	}
	return s
}

// parseValue reads raw as a YAML scalar or collection, falling back to the
// raw string.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// engineFlags are the flags shared by eval and bench.
type engineFlags struct {
	data     string
	vars     varsFlag
	config   string
	strategy string
}

func (f *engineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.data, "data", "", "YAML or JSON document")
	fs.Var(&f.vars, "var", "Define a scope variable")
	fs.StringVar(&f.config, "config", "", "Engine configuration file")
	fs.StringVar(&f.strategy, "strategy", "", "Execution strategy")
}

func (f *engineFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}
	if f.strategy != "" {
		cfg.Tiering.Strategy = f.strategy
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *cli) newEngine(cfg *config.Config) *engine.Engine {
	bus := eventbus.New()
	if c.verbose {
		c.logEvents(bus)
	}
	return engine.New(engine.WithConfig(cfg), engine.WithBus(bus))
}

func (c *cli) logEvents(bus *eventbus.Bus) {
	l := log.New(c.stderr, "", log.LstdFlags)
	eventbus.Subscribe(bus, func(_ context.Context, e events.SpecializeStart) {
		l.Printf("specialize %s after %d invocations", e.Site, e.Invocations)
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.SpecializeFinish) {
		switch {
		case e.Declined:
			l.Printf("declined %s: %v", e.Site, e.Err)
		default:
			l.Printf("compiled %s in %s", e.Site, e.Duration)
		}
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.Deoptimized) {
		l.Printf("deoptimized %s: %s", e.Site, e.Reason)
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.RegistryReset) {
		l.Printf("registry reset (%s): %d units", e.Reason, e.Units)
	})
}

func (c *cli) readData(path string) (any, error) {
	var (
		b   []byte
		err error
	)
	switch path {
	case "":
		return nil, nil
	case "-":
		b, err = io.ReadAll(c.stdin)
	default:
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parsing data: %w", err)
	}
	return v, nil
}

func (c *cli) cmdEval(args []string) error {
	var ef engineFlags
	var set *string
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	ef.register(fs)
	fs.Func("set", "Assign a value through the path", func(v string) error {
		set = &v
		return nil
	})
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(c.stderr, evalUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(c.stderr, evalUsage)
		return fmt.Errorf("expected exactly one path")
	}
	path := fs.Arg(0)

	cfg, err := ef.loadConfig()
	if err != nil {
		return err
	}
	root, err := c.readData(ef.data)
	if err != nil {
		return err
	}
	e := c.newEngine(cfg)
	s := ef.vars.scope()

	if set != nil {
		if _, err := e.Set(path, root, s, parseValue(*set)); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
		return c.print(root)
	}
	v, err := e.Get(path, root, s)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return c.print(v)
}

func (c *cli) cmdBench(args []string) error {
	var ef engineFlags
	n := 1000
	workers := 4
	otelEndpoint := ""
	otelService := "pathway"
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	ef.register(fs)
	fs.IntVar(&n, "n", n, "Evaluations per worker")
	fs.IntVar(&workers, "workers", workers, "Concurrent workers")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(c.stderr, benchUsage)
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprint(c.stderr, benchUsage)
		return fmt.Errorf("expected exactly one path")
	}
	if n <= 0 || workers <= 0 {
		return fmt.Errorf("-n and -workers must be positive")
	}
	path := fs.Arg(0)

	cfg, err := ef.loadConfig()
	if err != nil {
		return err
	}
	if otelEndpoint == "" {
		otelEndpoint = cfg.Telemetry.Endpoint
		if cfg.Telemetry.Service != "" {
			otelService = cfg.Telemetry.Service
		}
	}
	root, err := c.readData(ef.data)
	if err != nil {
		return err
	}
	e := c.newEngine(cfg)
	shutdown, err := otel.Setup(otelEndpoint, otelService, e.Bus())
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	acc, err := e.Compile(path, root)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	s := ef.vars.scope()

	started := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for range workers {
		g.Go(func() error {
			for range n {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := acc.Get(root, root, s); err != nil {
					return fmt.Errorf("get %s: %w", path, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(started)

	tier := cfg.Tiering.Strategy
	if a, ok := acc.(*adaptive.Accessor); ok {
		tier = strings.ToLower(a.State().String())
	}
	st := e.Stats()
	total := n * workers
	fmt.Fprintf(c.stdout, "%s\n", c.paint(path))
	fmt.Fprintf(c.stdout, "  evaluations  %d in %s (%s/op)\n", total, elapsed.Round(time.Microsecond), elapsed/time.Duration(total))
	fmt.Fprintf(c.stdout, "  tier         %s\n", tier)
	fmt.Fprintf(c.stdout, "  units        live=%d compiled=%d declined=%d evicted=%d resets=%d\n",
		st.Live, st.Compiled, st.Declined, st.Evicted, st.Resets)
	return nil
}

func (c *cli) print(v any) error {
	switch v.(type) {
	case map[string]any, []any:
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(c.stdout, string(b))
		return nil
	case nil:
		fmt.Fprintln(c.stdout, c.paint("null"))
		return nil
	}
	fmt.Fprintln(c.stdout, c.paint(fmt.Sprint(v)))
	return nil
}

func (c *cli) paint(s string) string {
	if !c.color {
		return s
	}
	return "\x1b[32m" + s + "\x1b[0m"
}
