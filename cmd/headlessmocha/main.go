// Command headlessmocha runs mocha suites embedded in web pages inside
// headless Chrome and reports their results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tomyan/headlessmocha"
	"github.com/tomyan/headlessmocha/internal/log"
	"github.com/tomyan/headlessmocha/internal/results"
)

// Exit codes
const (
	ExitSuccess  = 0
	ExitFailures = 1
	ExitError    = 2
	ExitTimeout  = 3
)

// Config holds the CLI configuration.
type Config struct {
	Root      string
	Timeout   time.Duration
	Headless  bool
	Log       bool
	Args      []string
	Chrome    string
	Output    string // json, ndjson, text
	Parallel  int
	Verbose   bool
	LogFormat string // text, json
	Quiet     bool

	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// ConfigPaths are the rc files tried in order; the first readable one wins.
	ConfigPaths []string
	// Colors enables colored text reports.
	Colors bool
	// Runner executes one page. Tests replace it to avoid a browser.
	Runner func(ctx context.Context, opts headlessmocha.Options) (*results.Bag, error)
}

// DefaultConfig returns the built-in defaults. The rc file, environment and
// flags are applied on top by run.
func DefaultConfig() *Config {
	return &Config{
		Root:        ".",
		Timeout:     headlessmocha.DefaultTimeout,
		Headless:    true,
		Output:      "text",
		Parallel:    1,
		LogFormat:   "text",
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Getenv:      os.Getenv,
		ConfigPaths: configFilePaths(),
		Colors:      stdoutIsTerminal(),
		Runner:      headlessmocha.Run,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], DefaultConfig())
	stop()
	os.Exit(code)
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, " ") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// flagValues stores values parsed from flags so they can be re-applied over
// the rc file and the environment.
type flagValues struct {
	root      string
	timeout   time.Duration
	headless  bool
	log       bool
	args      stringList
	chrome    string
	output    string
	parallel  int
	verbose   bool
	logFormat string
	quiet     bool
}

func run(ctx context.Context, args []string, cfg *Config) int {
	var fv flagValues
	fs := flag.NewFlagSet("headlessmocha", flag.ContinueOnError)
	fs.SetOutput(cfg.Stderr)
	fs.StringVar(&fv.root, "root", cfg.Root, "Directory served to the browser (env: HEADLESSMOCHA_ROOT)")
	fs.DurationVar(&fv.timeout, "timeout", cfg.Timeout, "Time allowed per page for loading and running (env: HEADLESSMOCHA_TIMEOUT)")
	fs.BoolVar(&fv.headless, "headless", cfg.Headless, "Run the browser without a window")
	fs.BoolVar(&fv.log, "log", cfg.Log, "Forward page console output and uncaught errors")
	fs.Var(&fv.args, "arg", "Extra browser flag (repeatable)")
	fs.StringVar(&fv.chrome, "chrome", cfg.Chrome, "Chrome binary (env: HEADLESSMOCHA_CHROME)")
	fs.StringVar(&fv.output, "output", cfg.Output, "Output format: json, ndjson, text")
	fs.IntVar(&fv.parallel, "parallel", cfg.Parallel, "Pages run at once")
	fs.BoolVar(&fv.verbose, "verbose", cfg.Verbose, "Debug logging on stderr")
	fs.StringVar(&fv.logFormat, "log-format", cfg.LogFormat, "Log format: text, json")
	fs.BoolVar(&fv.quiet, "quiet", cfg.Quiet, "Only report pages with failures")

	fs.Usage = func() { printUsage(cfg.Stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		return ExitError
	}

	explicitFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	// Precedence: built-in defaults < rc file < env vars < flags
	loadConfigFile(cfg, cfg.ConfigPaths)
	applyEnvVars(cfg, explicitFlags)
	reapplyExplicitFlags(cfg, &fv, explicitFlags)

	paths := fs.Args()
	if len(paths) == 0 {
		printUsage(cfg.Stderr, fs)
		return ExitError
	}
	if err := validate(cfg); err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}

	outcomes := runAll(ctx, cfg, newLogger(cfg), paths)
	if code := writeOutcomes(cfg, outcomes); code != ExitSuccess {
		return code
	}
	return exitCode(outcomes)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: headlessmocha [flags] <path> [path...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Runs the mocha suite on each page, served from -root, in headless Chrome.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}

func validate(cfg *Config) error {
	switch cfg.Output {
	case "json", "ndjson", "text":
	default:
		return fmt.Errorf("unknown output format: %s", cfg.Output)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", cfg.LogFormat)
	}
	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", cfg.Parallel)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return nil
}

func newLogger(cfg *Config) *log.Logger {
	level := logrus.WarnLevel
	if cfg.Verbose {
		level = logrus.DebugLevel
	}
	logger := log.New(cfg.Stderr, level, nil)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: !cfg.Colors, FullTimestamp: true})
	}
	return logger
}

// outcome is the result of running one page.
type outcome struct {
	Path string
	Bag  *results.Bag
	Err  error
}

// runAll runs every page, at most cfg.Parallel at a time. Each page gets its
// own server and browser; a failing page does not stop the others.
func runAll(ctx context.Context, cfg *Config, logger *log.Logger, paths []string) []outcome {
	outcomes := make([]outcome, len(paths))

	// Console lines would corrupt machine-readable output on stdout.
	pageOut := cfg.Stdout
	if cfg.Output != "text" {
		pageOut = cfg.Stderr
	}

	var g errgroup.Group
	g.SetLimit(cfg.Parallel)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			opts := headlessmocha.DefaultOptions()
			opts.Path = path
			opts.Root = cfg.Root
			opts.Timeout = cfg.Timeout
			opts.Headful = !cfg.Headless
			opts.Log = cfg.Log
			opts.Args = cfg.Args
			opts.ChromePath = cfg.Chrome
			opts.Stdout = pageOut
			opts.Stderr = cfg.Stderr
			opts.Getenv = cfg.Getenv
			opts.Logger = logger.WithField("path", path)

			bag, err := cfg.Runner(ctx, opts)
			outcomes[i] = outcome{Path: path, Bag: bag, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// exitCode folds the outcomes into one code: a timeout beats any other run
// error, which beats test failures.
func exitCode(outcomes []outcome) int {
	code := ExitSuccess
	for _, o := range outcomes {
		switch {
		case errors.Is(o.Err, headlessmocha.ErrTimeout):
			return ExitTimeout
		case o.Err != nil:
			code = ExitError
		case !o.Bag.OK() && code == ExitSuccess:
			code = ExitFailures
		}
	}
	return code
}
