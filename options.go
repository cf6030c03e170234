package headlessmocha

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tomyan/headlessmocha/internal/log"
)

// DefaultTimeout is how long a run waits for the page to report its results.
const DefaultTimeout = 60 * time.Second

// Options configures a single run. Start from DefaultOptions.
type Options struct {
	// Path is the page to open, relative to Root. Required.
	Path string
	// Args are extra browser command line flags.
	Args []string
	// Headful opens a visible browser window. The zero value runs headless.
	Headful bool
	// Log forwards page console output to Stdout and uncaught page errors to
	// Stderr.
	Log bool

	// Root is the directory served to the browser.
	Root string
	// Timeout bounds navigation plus the wait for results.
	Timeout time.Duration
	// ChromePath is the browser binary; discovered when empty.
	ChromePath string
	// Handler, when set, serves requests instead of the file server on Root.
	Handler http.Handler

	Stdout io.Writer
	Stderr io.Writer
	// Getenv looks up CI indicators.
	Getenv func(string) string
	Logger *log.Logger
}

// DefaultOptions returns the options of a headless run of Path with a 60s timeout.
func DefaultOptions() Options {
	return Options{
		Root:    ".",
		Timeout: DefaultTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = "."
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	return o
}
