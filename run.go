// Package headlessmocha runs a mocha suite embedded in a web page inside
// headless Chrome and returns its results.
//
// A run serves Options.Root on a loopback port, launches its own browser,
// injects a small script that reports the suite's results when it ends,
// opens Options.Path and waits for the report. Everything acquired along the
// way is released before Run returns, whatever the outcome.
package headlessmocha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomyan/headlessmocha/internal/cleanup"
	"github.com/tomyan/headlessmocha/internal/results"
	"github.com/tomyan/headlessmocha/internal/server"
)

// cleanupTimeout bounds the release of a run's resources.
const cleanupTimeout = 5 * time.Second

// Run executes the suite at opts.Path and returns its results. It returns
// either a complete bag or the first fatal error, never both.
func Run(ctx context.Context, opts Options) (*results.Bag, error) {
	if opts.Path == "" {
		return nil, errors.New("headlessmocha: path is required")
	}
	opts = opts.withDefaults()

	logger := opts.Logger.WithField("run", uuid.NewString())
	stack := cleanup.New(logger)
	defer func() {
		// The run's own context may already be cancelled; teardown still happens.
		uctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := stack.Unwind(uctx); err != nil {
			logger.Warnf("run", "cleanup: %v", err)
		}
	}()

	srv, err := server.Start(server.Config{Root: opts.Root, Handler: opts.Handler, Logger: logger})
	if err != nil {
		return nil, &PhaseError{Phase: "serve", Kind: ErrBind, Err: err}
	}
	stack.Push("close server", srv.Close)

	sess, err := openSession(ctx, opts, logger, stack)
	if err != nil {
		return nil, err
	}
	if err := sess.observe(ctx, stack); err != nil {
		return nil, &PhaseError{Phase: "observe", Kind: ErrLaunch, Err: err}
	}
	payloads, err := sess.instrument(ctx, stack)
	if err != nil {
		return nil, &PhaseError{Phase: "instrument", Kind: ErrLaunch, Err: err}
	}

	deadline := time.Now().Add(opts.Timeout)
	navCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := sess.navigate(navCtx, srv.URL(opts.Path)); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, &PhaseError{Phase: "navigate", Kind: ErrTimeout, Err: err}
		}
		return nil, &PhaseError{Phase: "navigate", Kind: ErrNavigation, Err: err}
	}

	payload, err := awaitResult(ctx, payloads, time.Until(deadline))
	switch {
	case errors.Is(err, ErrTimeout):
		if hint := sess.diagnose(context.Background()); hint != "" {
			err = fmt.Errorf("%w: %s", err, hint)
		}
		return nil, &PhaseError{Phase: "await", Kind: ErrTimeout, Err: err}
	case errors.Is(err, ErrDisconnected):
		return nil, &PhaseError{Phase: "await", Kind: ErrDisconnected}
	case err != nil:
		return nil, err
	}

	bag, err := extract(payload)
	if err != nil {
		return nil, &PhaseError{Phase: "extract", Kind: ErrResult, Err: err}
	}

	s := bag.Summary()
	logger.Debugf("run", "%s: %d passing, %d failing, %d pending", opts.Path, s.Passes, s.Failures, s.Pending)
	return bag, nil
}
