package headlessmocha

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomyan/headlessmocha/internal/chrome"
	"github.com/tomyan/headlessmocha/internal/chrome/launcher"
	"github.com/tomyan/headlessmocha/internal/cleanup"
	"github.com/tomyan/headlessmocha/internal/log"
	"github.com/tomyan/headlessmocha/internal/shim"
)

// session is one browser process and the page a run drives in it.
type session struct {
	opts   Options
	logger *log.Logger
	client *chrome.Client
	page   *chrome.Page
}

// openSession launches the browser and acquires a page, pushing a release
// action onto stack after each acquisition.
func openSession(ctx context.Context, opts Options, logger *log.Logger, stack *cleanup.Stack) (*session, error) {
	args := append(append([]string(nil), opts.Args...), launcher.CIFlags(opts.Getenv)...)
	inst, err := launcher.Launch(ctx, launcher.LaunchOptions{
		ChromePath: opts.ChromePath,
		Headless:   !opts.Headful,
		Args:       args,
		Logger:     logger,
	})
	if err != nil {
		return nil, &PhaseError{Phase: "launch", Kind: ErrLaunch, Err: err}
	}
	stack.Push("stop browser process", func(context.Context) error {
		return inst.Stop()
	})

	client, err := chrome.Dial(ctx, inst.WSURL, logger)
	if err != nil {
		return nil, &PhaseError{Phase: "launch", Kind: ErrLaunch, Err: err}
	}
	stack.Push("close browser", func(ctx context.Context) error {
		err := client.CloseBrowser(ctx)
		client.Close()
		return err
	})

	if v, err := client.Version(ctx); err == nil {
		logger.Debugf("session", "connected to %s (protocol %s)", v.Browser, v.ProtocolVersion)
	}

	page, err := acquirePage(ctx, client)
	if err != nil {
		return nil, &PhaseError{Phase: "launch", Kind: ErrLaunch, Err: err}
	}
	if err := page.Enable(ctx); err != nil {
		return nil, &PhaseError{Phase: "launch", Kind: ErrLaunch, Err: err}
	}

	return &session{opts: opts, logger: logger, client: client, page: page}, nil
}

// acquirePage reuses the first open tab, opening one if there is none.
func acquirePage(ctx context.Context, client *chrome.Client) (*chrome.Page, error) {
	pages, err := client.Pages(ctx)
	if err != nil {
		return nil, err
	}

	var targetID string
	if len(pages) > 0 {
		targetID = pages[0].ID
	} else {
		targetID, err = client.NewTab(ctx, "about:blank")
		if err != nil {
			return nil, err
		}
	}
	return client.AttachPage(ctx, targetID)
}

// observe wires the page observers. Dialogs are always dismissed; console
// output and uncaught errors are forwarded only when logging was requested.
func (s *session) observe(ctx context.Context, stack *cleanup.Stack) error {
	stopDialogs, err := s.page.AutoDismissDialogs(ctx, func(d chrome.Dialog) {
		s.logger.Debugf("session", "dismissed %s dialog: %s", d.Type, d.Message)
	})
	if err != nil {
		return err
	}
	stack.Push("stop dialog handler", func(context.Context) error {
		stopDialogs()
		return nil
	})

	if !s.opts.Log {
		return nil
	}

	console, stopConsole, err := s.page.CaptureConsole(ctx)
	if err != nil {
		return err
	}
	exceptions, stopExceptions, err := s.page.CaptureExceptions(ctx)
	if err != nil {
		stopConsole()
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for msg := range console {
			s.writeConsole(msg)
		}
	}()
	go func() {
		defer wg.Done()
		for info := range exceptions {
			fmt.Fprintln(s.opts.Stderr, info.String())
		}
	}()

	stack.Push("stop page output", func(ctx context.Context) error {
		stopConsole()
		stopExceptions()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return nil
}

func (s *session) writeConsole(msg chrome.ConsoleMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	args := make([]interface{}, 0, len(msg.Args))
	for _, arg := range msg.Args {
		v, err := s.page.ResolveValue(ctx, arg)
		if err != nil {
			v = arg.Description
		}
		args = append(args, v)
	}
	io.WriteString(s.opts.Stdout, formatConsole(args)+"\n")
}

// instrument installs the result binding and the shim so that both exist
// before any script of the next document runs.
func (s *session) instrument(ctx context.Context, stack *cleanup.Stack) (<-chan string, error) {
	payloads, stop, err := s.page.CaptureBinding(ctx, shim.BindingName)
	if err != nil {
		return nil, err
	}
	stack.Push("stop result binding", func(context.Context) error {
		stop()
		return nil
	})

	if _, err := s.page.AddScriptToEvaluateOnNewDocument(ctx, shim.Source()); err != nil {
		return nil, err
	}
	return payloads, nil
}

// stallHint evaluates to a short reason for a run that never reported.
var stallHint = fmt.Sprintf(`(function () {
  if (typeof window.mocha === 'undefined') { return 'no window.mocha on the page'; }
  if (window[%q]) { return 'results were set but never delivered'; }
  return 'the suite is still running';
})()`, shim.ResultGlobal)

// diagnose asks the page why no results arrived. It returns "" when the
// page cannot answer.
func (s *session) diagnose(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	res, err := s.page.Eval(ctx, stallHint)
	if err != nil {
		s.logger.Debugf("session", "diagnosing stalled run: %v", err)
		return ""
	}
	hint, _ := res.Value.(string)
	return hint
}

// navigate loads url and waits for its load event.
func (s *session) navigate(ctx context.Context, url string) error {
	s.logger.Debugf("session", "navigating to %s", url)
	res, err := s.page.NavigateAndWait(ctx, url)
	if err != nil {
		return err
	}
	if res.ErrorText != "" {
		return fmt.Errorf("%s: %s", url, res.ErrorText)
	}
	return nil
}
