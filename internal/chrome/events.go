package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// capture subscribes to method on the page's session and calls handle for
// every event, in order. Events wait in an unbounded queue while handle is
// busy, so a slow consumer delays them but never loses them. Events already
// queued when stop is called, or when the connection closes, are still
// handled before finish runs.
func (p *Page) capture(method cdproto.MethodType, handle func(raw easyjson.RawMessage), finish func()) func() {
	c := p.client
	q := c.subscribeQueue(p.SessionID, method)

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			c.unsubscribeQueue(p.SessionID, method, q)
		})
	}

	go func() {
		defer finish()
		for {
			raw, ok := q.pop()
			if !ok {
				return
			}
			handle(raw)
		}
	}()
	return stop
}

// CaptureConsole starts capturing console API calls from the page.
// The returned channel is closed when stop is called or the client closes,
// and must be drained. Runtime must already be enabled on the page.
func (p *Page) CaptureConsole(ctx context.Context) (<-chan ConsoleMessage, func(), error) {
	output := make(chan ConsoleMessage, eventBuffer)

	stop := p.capture(cdproto.EventRuntimeConsoleAPICalled, func(raw easyjson.RawMessage) {
		var ev runtime.EventConsoleAPICalled
		if err := easyjson.Unmarshal(raw, &ev); err != nil {
			p.client.logger.Warnf("cdp", "decoding console event: %v", err)
			return
		}
		output <- ConsoleMessage{Type: string(ev.Type), Args: ev.Args}
	}, func() { close(output) })

	return output, stop, nil
}

// CaptureExceptions starts capturing uncaught exceptions from the page.
// The returned channel is closed when stop is called or the client closes.
func (p *Page) CaptureExceptions(ctx context.Context) (<-chan ExceptionInfo, func(), error) {
	output := make(chan ExceptionInfo, eventBuffer)

	stop := p.capture(cdproto.EventRuntimeExceptionThrown, func(raw easyjson.RawMessage) {
		var ev runtime.EventExceptionThrown
		if err := easyjson.Unmarshal(raw, &ev); err != nil || ev.ExceptionDetails == nil {
			return
		}
		d := ev.ExceptionDetails
		info := ExceptionInfo{
			Text:   d.Text,
			URL:    d.URL,
			Line:   d.LineNumber,
			Column: d.ColumnNumber,
		}
		if d.Exception != nil {
			info.Description = d.Exception.Description
		}
		output <- info
	}, func() { close(output) })

	return output, stop, nil
}

// CaptureBinding registers a page binding called name and delivers the
// payload of every call. The binding exists in documents created after this
// returns, so call it before navigating. The channel is closed when stop is
// called or the client closes.
func (p *Page) CaptureBinding(ctx context.Context, name string) (<-chan string, func(), error) {
	output := make(chan string, eventBuffer)

	stop := p.capture(cdproto.EventRuntimeBindingCalled, func(raw easyjson.RawMessage) {
		var ev runtime.EventBindingCalled
		if err := easyjson.Unmarshal(raw, &ev); err != nil {
			p.client.logger.Warnf("cdp", "decoding binding event: %v", err)
			return
		}
		if ev.Name != name {
			return
		}
		output <- ev.Payload
	}, func() { close(output) })

	if err := p.AddBinding(ctx, name); err != nil {
		stop()
		return nil, nil, err
	}
	return output, stop, nil
}

// AutoDismissDialogs dismisses every alert, confirm, prompt and beforeunload
// dialog the page opens until stop is called. Each dismissed dialog is passed
// to onDialog when it is non-nil.
func (p *Page) AutoDismissDialogs(ctx context.Context, onDialog func(Dialog)) (func(), error) {
	stop := p.capture(cdproto.EventPageJavascriptDialogOpening, func(raw easyjson.RawMessage) {
		var ev page.EventJavascriptDialogOpening
		if err := easyjson.Unmarshal(raw, &ev); err != nil {
			p.client.logger.Warnf("cdp", "decoding dialog event: %v", err)
		}

		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := page.HandleJavaScriptDialog(false).Do(p.exec(dctx)); err != nil {
			p.client.logger.Warnf("cdp", "dismissing %s dialog: %v", ev.Type, err)
			return
		}
		p.client.logger.Debugf("cdp", "dismissed %s dialog: %q", ev.Type, ev.Message)
		if onDialog != nil {
			onDialog(Dialog{Type: string(ev.Type), Message: ev.Message})
		}
	}, func() {})

	return stop, nil
}
