package chrome

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
)

// Version returns the browser version information.
func (c *Client) Version(ctx context.Context) (*VersionInfo, error) {
	protocol, product, _, userAgent, jsVersion, err := browser.GetVersion().Do(cdp.WithExecutor(ctx, c))
	if err != nil {
		return nil, fmt.Errorf("getting version: %w", err)
	}
	return &VersionInfo{
		Browser:         product,
		ProtocolVersion: protocol,
		UserAgent:       userAgent,
		V8Version:       jsVersion,
	}, nil
}

// Targets returns all browser targets (pages, workers, etc.).
func (c *Client) Targets(ctx context.Context) ([]TargetInfo, error) {
	infos, err := target.GetTargets().Do(cdp.WithExecutor(ctx, c))
	if err != nil {
		return nil, fmt.Errorf("getting targets: %w", err)
	}

	targets := make([]TargetInfo, 0, len(infos))
	for _, t := range infos {
		targets = append(targets, TargetInfo{
			ID:    string(t.TargetID),
			Type:  t.Type,
			Title: t.Title,
			URL:   t.URL,
		})
	}
	return targets, nil
}

// Pages returns only page targets (tabs).
func (c *Client) Pages(ctx context.Context) ([]TargetInfo, error) {
	targets, err := c.Targets(ctx)
	if err != nil {
		return nil, err
	}

	pages := make([]TargetInfo, 0)
	for _, t := range targets {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// NewTab opens a new page target at url and returns its target ID.
func (c *Client) NewTab(ctx context.Context, url string) (string, error) {
	if url == "" {
		url = "about:blank"
	}
	id, err := target.CreateTarget(url).Do(cdp.WithExecutor(ctx, c))
	if err != nil {
		return "", fmt.Errorf("creating target: %w", err)
	}
	return string(id), nil
}

// CloseBrowser asks the browser to exit. The connection drops afterwards.
func (c *Client) CloseBrowser(ctx context.Context) error {
	err := browser.Close().Do(cdp.WithExecutor(ctx, c))
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// NavigateAndWait navigates the page to url and waits for its load event.
// A URL the browser cannot load at all is reported through ErrorText with a
// nil error, without waiting.
func (p *Page) NavigateAndWait(ctx context.Context, url string) (*NavigateResult, error) {
	loadCh := p.client.subscribeEvent(p.SessionID, cdproto.EventPageLoadEventFired)
	defer p.client.unsubscribeEvent(p.SessionID, cdproto.EventPageLoadEventFired, loadCh)

	frameID, loaderID, errorText, err := page.Navigate(url).Do(p.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("navigating: %w", err)
	}

	res := &NavigateResult{
		FrameID:   string(frameID),
		LoaderID:  string(loaderID),
		URL:       url,
		ErrorText: errorText,
	}
	if errorText != "" {
		return res, nil
	}

	select {
	case <-loadCh:
	case <-p.client.closeCh:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return res, nil
}
