package chrome

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// Page is a flat-mode session attached to one page target.
type Page struct {
	client    *Client
	TargetID  target.ID
	SessionID target.SessionID
}

var _ cdp.Executor = (*Page)(nil)

// Execute implements cdp.Executor, routing commands to the page's session.
func (p *Page) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return p.client.execute(ctx, p.SessionID, method, params, res)
}

func (p *Page) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, p)
}

// AttachPage attaches to a page target. Sessions are cached per target.
func (c *Client) AttachPage(ctx context.Context, targetID string) (*Page, error) {
	id := target.ID(targetID)

	c.sessionsMu.Lock()
	sessionID, ok := c.sessions[id]
	c.sessionsMu.Unlock()

	if !ok {
		var err error
		sessionID, err = target.AttachToTarget(id).WithFlatten(true).Do(cdp.WithExecutor(ctx, c))
		if err != nil {
			return nil, fmt.Errorf("attaching to target: %w", err)
		}
		c.sessionsMu.Lock()
		c.sessions[id] = sessionID
		c.sessionsMu.Unlock()
	}

	return &Page{client: c, TargetID: id, SessionID: sessionID}, nil
}

// Enable turns on the Page and Runtime domains for the session.
func (p *Page) Enable(ctx context.Context) error {
	if err := page.Enable().Do(p.exec(ctx)); err != nil {
		return fmt.Errorf("enabling Page domain: %w", err)
	}
	if err := runtime.Enable().Do(p.exec(ctx)); err != nil {
		return fmt.Errorf("enabling Runtime domain: %w", err)
	}
	return nil
}

// AddScriptToEvaluateOnNewDocument registers source to run in every new
// document before any of its own scripts.
func (p *Page) AddScriptToEvaluateOnNewDocument(ctx context.Context, source string) (string, error) {
	id, err := page.AddScriptToEvaluateOnNewDocument(source).Do(p.exec(ctx))
	if err != nil {
		return "", fmt.Errorf("adding init script: %w", err)
	}
	return string(id), nil
}

// AddBinding exposes window[name](payload string) in every execution
// context of the page. Calls arrive as Runtime.bindingCalled events.
func (p *Page) AddBinding(ctx context.Context, name string) error {
	if err := runtime.AddBinding(name).Do(p.exec(ctx)); err != nil {
		return fmt.Errorf("adding binding %q: %w", name, err)
	}
	return nil
}

// Eval evaluates a JavaScript expression in the page and returns its value.
// Promises are awaited.
func (p *Page) Eval(ctx context.Context, expression string) (*EvalResult, error) {
	obj, exc, err := runtime.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(p.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	if exc != nil {
		return nil, evalError(exc)
	}

	v, err := decodeValue(obj)
	if err != nil {
		return nil, err
	}
	return &EvalResult{Value: v, Type: string(obj.Type)}, nil
}

// ResolveValue turns a remote object into a plain Go value. Primitives are
// decoded directly, object handles are fetched by value, and anything that
// cannot be serialized (functions, errors, DOM nodes, cycles) is represented
// by its description string.
func (p *Page) ResolveValue(ctx context.Context, obj *runtime.RemoteObject) (interface{}, error) {
	if obj == nil {
		return Undefined{}, nil
	}
	switch {
	case obj.Type == runtime.TypeUndefined:
		return Undefined{}, nil
	case obj.UnserializableValue != "":
		return string(obj.UnserializableValue), nil
	case len(obj.Value) > 0:
		return decodeValue(obj)
	case obj.Subtype == runtime.SubtypeNull:
		return nil, nil
	case obj.Type == runtime.TypeFunction, obj.Type == runtime.TypeSymbol,
		obj.Subtype == runtime.SubtypeError, obj.Subtype == runtime.SubtypeNode,
		obj.Subtype == runtime.SubtypeRegexp, obj.Subtype == runtime.SubtypeDate:
		return obj.Description, nil
	case obj.ObjectID == "":
		return obj.Description, nil
	}

	res, exc, err := runtime.CallFunctionOn(`function () { return this; }`).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		Do(p.exec(ctx))
	if err != nil || exc != nil || res == nil {
		return obj.Description, nil
	}
	v, err := decodeValue(res)
	if err != nil {
		return obj.Description, nil
	}
	return v, nil
}

func decodeValue(obj *runtime.RemoteObject) (interface{}, error) {
	if obj == nil || obj.Type == runtime.TypeUndefined {
		return Undefined{}, nil
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue), nil
	}
	if len(obj.Value) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(obj.Value, &v); err != nil {
		return nil, fmt.Errorf("decoding remote value: %w", err)
	}
	return v, nil
}
