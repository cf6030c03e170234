package chrome

import (
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
)

// --- Errors ---

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrProtocolError    = errors.New("protocol error")
)

// ProtocolError represents an error returned by the Chrome DevTools Protocol.
type ProtocolError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolError
}

// EvalError is returned when evaluated script throws.
type EvalError struct {
	Text        string
	Description string
}

func (e *EvalError) Error() string {
	if e.Description != "" {
		return "JS exception: " + e.Description
	}
	return "JS exception: " + e.Text
}

func evalError(d *runtime.ExceptionDetails) *EvalError {
	e := &EvalError{Text: d.Text}
	if d.Exception != nil {
		e.Description = d.Exception.Description
	}
	return e
}

// --- Browser & Page Info ---

// VersionInfo contains browser version information.
type VersionInfo struct {
	Browser         string `json:"browser"`
	ProtocolVersion string `json:"protocol"`
	UserAgent       string `json:"userAgent,omitempty"`
	V8Version       string `json:"v8,omitempty"`
}

// TargetInfo contains information about a browser target (tab/page).
type TargetInfo struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// --- Navigation ---

// NavigateResult contains the result of a navigation. ErrorText is set when
// the browser could not load the URL at all.
type NavigateResult struct {
	FrameID   string `json:"frameId"`
	LoaderID  string `json:"loaderId,omitempty"`
	URL       string `json:"url"`
	ErrorText string `json:"errorText,omitempty"`
}

// --- Evaluation ---

// EvalResult contains the result of evaluating an expression.
type EvalResult struct {
	Value interface{} `json:"value"`
	Type  string      `json:"type"`
}

// Undefined stands in for a JavaScript undefined value.
type Undefined struct{}

func (Undefined) String() string { return "undefined" }

// --- Page events ---

// ConsoleMessage is one console API call. Args are the raw remote objects;
// resolve them with (*Page).ResolveValue.
type ConsoleMessage struct {
	Type string
	Args []*runtime.RemoteObject
}

// ExceptionInfo describes an uncaught exception in the page.
type ExceptionInfo struct {
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Line        int64  `json:"line"`
	Column      int64  `json:"column"`
}

func (e ExceptionInfo) String() string {
	msg := e.Description
	if msg == "" {
		msg = e.Text
	}
	if e.URL == "" {
		return msg
	}
	return fmt.Sprintf("%s:%d:%d %s", e.URL, e.Line+1, e.Column+1, msg)
}

// Dialog describes a JavaScript dialog that was dismissed.
type Dialog struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
