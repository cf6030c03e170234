// Package shim holds the script injected into every page before its own
// scripts run. The script wraps the page's mocha instance so that, when the
// first run ends, the categorized results are sent to the host through a CDP
// binding.
//
// The instance is wrapped as soon as the page assigns window.mocha. A page
// may start the run itself, inline or from a load listener, or leave it to
// the shim, which starts it after load if nothing else has. Pages that keep
// their instance somewhere else hand it over explicitly:
//
//	window.__headlessMocha.install(instance);
package shim

import (
	_ "embed"
	"encoding/json"
)

//go:embed shim.js
var script string

const (
	// BindingName is the page function that carries the finished bag to the host.
	BindingName = "__headlessMochaReport"
	// HookName is the page global exposing install(instance).
	HookName = "__headlessMocha"
	// ResultGlobal is the page global the finished bag is also stored in.
	ResultGlobal = "__mochaTest"
	// PageErrorSuite and PageErrorTest name the failing test added when the
	// page threw before the run started.
	PageErrorSuite = "page-script-errors"
	PageErrorTest  = "no script errors on page"
)

type options struct {
	Binding string `json:"binding"`
	Hook    string `json:"hook"`
	Global  string `json:"global"`
	Suite   string `json:"suite"`
	Test    string `json:"test"`
}

// Source returns the self-invoking script to evaluate on every new document.
func Source() string {
	opts, _ := json.Marshal(options{
		Binding: BindingName,
		Hook:    HookName,
		Global:  ResultGlobal,
		Suite:   PageErrorSuite,
		Test:    PageErrorTest,
	})
	return "(" + script + ")(" + string(opts) + ");"
}
