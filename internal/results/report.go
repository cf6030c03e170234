package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ReportOptions configures WriteReport.
type ReportOptions struct {
	Colors bool   // colorize output
	Prefix string // printed before every line, e.g. the page path
}

// WriteReport prints a mocha-style summary of b to w: one line per test in
// emission order, the totals, then the details of each failure.
func WriteReport(w io.Writer, b *Bag, opts ReportOptions) error {
	pass := newPainter(opts.Colors, color.FgGreen)
	fail := newPainter(opts.Colors, color.FgRed)
	pending := newPainter(opts.Colors, color.FgCyan)
	dim := newPainter(opts.Colors, color.Faint)

	category := make(map[string][]string, 3)
	for _, r := range b.Pass {
		category[key(r)] = append(category[key(r)], "pass")
	}
	for _, r := range b.Fail {
		category[key(r)] = append(category[key(r)], "fail")
	}
	for _, r := range b.Pending {
		category[key(r)] = append(category[key(r)], "pending")
	}

	bw := &errWriter{w: w}
	failures := 0
	for _, r := range b.All {
		k := key(r)
		kind := ""
		if kinds := category[k]; len(kinds) > 0 {
			kind, category[k] = kinds[0], kinds[1:]
		}
		switch kind {
		case "pass":
			line := pass("✓") + " " + r.Title
			if r.Duration != nil {
				line += " " + dim(fmt.Sprintf("(%.0fms)", *r.Duration))
			}
			bw.printf("%s  %s\n", opts.Prefix, line)
		case "fail":
			failures++
			bw.printf("%s  %s\n", opts.Prefix, fail(fmt.Sprintf("%d) %s", failures, r.Title)))
		case "pending":
			bw.printf("%s  %s\n", opts.Prefix, pending("- "+r.Title))
		}
	}

	s := b.Summary()
	bw.printf("\n")
	bw.printf("%s  %s\n", opts.Prefix, pass(fmt.Sprintf("%d passing", s.Passes)))
	if s.Failures > 0 {
		bw.printf("%s  %s\n", opts.Prefix, fail(fmt.Sprintf("%d failing", s.Failures)))
	}
	if s.Pending > 0 {
		bw.printf("%s  %s\n", opts.Prefix, pending(fmt.Sprintf("%d pending", s.Pending)))
	}

	for i, r := range b.Fail {
		bw.printf("\n%s  %d) %s:\n", opts.Prefix, i+1, r.Title)
		msg := r.ErrorMessage()
		if msg == "" {
			msg = "(no error message)"
		}
		for _, line := range strings.Split(msg, "\n") {
			bw.printf("%s     %s\n", opts.Prefix, fail(line))
		}
	}
	return bw.err
}

func newPainter(enabled bool, attr color.Attribute) func(string) string {
	if !enabled {
		return func(s string) string { return s }
	}
	c := color.New(attr)
	c.EnableColor()
	sprint := c.SprintFunc()
	return func(s string) string { return sprint(s) }
}

// errWriter keeps the first write error so callers can check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
