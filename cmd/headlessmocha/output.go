package main

import (
	"encoding/json"
	"fmt"

	"github.com/tomyan/headlessmocha/internal/results"
)

// pageResult is the machine-readable form of one page's outcome when more
// than one page was run.
type pageResult struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
	*results.Bag
}

func newPageResult(o outcome) pageResult {
	r := pageResult{Path: o.Path, Bag: o.Bag}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}
	return r
}

// writeOutcomes reports run errors on stderr and results on stdout in the
// configured format. It returns ExitError only if writing itself failed.
func writeOutcomes(cfg *Config, outcomes []outcome) int {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(cfg.Stderr, "error: %s: %v\n", o.Path, o.Err)
		}
	}

	var err error
	switch cfg.Output {
	case "json":
		err = writeJSON(cfg, outcomes)
	case "ndjson":
		enc := json.NewEncoder(cfg.Stdout)
		for _, o := range outcomes {
			if err = enc.Encode(newPageResult(o)); err != nil {
				break
			}
		}
	case "text":
		err = writeText(cfg, outcomes)
	default:
		err = fmt.Errorf("unknown output format: %s", cfg.Output)
	}
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// writeJSON prints the bag itself for a single page, or an array of page
// results for several.
func writeJSON(cfg *Config, outcomes []outcome) error {
	enc := json.NewEncoder(cfg.Stdout)
	enc.SetIndent("", "  ")

	if len(outcomes) == 1 {
		if outcomes[0].Bag == nil {
			return nil
		}
		return enc.Encode(outcomes[0].Bag)
	}

	all := make([]pageResult, len(outcomes))
	for i, o := range outcomes {
		all[i] = newPageResult(o)
	}
	return enc.Encode(all)
}

func writeText(cfg *Config, outcomes []outcome) error {
	for _, o := range outcomes {
		if o.Bag == nil || (cfg.Quiet && o.Bag.OK()) {
			continue
		}
		opts := results.ReportOptions{Colors: cfg.Colors}
		if len(outcomes) > 1 {
			opts.Prefix = o.Path
		}
		if err := results.WriteReport(cfg.Stdout, o.Bag, opts); err != nil {
			return err
		}
	}
	return nil
}
