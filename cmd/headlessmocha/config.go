package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// fileConfig is the .headlessmocharc structure. JSON rc files parse too.
type fileConfig struct {
	Root     *string  `yaml:"root"`
	Timeout  *string  `yaml:"timeout"` // duration string, e.g. "30s"
	Headless *bool    `yaml:"headless"`
	Log      *bool    `yaml:"log"`
	Args     []string `yaml:"args"`
	Chrome   *string  `yaml:"chrome"`
	Output   *string  `yaml:"output"`
	Parallel *int     `yaml:"parallel"`
}

// configFilePaths returns the rc files to try: the working directory first,
// then the home directory.
func configFilePaths() []string {
	paths := []string{filepath.Join(".", ".headlessmocharc")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".headlessmocharc"))
	}
	return paths
}

// loadConfigFile applies the first readable, well-formed rc file in paths.
func loadConfigFile(cfg *Config, paths []string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			continue // silently skip malformed config
		}
		applyFileConfig(cfg, &fc)
		return
	}
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.Root != nil {
		cfg.Root = *fc.Root
	}
	if fc.Timeout != nil {
		if d, ok := parseTimeout(*fc.Timeout); ok {
			cfg.Timeout = d
		}
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.Log != nil {
		cfg.Log = *fc.Log
	}
	if fc.Args != nil {
		cfg.Args = fc.Args
	}
	if fc.Chrome != nil {
		cfg.Chrome = *fc.Chrome
	}
	if fc.Output != nil {
		cfg.Output = *fc.Output
	}
	if fc.Parallel != nil {
		cfg.Parallel = *fc.Parallel
	}
}

// parseTimeout accepts a duration string or a bare number of milliseconds.
func parseTimeout(s string) (time.Duration, bool) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, true
	}
	return 0, false
}

// applyEnvVars applies environment variables to cfg, but only for fields
// not already set by explicit flags.
func applyEnvVars(cfg *Config, explicit map[string]bool) {
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if !explicit["chrome"] {
		if v := getenv("HEADLESSMOCHA_CHROME"); v != "" {
			cfg.Chrome = v
		}
	}
	if !explicit["timeout"] {
		if v := getenv("HEADLESSMOCHA_TIMEOUT"); v != "" {
			if d, ok := parseTimeout(v); ok {
				cfg.Timeout = d
			}
		}
	}
	if !explicit["root"] {
		if v := getenv("HEADLESSMOCHA_ROOT"); v != "" {
			cfg.Root = v
		}
	}
}

// reapplyExplicitFlags re-applies flag values that were explicitly set,
// since rc file loading may have overwritten them.
func reapplyExplicitFlags(cfg *Config, fv *flagValues, explicit map[string]bool) {
	if explicit["root"] {
		cfg.Root = fv.root
	}
	if explicit["timeout"] {
		cfg.Timeout = fv.timeout
	}
	if explicit["headless"] {
		cfg.Headless = fv.headless
	}
	if explicit["log"] {
		cfg.Log = fv.log
	}
	if explicit["arg"] {
		cfg.Args = append([]string(nil), fv.args...)
	}
	if explicit["chrome"] {
		cfg.Chrome = fv.chrome
	}
	if explicit["output"] {
		cfg.Output = fv.output
	}
	if explicit["parallel"] {
		cfg.Parallel = fv.parallel
	}
	if explicit["verbose"] {
		cfg.Verbose = fv.verbose
	}
	if explicit["log-format"] {
		cfg.LogFormat = fv.logFormat
	}
	if explicit["quiet"] {
		cfg.Quiet = fv.quiet
	}
}

// stdoutIsTerminal reports whether colored output suits os.Stdout.
func stdoutIsTerminal() bool {
	return !color.NoColor
}
