package headlessmocha

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/headlessmocha/internal/chrome"
	"github.com/tomyan/headlessmocha/internal/log"
	"github.com/tomyan/headlessmocha/internal/results"
)

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	assert.False(t, opts.Headful)
	assert.False(t, opts.Log)
	assert.Equal(t, 60*time.Second, opts.Timeout)
	assert.Equal(t, ".", opts.Root)

	filled := Options{Path: "index.html"}.withDefaults()
	assert.False(t, filled.Headful, "a literal Options must run headless")
	assert.Equal(t, DefaultTimeout, filled.Timeout)
	assert.NotNil(t, filled.Stdout)
	assert.NotNil(t, filled.Stderr)
	assert.NotNil(t, filled.Getenv)
}

func TestRun_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), DefaultOptions())
	assert.Error(t, err)
}

func TestRun_LaunchFailureReleasesServer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Path = "index.html"
	opts.Root = t.TempDir()
	opts.ChromePath = "/nonexistent/chrome"
	opts.Logger = log.New(&buf, logrus.DebugLevel, nil)

	bag, err := Run(context.Background(), opts)
	assert.Nil(t, bag)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunch)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "launch", perr.Phase)

	assert.Contains(t, buf.String(), "releasing close server")
	assert.Contains(t, buf.String(), "run=")
}

func TestPhaseError(t *testing.T) {
	t.Parallel()

	err := error(&PhaseError{Phase: "navigate", Kind: ErrTimeout, Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNavigation)
	assert.Equal(t, "navigate: timed out waiting for test results: context deadline exceeded", err.Error())

	bare := error(&PhaseError{Phase: "await", Kind: ErrDisconnected})
	assert.ErrorIs(t, bare, ErrDisconnected)
	assert.Equal(t, "await: browser disconnected", bare.Error())
}

func TestAwaitResult(t *testing.T) {
	t.Parallel()

	t.Run("payload", func(t *testing.T) {
		t.Parallel()
		ch := make(chan string, 1)
		ch <- `{"all":[]}`
		got, err := awaitResult(context.Background(), ch, time.Second)
		require.NoError(t, err)
		assert.Equal(t, `{"all":[]}`, got)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		start := time.Now()
		_, err := awaitResult(context.Background(), make(chan string), 100*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("disconnected", func(t *testing.T) {
		t.Parallel()
		ch := make(chan string)
		close(ch)
		_, err := awaitResult(context.Background(), ch, time.Second)
		assert.ErrorIs(t, err, ErrDisconnected)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := awaitResult(ctx, make(chan string), time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExtract(t *testing.T) {
	t.Parallel()

	bag, err := extract(`{"all":[{"title":"a","duration":2,"err":null}],"pass":[{"title":"a","duration":2,"err":null}],"fail":[],"pending":[]}`)
	require.NoError(t, err)
	assert.Equal(t, results.Summary{Total: 1, Passes: 1}, bag.Summary())

	_, err = extract(`not json`)
	assert.ErrorIs(t, err, ErrResult)

	_, err = extract(`{"all":[],"pass":[{"title":"a","duration":null,"err":null}]}`)
	assert.ErrorIs(t, err, ErrResult)
	assert.True(t, errors.Is(err, results.ErrInvalid))
}

func TestFormatConsole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []interface{}
		want string
	}{
		{name: "empty", args: nil, want: ""},
		{name: "blank_line", args: []interface{}{""}, want: ""},
		{name: "plain", args: []interface{}{"hello", "world"}, want: "hello world"},
		{name: "substitution", args: []interface{}{"%s has %d tests", "suite", 3.0}, want: "suite has 3 tests"},
		{name: "integer", args: []interface{}{"%i", 3.7}, want: "3"},
		{name: "float", args: []interface{}{"%f", 0.5}, want: "0.5"},
		{name: "not_a_number", args: []interface{}{"%d", map[string]interface{}{}}, want: "NaN"},
		{name: "percent", args: []interface{}{"100%%"}, want: "100%"},
		{name: "missing_arg", args: []interface{}{"%s and %s", "a"}, want: "a and %s"},
		{name: "css_dropped", args: []interface{}{"%cred", "color: red"}, want: "red"},
		{name: "json", args: []interface{}{"%j", map[string]interface{}{"a": 1.0}}, want: `{"a":1}`},
		{name: "extra_args", args: []interface{}{"x", 1.0, true, nil}, want: "x 1 true null"},
		{name: "undefined", args: []interface{}{chrome.Undefined{}}, want: "undefined"},
		{name: "object", args: []interface{}{map[string]interface{}{"b": "x", "a": []interface{}{1.0, 2.0}}}, want: "{ a: [ 1, 2 ], b: 'x' }"},
		{name: "empty_containers", args: []interface{}{[]interface{}{}, map[string]interface{}{}}, want: "[] {}"},
		{name: "large_number", args: []interface{}{1e21}, want: "1e+21"},
		{name: "leading_number", args: []interface{}{42.0, "%s"}, want: "42 %s"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatConsole(tt.args))
		})
	}
}
