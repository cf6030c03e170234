package shim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/headlessmocha/internal/results"
)

// newPage returns a goja runtime with the harness, the shim and the fake
// mocha loaded, in the order a browser would see them.
func newPage(t *testing.T) *goja.Runtime {
	t.Helper()

	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))

	run(t, vm, readTestdata(t, "harness.js"))
	run(t, vm, Source())
	run(t, vm, readTestdata(t, "fakemocha.js"))
	return vm
}

func readTestdata(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func run(t *testing.T, vm *goja.Runtime, src string) goja.Value {
	t.Helper()

	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v
}

func reports(t *testing.T, vm *goja.Runtime) []*results.Bag {
	t.Helper()

	raw, ok := vm.Get("reports").Export().([]interface{})
	require.True(t, ok)

	bags := make([]*results.Bag, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		require.True(t, ok, "binding payload must be a string")
		b, err := results.Decode([]byte(s))
		require.NoError(t, err)
		require.NoError(t, b.Validate())
		bags = append(bags, b)
	}
	return bags
}

func TestSource(t *testing.T) {
	t.Parallel()

	src := Source()
	assert.Contains(t, src, `"binding":"`+BindingName+`"`)
	assert.Contains(t, src, `"hook":"`+HookName+`"`)
	assert.Contains(t, src, `"global":"`+ResultGlobal+`"`)
}

func TestAutoInstallOnLoad(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('adds', function () {});
		it('divides', function () {
			var e = new Error('expected 2 to equal 3');
			e.actual = 2;
			e.expected = 3;
			throw e;
		});
		it('later');
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	b := bags[0]

	assert.Equal(t, results.Summary{Total: 3, Passes: 1, Failures: 1, Pending: 1}, b.Summary())
	assert.Equal(t, []string{"adds", "divides", "later"}, titles(b.All))
	assert.Nil(t, b.Pass[0].Err)
	require.NotNil(t, b.Pass[0].Duration)
	assert.Equal(t, 1.0, *b.Pass[0].Duration)
	assert.Nil(t, b.Pending[0].Duration)

	failErr := b.Fail[0].Err
	assert.Equal(t, "expected 2 to equal 3", failErr["message"])
	assert.Equal(t, "Error", failErr["name"])
	assert.Equal(t, 2.0, failErr["actual"])
	assert.Equal(t, 3.0, failErr["expected"])

	assert.Equal(t, int64(1), run(t, vm, `mocha.runs`).ToInteger())
	assert.True(t, run(t, vm, `Mocha.reporters.Base.useColors`).ToBoolean())
	assert.True(t, run(t, vm, `mocha.reporterUsed === Mocha.reporters.spec`).ToBoolean())
	assert.True(t, run(t, vm, `window.__mochaTest.all.length === 3`).ToBoolean())
}

func TestExplicitInstall(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		window.__headlessMocha.install(mocha);
		it('works', function () {});
		mocha.run();
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.Equal(t, []string{"works"}, titles(bags[0].Pass))
	assert.Equal(t, int64(1), run(t, vm, `mocha.runs`).ToInteger(), "load must not start a second run")
}

func TestInlineRunIsObserved(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('adds', function () {});
		mocha.run();
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.Equal(t, []string{"adds"}, titles(bags[0].Pass))
	assert.Equal(t, int64(1), run(t, vm, `mocha.runs`).ToInteger())
}

func TestRunFromPageLoadListener(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('adds', function () {});
		window.addEventListener('load', function () { mocha.run(); });
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.Equal(t, []string{"adds"}, titles(bags[0].Pass))
	assert.Equal(t, int64(1), run(t, vm, `mocha.runs`).ToInteger())
}

func TestLoadListenerRegisteredBeforeMocha(t *testing.T) {
	t.Parallel()

	// The page's listener is added before the framework script, so it runs
	// first and the shim has nothing left to start.
	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	run(t, vm, readTestdata(t, "harness.js"))
	run(t, vm, Source())
	run(t, vm, `window.addEventListener('load', function () { mocha.run(); });`)
	run(t, vm, readTestdata(t, "fakemocha.js"))
	run(t, vm, `
		it('adds', function () {});
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.Equal(t, int64(1), run(t, vm, `mocha.runs`).ToInteger())
}

func TestRerunAfterEndPublishesOnce(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('adds', function () {});
		mocha.run();
		flush();
		mocha.run();
		flush();
	`)

	assert.Equal(t, int64(2), run(t, vm, `mocha.runs`).ToInteger())
	assert.Len(t, reports(t, vm), 1)
}

func TestRunWhileRunningThrows(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	_, err := vm.RunString(`
		it('adds', function () {});
		mocha.run();
		mocha.run();
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currently running tests")

	run(t, vm, `flush();`)
	assert.Len(t, reports(t, vm), 1)
}

func TestPageErrorBeforeRun(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('passes', function () {});
		dispatch('error', {filename: 'http://127.0.0.1/suite.js', lineno: 7, message: 'Uncaught ReferenceError: foo is not defined'});
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	b := bags[0]
	require.Len(t, b.Fail, 1)
	assert.Equal(t, PageErrorTest, b.Fail[0].Title)
	assert.Equal(t, "http://127.0.0.1/suite.js:7 Uncaught ReferenceError: foo is not defined", b.Fail[0].ErrorMessage())
	assert.Equal(t, []string{"passes"}, titles(b.Pass))
}

func TestPageErrorBeforeInlineRun(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		dispatch('error', {filename: 'suite.js', lineno: 3, message: 'early'});
		it('passes', function () {});
		mocha.run();
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	require.Len(t, bags[0].Fail, 1)
	assert.Equal(t, "suite.js:3 early", bags[0].Fail[0].ErrorMessage())
	assert.Equal(t, []string{"passes"}, titles(bags[0].Pass))
}

func TestPageErrorAfterRunIsIgnored(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('passes', function () {});
		mocha.run();
		dispatch('error', {filename: 'suite.js', lineno: 1, message: 'late'});
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.True(t, bags[0].OK())
	assert.Len(t, bags[0].All, 1)
}

func TestUnserializableErrorProperty(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `
		it('cycles', function () {
			var e = new Error('boom');
			e.self = e;
			throw e;
		});
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	require.Len(t, bags[0].Fail, 1)
	err := bags[0].Fail[0].Err
	assert.Equal(t, "boom", err["message"])
	assert.Equal(t, "Error: boom", err["self"])
}

func TestNoMochaOnPage(t *testing.T) {
	t.Parallel()

	vm := goja.New()
	require.NoError(t, vm.Set("window", vm.GlobalObject()))
	run(t, vm, readTestdata(t, "harness.js"))
	run(t, vm, Source())
	run(t, vm, `dispatch('load'); flush();`)

	assert.Empty(t, reports(t, vm))
}

func TestEmptyConsoleLog(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, `console.log(); console.log('a', 1);`)

	logged, ok := vm.Get("logged").Export().([]interface{})
	require.True(t, ok)
	require.Len(t, logged, 2)
	assert.Equal(t, []interface{}{""}, logged[0])
	assert.Equal(t, []interface{}{"a", int64(1)}, logged[1])
}

func TestSourceIsIdempotent(t *testing.T) {
	t.Parallel()

	vm := newPage(t)
	run(t, vm, Source())
	run(t, vm, `
		it('once', function () {});
		dispatch('load');
		flush();
	`)

	bags := reports(t, vm)
	require.Len(t, bags, 1)
	assert.Len(t, bags[0].All, 1)
}

func titles(rs []results.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Title)
	}
	return out
}
