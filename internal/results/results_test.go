package results

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBag = `{
	"all": [
		{"title": "adds", "duration": 3, "err": null},
		{"title": "divides", "duration": 1, "err": {"message": "expected 2 to equal 3", "name": "AssertionError"}},
		{"title": "later", "duration": null, "err": null}
	],
	"pass": [{"title": "adds", "duration": 3, "err": null}],
	"fail": [{"title": "divides", "duration": 1, "err": {"message": "expected 2 to equal 3", "name": "AssertionError"}}],
	"pending": [{"title": "later", "duration": null, "err": null}]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	b, err := Decode([]byte(sampleBag))
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	assert.Len(t, b.All, 3)
	assert.Equal(t, "adds", b.Pass[0].Title)
	require.NotNil(t, b.Pass[0].Duration)
	assert.Equal(t, 3.0, *b.Pass[0].Duration)
	assert.Nil(t, b.Pending[0].Duration)
	assert.Equal(t, "expected 2 to equal 3", b.Fail[0].ErrorMessage())
	assert.Equal(t, "", b.Pass[0].ErrorMessage())
	assert.False(t, b.OK())
	assert.Equal(t, Summary{Total: 3, Passes: 1, Failures: 1, Pending: 1}, b.Summary())
}

func TestDecode_MissingArraysAreEmpty(t *testing.T) {
	t.Parallel()

	b, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, b.Validate())
	assert.True(t, b.OK())

	// An empty bag must still encode to the four arrays, never null.
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":[],"pass":[],"fail":[],"pending":[]}`, string(data))
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"all": 3}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	rec := func(title string) Record { return Record{Title: title} }

	tests := []struct {
		name string
		bag  Bag
		ok   bool
	}{
		{
			name: "partitioned",
			bag:  Bag{All: []Record{rec("a"), rec("b")}, Pass: []Record{rec("a")}, Fail: []Record{rec("b")}},
			ok:   true,
		},
		{
			name: "duplicate_titles",
			bag:  Bag{All: []Record{rec("a"), rec("a")}, Pass: []Record{rec("a")}, Pending: []Record{rec("a")}},
			ok:   true,
		},
		{
			name: "count_mismatch",
			bag:  Bag{All: []Record{rec("a")}, Pass: []Record{rec("a")}, Fail: []Record{rec("b")}},
		},
		{
			name: "not_in_all",
			bag:  Bag{All: []Record{rec("a")}, Fail: []Record{rec("b")}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.bag.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	b, err := Decode([]byte(sampleBag))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, b, ReportOptions{Prefix: "[suite.html]"}))

	out := buf.String()
	assert.Contains(t, out, "[suite.html]  ✓ adds (3ms)\n")
	assert.Contains(t, out, "[suite.html]  1) divides\n")
	assert.Contains(t, out, "[suite.html]  - later\n")
	assert.Contains(t, out, "1 passing")
	assert.Contains(t, out, "1 failing")
	assert.Contains(t, out, "1 pending")
	assert.Contains(t, out, "expected 2 to equal 3")
	assert.NotContains(t, out, "\x1b[", "colors must be off unless requested")
}

func TestWriteReport_Colors(t *testing.T) {
	t.Parallel()

	b, err := Decode([]byte(sampleBag))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, b, ReportOptions{Colors: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}
