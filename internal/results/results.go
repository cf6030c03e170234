// Package results holds the structured outcome of one in-page test run.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned by Validate when a bag breaks the partition between
// all and pass/fail/pending.
var ErrInvalid = errors.New("invalid result bag")

// Record is one flattened test event.
type Record struct {
	Title    string                 `json:"title"`
	Duration *float64               `json:"duration"`
	Err      map[string]interface{} `json:"err"`
}

// ErrorMessage returns the message of the record's error, or "" if it has none.
func (r Record) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	if msg, ok := r.Err["message"].(string); ok {
		return msg
	}
	return fmt.Sprint(r.Err)
}

// Bag is the categorized collection of records for one run. All holds every
// record in emission order; each record also appears in exactly one of Pass,
// Fail or Pending.
type Bag struct {
	All     []Record `json:"all"`
	Pass    []Record `json:"pass"`
	Fail    []Record `json:"fail"`
	Pending []Record `json:"pending"`
}

// Summary counts the records of a bag.
type Summary struct {
	Total    int `json:"total"`
	Passes   int `json:"passes"`
	Failures int `json:"failures"`
	Pending  int `json:"pending"`
}

// Decode parses a bag from its JSON form. Missing arrays decode as empty.
func Decode(data []byte) (*Bag, error) {
	var b Bag
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding result bag: %w", err)
	}
	b.normalize()
	return &b, nil
}

func (b *Bag) normalize() {
	if b.All == nil {
		b.All = []Record{}
	}
	if b.Pass == nil {
		b.Pass = []Record{}
	}
	if b.Fail == nil {
		b.Fail = []Record{}
	}
	if b.Pending == nil {
		b.Pending = []Record{}
	}
}

// Validate checks that all is exactly the union of pass, fail and pending.
func (b *Bag) Validate() error {
	if n := len(b.Pass) + len(b.Fail) + len(b.Pending); n != len(b.All) {
		return fmt.Errorf("%w: %d records in all, %d categorized", ErrInvalid, len(b.All), n)
	}

	remaining := make(map[string]int, len(b.All))
	for _, r := range b.All {
		remaining[key(r)]++
	}
	for _, cat := range [][]Record{b.Pass, b.Fail, b.Pending} {
		for _, r := range cat {
			k := key(r)
			if remaining[k] == 0 {
				return fmt.Errorf("%w: %q is categorized but missing from all", ErrInvalid, r.Title)
			}
			remaining[k]--
		}
	}
	return nil
}

func key(r Record) string {
	data, _ := json.Marshal(r)
	return string(data)
}

// OK reports whether no test failed.
func (b *Bag) OK() bool {
	return len(b.Fail) == 0
}

// Summary returns record counts for b.
func (b *Bag) Summary() Summary {
	return Summary{
		Total:    len(b.All),
		Passes:   len(b.Pass),
		Failures: len(b.Fail),
		Pending:  len(b.Pending),
	}
}
