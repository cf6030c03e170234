// Package cleanup releases acquired resources in reverse acquisition order.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomyan/headlessmocha/internal/log"
)

// Action releases one resource.
type Action func(ctx context.Context) error

type entry struct {
	name   string
	action Action
}

// Stack is a LIFO of release actions owned by a single run.
// The zero value is ready to use. It is not safe for concurrent use.
type Stack struct {
	entries []entry
	logger  *log.Logger
}

// New returns an empty Stack that logs each release through logger.
func New(logger *log.Logger) *Stack {
	return &Stack{logger: logger}
}

// Push registers action to run on Unwind. Push it straight after the
// resource it releases has been acquired.
func (s *Stack) Push(name string, action Action) {
	s.entries = append(s.entries, entry{name: name, action: action})
}

// Len returns the number of pending actions.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Unwind pops and runs every pending action, most recent first. Each action
// runs to completion before the next starts and a failing action does not stop
// the rest. The returned error joins every failure.
func (s *Stack) Unwind(ctx context.Context) error {
	var errs []error
	for len(s.entries) > 0 {
		last := len(s.entries) - 1
		e := s.entries[last]
		s.entries = s.entries[:last]

		s.logger.Debugf("cleanup", "releasing %s", e.name)
		if err := run(ctx, e.action); err != nil {
			s.logger.Debugf("cleanup", "releasing %s: %v", e.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx)
}
