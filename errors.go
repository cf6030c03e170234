package headlessmocha

import (
	"errors"
	"fmt"
)

// Error kinds. Every fatal run failure is a *PhaseError matching one of them
// with errors.Is.
var (
	ErrBind         = errors.New("could not start host service")
	ErrLaunch       = errors.New("could not launch browser")
	ErrNavigation   = errors.New("could not load page")
	ErrTimeout      = errors.New("timed out waiting for test results")
	ErrResult       = errors.New("invalid test results")
	ErrDisconnected = errors.New("browser disconnected")
)

// PhaseError reports which phase of a run failed, the kind of failure and
// its cause.
type PhaseError struct {
	Phase string
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
