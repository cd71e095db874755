// pkg/driver/errors.go
package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDriverStopped is returned by the lazy accessors once Quit has run.
// A quit driver cannot be revived; construct a new one.
var ErrDriverStopped = errors.New("driver: session has been quit")

// ErrInspectorNotConfigured is returned by Inspector when no inspector
// endpoint was supplied at construction time.
var ErrInspectorNotConfigured = errors.New("driver: inspector endpoint not configured")

// InvalidFrameSelectorError reports a frame selector of an unsupported
// type. It is raised before any context switch happens.
type InvalidFrameSelectorError struct {
	Selector any
}

func (e *InvalidFrameSelectorError) Error() string {
	return fmt.Sprintf("driver: invalid frame selector type %T (want *Node, int or string)", e.Selector)
}

// FrameNotFoundError reports that a frame selector was well-formed but
// matched no iframe on the current page.
type FrameNotFoundError struct {
	Selector any
}

func (e *FrameNotFoundError) Error() string {
	return fmt.Sprintf("driver: no frame matching %v", e.Selector)
}

// ModalNotFoundError is surfaced when the modal waiter's deadline expires.
// Expected is the textual form of the requested filter (empty when no
// filter was given); Observed lists the distinct dialog messages seen
// while polling, in order of first observation.
type ModalNotFoundError struct {
	Expected string
	Observed []string
}

func (e *ModalNotFoundError) Error() string {
	if len(e.Observed) == 0 {
		if e.Expected == "" {
			return "driver: timed out waiting for modal dialog: no dialog was observed"
		}
		return fmt.Sprintf("driver: timed out waiting for modal dialog matching %q: no dialog was observed", e.Expected)
	}
	quoted := make([]string, len(e.Observed))
	for i, msg := range e.Observed {
		quoted[i] = fmt.Sprintf("%q", msg)
	}
	return fmt.Sprintf(
		"driver: timed out waiting for modal dialog matching %q: observed %s instead",
		e.Expected, strings.Join(quoted, ", "),
	)
}
