package browser

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionClosed is returned by any operation on a session that is not open.
var ErrSessionClosed = errors.New("browser session is not open")

// SessionStartError reports that the browser could not be launched or the
// initial navigation failed. It is fatal for the owning run.
type SessionStartError struct {
	URL   string
	Stage string
	Err   error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start browser session for %s (%s): %v", e.URL, e.Stage, e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// ContentFormatError reports that page content could not be rendered in the
// requested format.
type ContentFormatError struct {
	Format ContentFormat
	Err    error
}

func (e *ContentFormatError) Error() string {
	return fmt.Sprintf("content is not valid %s: %v", e.Format, e.Err)
}

func (e *ContentFormatError) Unwrap() error { return e.Err }

// ElementNotFoundError reports that a selector matched no element.
type ElementNotFoundError struct {
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no element matches selector %q", e.Selector)
}

// InteractionTimeoutError reports that an element did not become actionable
// in time.
type InteractionTimeoutError struct {
	Selector string
	Action   string
	Timeout  time.Duration
	Err      error
}

func (e *InteractionTimeoutError) Error() string {
	return fmt.Sprintf("%s on %q timed out after %s", e.Action, e.Selector, e.Timeout)
}

func (e *InteractionTimeoutError) Unwrap() error { return e.Err }

// WaitTimeoutError reports that a bounded wait expired.
type WaitTimeoutError struct {
	Condition string
	Timeout   time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Condition)
}

// IsTimeout reports whether err is an interaction or wait timeout.
func IsTimeout(err error) bool {
	var it *InteractionTimeoutError
	var wt *WaitTimeoutError
	return errors.As(err, &it) || errors.As(err, &wt)
}
