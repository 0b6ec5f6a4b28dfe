package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrElementNotFound is matched by errors for locators that resolved to
	// zero elements before their timeout.
	ErrElementNotFound = errors.New("element not found")
	// ErrActionFailed is matched by errors raised while performing an action
	// on a present element.
	ErrActionFailed = errors.New("action failed")
	// ErrNavigationTimeout is matched by errors for settle conditions that
	// were never reached.
	ErrNavigationTimeout = errors.New("navigation settle timeout")
	// ErrTimeout is returned by drivers when the underlying automation
	// library gave up waiting.
	ErrTimeout = errors.New("driver timeout")
)

// ElementNotFoundError reports a locator that matched nothing within Timeout.
type ElementNotFoundError struct {
	Locator Locator
	Timeout time.Duration
	Err     error
}

func (e *ElementNotFoundError) Error() string {
	msg := fmt.Sprintf("element not found within %s: %s", e.Timeout, e.Locator)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// ActionFailedError wraps a driver error raised by the action of a step.
type ActionFailedError struct {
	Step string
	Err  error
}

func (e *ActionFailedError) Error() string {
	return fmt.Sprintf("%s: action failed: %v", e.Step, e.Err)
}

func (e *ActionFailedError) Is(target error) bool { return target == ErrActionFailed }

func (e *ActionFailedError) Unwrap() error { return e.Err }

// NavigationTimeoutError reports a settle condition that did not complete
// within Timeout after the action succeeded.
type NavigationTimeoutError struct {
	Step      string
	Condition Condition
	Timeout   time.Duration
	Err       error
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s not reached within %s", e.Step, e.Condition, e.Timeout)
}

func (e *NavigationTimeoutError) Is(target error) bool { return target == ErrNavigationTimeout }

func (e *NavigationTimeoutError) Unwrap() error { return e.Err }

// isTimeout reports whether err came from a deadline rather than a failure.
func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrElementNotFound) ||
		errors.Is(err, context.DeadlineExceeded)
}
