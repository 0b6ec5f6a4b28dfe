// Package browser holds the browser-independent core of the harness: locator
// construction and resolution, and actions coupled with the page settle
// signal they trigger. Concrete automation libraries plug in through Driver.
package browser

import (
	"context"
	"fmt"
)

// LoadState is a page lifecycle milestone a driver can wait for.
type LoadState int

const (
	// DOMContentLoaded fires once the HTML is parsed.
	DOMContentLoaded LoadState = iota + 1
	// Load fires once the page and its subresources are loaded.
	Load
	// NetworkIdle is reached when no request has been in flight for a short
	// quiescence window after load.
	NetworkIdle
)

func (s LoadState) String() string {
	switch s {
	case DOMContentLoaded:
		return "domcontentloaded"
	case Load:
		return "load"
	case NetworkIdle:
		return "networkidle"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// Driver is the capability set the core needs from an automation library.
// Implementations are bound to a single page and are not safe for use by
// independent flows.
type Driver interface {
	// Navigate loads url and returns once state is reached.
	Navigate(ctx context.Context, url string, state LoadState) error
	// Query returns the elements currently matching loc in document order
	// without waiting. No match is an empty slice, not an error.
	Query(ctx context.Context, loc Locator) ([]Element, error)
	// Expect registers interest in the next occurrence of state. It must be
	// called before the action that triggers the transition.
	Expect(ctx context.Context, state LoadState) (Waiter, error)
	// Screenshot writes an image of the current page to path.
	Screenshot(ctx context.Context, path string) error
	// URL returns the address of the current document.
	URL(ctx context.Context) (string, error)
	// Close releases the page and everything the driver launched.
	Close() error
}

// Element is a handle to a single node of the current document.
type Element interface {
	Click(ctx context.Context) error
	// ClickCount clicks n times in a row; 3 selects the field contents.
	ClickCount(ctx context.Context, n int) error
	Hover(ctx context.Context) error
	// Fill replaces the value of an input with text.
	Fill(ctx context.Context, text string) error
	// SelectOption selects the option of a <select> by its visible label.
	SelectOption(ctx context.Context, label string) error
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	// Key identifies the DOM node behind the handle. Handles of the same node
	// share a key; a node that replaced it never does.
	Key(ctx context.Context) (string, error)
}

// NodeKeyFunc is a JavaScript function of one element that tags it with a
// random key on first use and returns the key. Adapters without a native
// node id evaluate it in the page.
const NodeKeyFunc = `function(el) {
  if (!el.__e2eKey) {
    el.__e2eKey = Date.now().toString(36) + Math.random().toString(36).slice(2);
  }
  return el.__e2eKey;
}`

// Waiter is an armed settle listener returned by Driver.Expect.
type Waiter interface {
	// Wait blocks until the awaited state is reached or ctx is done.
	Wait(ctx context.Context) error
	// Cancel releases the listener. It is safe to call after Wait.
	Cancel()
}

// WaiterFunc adapts a pair of functions to Waiter.
type WaiterFunc struct {
	WaitFn   func(ctx context.Context) error
	CancelFn func()
}

func (w WaiterFunc) Wait(ctx context.Context) error { return w.WaitFn(ctx) }

func (w WaiterFunc) Cancel() {
	if w.CancelFn != nil {
		w.CancelFn()
	}
}
