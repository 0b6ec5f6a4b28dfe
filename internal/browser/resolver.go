package browser

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultFindTimeout bounds element lookups unless overridden.
	DefaultFindTimeout = 30 * time.Second
	// DefaultPollInterval is the delay between two lookups of a locator.
	DefaultPollInterval = 100 * time.Millisecond
)

// Resolver resolves locators against the page a Driver is bound to.
type Resolver struct {
	driver   Driver
	timeout  time.Duration
	interval time.Duration
}

// NewResolver returns a resolver using timeout for lookups. Zero values fall
// back to DefaultFindTimeout and DefaultPollInterval.
func NewResolver(d Driver, timeout, interval time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultFindTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Resolver{driver: d, timeout: timeout, interval: interval}
}

// Timeout returns the default lookup timeout.
func (r *Resolver) Timeout() time.Duration { return r.timeout }

type findOptions struct {
	timeout time.Duration
	visible bool
	stale   map[string]struct{}
}

// FindOption tunes a single lookup.
type FindOption func(*findOptions)

// WithTimeout overrides the lookup timeout, e.g. for a full site rebuild.
func WithTimeout(d time.Duration) FindOption {
	return func(o *findOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Visible additionally requires the first match to be visible.
func Visible() FindOption {
	return func(o *findOptions) { o.visible = true }
}

// excluding skips matches whose node key is in stale.
func excluding(stale map[string]struct{}) FindOption {
	return func(o *findOptions) { o.stale = stale }
}

// pick returns the first match that is not stale, provided it passes the
// visibility requirement. A nil element means keep polling.
func (o findOptions) pick(ctx context.Context, els []Element) (Element, error) {
	for _, el := range els {
		if len(o.stale) > 0 {
			key, err := el.Key(ctx)
			if err != nil {
				return nil, err
			}
			if _, ok := o.stale[key]; ok {
				continue
			}
		}
		if !o.visible {
			return el, nil
		}
		ok, err := el.Visible(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return el, nil
	}
	return nil, nil
}

// keys returns the node keys of everything loc matches right now. Nodes that
// vanish while being keyed are left out.
func (r *Resolver) keys(ctx context.Context, loc Locator) (map[string]struct{}, error) {
	els, err := r.driver.Query(ctx, loc)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(els))
	for _, el := range els {
		if key, err := el.Key(ctx); err == nil {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

// Find waits until loc matches at least one element and returns the first
// one in document order. Several matches are not an error. When nothing
// matches before the timeout the result is an *ElementNotFoundError.
func (r *Resolver) Find(ctx context.Context, loc Locator, opts ...FindOption) (Element, error) {
	o := findOptions{timeout: r.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	timeout := effectiveTimeout(ctx, o.timeout)
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		els, err := r.driver.Query(ctx, loc)
		switch {
		case err != nil && !isTimeout(err):
			return nil, err
		case err != nil:
			lastErr = err
		case len(els) > 0:
			el, perr := o.pick(ctx, els)
			if el != nil {
				return el, nil
			}
			lastErr = perr
		}

		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ctx.Err()
			}
			return nil, &ElementNotFoundError{Locator: loc, Timeout: timeout, Err: lastErr}
		case <-ticker.C:
		}
	}
}

// FindByText finds the first tag element whose text contains text.
func (r *Resolver) FindByText(ctx context.Context, tag, text string, opts ...FindOption) (Element, error) {
	return r.Find(ctx, ByText(tag, text), opts...)
}

// FindByAttribute finds the first tag element whose attr equals value.
func (r *Resolver) FindByAttribute(ctx context.Context, tag, attr, value string, opts ...FindOption) (Element, error) {
	return r.Find(ctx, ByAttribute(tag, attr, value), opts...)
}

// WaitVisible finds the first match of loc and waits until it is visible.
func (r *Resolver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	return r.Find(ctx, loc, WithTimeout(timeout), Visible())
}

// Count returns how many elements match loc right now.
func (r *Resolver) Count(ctx context.Context, loc Locator) (int, error) {
	els, err := r.driver.Query(ctx, loc)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// effectiveTimeout is d, or less when ctx already expires sooner.
func effectiveTimeout(ctx context.Context, d time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return d
	}
	left := time.Until(dl).Round(time.Millisecond)
	if left < 0 {
		left = 0
	}
	if left < d {
		return left
	}
	return d
}
