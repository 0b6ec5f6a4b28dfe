package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSettleTimeout bounds settle conditions unless overridden.
const DefaultSettleTimeout = 30 * time.Second

type conditionKind int

const (
	conditionLoad conditionKind = iota
	conditionAppears
)

// Condition is a settle signal awaited jointly with an action.
type Condition struct {
	kind    conditionKind
	state   LoadState
	locator Locator
	timeout time.Duration
}

// WaitFor settles once the page reaches state.
func WaitFor(state LoadState) Condition {
	return Condition{kind: conditionLoad, state: state}
}

// Appears settles once loc matches a visible element that was not already
// matched when the condition was armed. Used when the action updates the page
// in place instead of navigating.
func Appears(loc Locator) Condition {
	return Condition{kind: conditionAppears, locator: loc}
}

// Within overrides the settle timeout of the condition.
func (c Condition) Within(d time.Duration) Condition {
	c.timeout = d
	return c
}

func (c Condition) String() string {
	if c.kind == conditionAppears {
		return "appearance of " + c.locator.String()
	}
	return c.state.String()
}

// Action is a page mutation such as a click or a form submission.
type Action func(ctx context.Context) error

// Options configures a Session.
type Options struct {
	FindTimeout   time.Duration
	SettleTimeout time.Duration
	PollInterval  time.Duration
}

// Session couples a Driver with a Resolver and the step state machine. The
// page handle is always passed explicitly through a Session; there is no
// package-level current page.
type Session struct {
	driver        Driver
	resolver      *Resolver
	settleTimeout time.Duration

	mu       sync.RWMutex
	observer func(StepEvent)
}

// NewSession binds a session to d.
func NewSession(d Driver, opts Options) *Session {
	settle := opts.SettleTimeout
	if settle <= 0 {
		settle = DefaultSettleTimeout
	}
	return &Session{
		driver:        d,
		resolver:      NewResolver(d, opts.FindTimeout, opts.PollInterval),
		settleTimeout: settle,
	}
}

// Driver returns the underlying driver.
func (s *Session) Driver() Driver { return s.driver }

// Resolver returns the locator resolver bound to the session page.
func (s *Session) Resolver() *Resolver { return s.resolver }

// Observe registers fn to receive every step transition.
func (s *Session) Observe(fn func(StepEvent)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

func (s *Session) emit(ev StepEvent) {
	s.mu.RLock()
	fn := s.observer
	s.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Navigate loads url and waits for state within the settle timeout.
func (s *Session) Navigate(ctx context.Context, url string, state LoadState) error {
	timeout := effectiveTimeout(ctx, s.settleTimeout)
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()
	if err := s.driver.Navigate(ctx, url, state); err != nil {
		if isTimeout(err) {
			return &NavigationTimeoutError{Step: "navigate " + url, Condition: WaitFor(state), Timeout: timeout, Err: err}
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// ActAndWait fires action and waits for every condition. Conditions are
// armed before the action runs so a fast navigation cannot be missed. An
// action error is returned at once as *ActionFailedError; a condition that
// expires yields *NavigationTimeoutError. A caller that cancels ctx ends the
// step in StateCanceled. Nothing is retried.
func (s *Session) ActAndWait(ctx context.Context, step string, action Action, conds ...Condition) error {
	start := time.Now()
	state := StateIdle
	transition := func(to State, err error) {
		s.emit(StepEvent{Step: step, From: state, To: to, Elapsed: time.Since(start), Err: err})
		state = to
	}

	armCtx, disarm := context.WithCancel(ctx)
	defer disarm()
	g, gctx := errgroup.WithContext(armCtx)
	abort := func(err error) error {
		disarm()
		_ = g.Wait()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			err = fmt.Errorf("%s: %w", step, err)
			transition(StateCanceled, err)
			return err
		}
		err = &ActionFailedError{Step: step, Err: err}
		transition(StateActionFailed, err)
		return err
	}

	for _, c := range conds {
		c := c
		timeout := c.timeout
		if timeout <= 0 {
			timeout = s.settleTimeout
		}
		switch c.kind {
		case conditionLoad:
			w, err := s.driver.Expect(gctx, c.state)
			if err != nil {
				return abort(fmt.Errorf("arm %s: %w", c, err))
			}
			g.Go(func() error {
				defer w.Cancel()
				reported := effectiveTimeout(gctx, timeout)
				wctx, cancel := context.WithTimeout(gctx, timeout)
				defer cancel()
				return settleErr(step, c, reported, w.Wait(wctx))
			})
		case conditionAppears:
			// Matches present before the action belong to the old page.
			stale, err := s.resolver.keys(gctx, c.locator)
			if err != nil {
				return abort(fmt.Errorf("arm %s: %w", c, err))
			}
			g.Go(func() error {
				_, err := s.resolver.Find(gctx, c.locator, WithTimeout(timeout), Visible(), excluding(stale))
				var nf *ElementNotFoundError
				if errors.As(err, &nf) {
					return settleErr(step, c, nf.Timeout, err)
				}
				return settleErr(step, c, timeout, err)
			})
		}
	}

	transition(StateActionFired, nil)
	if err := action(ctx); err != nil {
		return abort(err)
	}

	transition(StateWaitingForSettle, nil)
	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, ErrNavigationTimeout):
			transition(StateTimedOut, err)
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			transition(StateCanceled, err)
		default:
			transition(StateActionFailed, err)
		}
		return err
	}
	transition(StateSettled, nil)
	return nil
}

func settleErr(step string, c Condition, timeout time.Duration, err error) error {
	switch {
	case err == nil:
		return nil
	case isTimeout(err):
		return &NavigationTimeoutError{Step: step, Condition: c, Timeout: timeout, Err: err}
	default:
		return fmt.Errorf("%s: waiting for %s: %w", step, c, err)
	}
}

// Click resolves loc and clicks it jointly with conds.
func (s *Session) Click(ctx context.Context, loc Locator, conds ...Condition) error {
	el, err := s.resolver.Find(ctx, loc)
	if err != nil {
		return err
	}
	return s.ActAndWait(ctx, "click "+loc.String(), el.Click, conds...)
}

// ClickByText clicks the first tag element whose text contains text.
func (s *Session) ClickByText(ctx context.Context, tag, text string, conds ...Condition) error {
	return s.Click(ctx, ByText(tag, text), conds...)
}

// Hover resolves loc and moves the pointer over it.
func (s *Session) Hover(ctx context.Context, loc Locator) error {
	el, err := s.resolver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Hover(ctx); err != nil {
		return &ActionFailedError{Step: "hover " + loc.String(), Err: err}
	}
	return nil
}

// Fill selects the current contents of the field at loc and replaces them
// with text.
func (s *Session) Fill(ctx context.Context, loc Locator, text string) error {
	el, err := s.resolver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.ClickCount(ctx, 3); err != nil {
		return &ActionFailedError{Step: "select " + loc.String(), Err: err}
	}
	if err := el.Fill(ctx, text); err != nil {
		return &ActionFailedError{Step: "fill " + loc.String(), Err: err}
	}
	return nil
}

// Select picks the option labelled label in the <select> at loc.
func (s *Session) Select(ctx context.Context, loc Locator, label string) error {
	el, err := s.resolver.Find(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectOption(ctx, label); err != nil {
		return &ActionFailedError{Step: "select option " + loc.String(), Err: err}
	}
	return nil
}

// Exists reports whether loc matches anything right now.
func (s *Session) Exists(ctx context.Context, loc Locator) (bool, error) {
	n, err := s.resolver.Count(ctx, loc)
	return n > 0, err
}

// Screenshot captures the current page into path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	return s.driver.Screenshot(ctx, path)
}
