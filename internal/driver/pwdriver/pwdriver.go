// Package pwdriver adapts playwright-go to browser.Driver.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/staticpress2019/e2e/internal/browser"
)

// Config controls how the browser is launched.
type Config struct {
	// Browser is chromium, firefox or webkit.
	Browser        string
	Headless       bool
	SlowMo         time.Duration
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	// VideoDir enables video recording when set.
	VideoDir string
	// Username and Password are sent as HTTP basic-auth credentials.
	Username string
	Password string
	// SkipInstall skips the driver/browser download, e.g. in images with
	// browsers preinstalled.
	SkipInstall    bool
	DefaultTimeout time.Duration
}

// Driver owns a Playwright instance, one browser, one context and one page.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

var _ browser.Driver = (*Driver)(nil)

// Launch starts Playwright and opens a fresh page.
func Launch(cfg Config) (*Driver, error) {
	if !cfg.SkipInstall && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		// The driver may be missing even after a skipped install; retry once.
		_ = playwright.Install()
		if pw, err = playwright.Run(); err != nil {
			return nil, fmt.Errorf("could not start playwright: %w", err)
		}
	}
	d := &Driver{pw: pw}

	bt := pw.Chromium
	switch cfg.Browser {
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	}
	d.browser, err = bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		SlowMo:   playwright.Float(float64(cfg.SlowMo.Milliseconds())),
		Args:     cfg.Args,
	})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	opts := playwright.BrowserNewContextOptions{}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		opts.Viewport = &playwright.Size{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight}
	}
	if cfg.Username != "" {
		opts.HttpCredentials = &playwright.HttpCredentials{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.VideoDir != "" {
		opts.RecordVideo = &playwright.RecordVideo{Dir: cfg.VideoDir}
	}
	d.context, err = d.browser.NewContext(opts)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not create context: %w", err)
	}

	d.page, err = d.context.NewPage()
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	if cfg.DefaultTimeout > 0 {
		d.page.SetDefaultTimeout(float64(cfg.DefaultTimeout.Milliseconds()))
	}
	return d, nil
}

// Page exposes the Playwright page for diagnostics.
func (d *Driver) Page() playwright.Page { return d.page }

func (d *Driver) Navigate(ctx context.Context, url string, state browser.LoadState) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: waitUntil(state),
		Timeout:   timeout(ctx),
	})
	return translate(err)
}

func (d *Driver) Query(_ context.Context, loc browser.Locator) ([]browser.Element, error) {
	l := d.page.Locator(loc.String())
	n, err := l.Count()
	if err != nil {
		return nil, translate(err)
	}
	els := make([]browser.Element, 0, n)
	for i := 0; i < n; i++ {
		els = append(els, &element{loc: l.Nth(i)})
	}
	return els, nil
}

// Expect arms a one-shot page event listener. Network idle has no event of
// its own, so it waits for load and then asks Playwright for the idle state.
func (d *Driver) Expect(_ context.Context, state browser.LoadState) (browser.Waiter, error) {
	fired := make(chan struct{})
	var once sync.Once
	fire := func(playwright.Page) { once.Do(func() { close(fired) }) }

	event := "load"
	if state == browser.DOMContentLoaded {
		event = "domcontentloaded"
	}
	d.page.Once(event, fire)

	return browser.WaiterFunc{
		// RemoveListener matches handlers by code pointer, so this also drops
		// the listeners of sibling waiters on the same event. They belong to
		// the same step and have either fired or been given up on.
		CancelFn: func() { d.page.RemoveListener(event, fire) },
		WaitFn: func(ctx context.Context) error {
			select {
			case <-fired:
			case <-ctx.Done():
				return ctx.Err()
			}
			if state != browser.NetworkIdle {
				return nil
			}
			return translate(d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
				State:   playwright.LoadStateNetworkidle,
				Timeout: timeout(ctx),
			}))
		},
	}, nil
}

func (d *Driver) Screenshot(_ context.Context, path string) error {
	_, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return translate(err)
}

func (d *Driver) URL(context.Context) (string, error) {
	return d.page.URL(), nil
}

// Close tears everything down in reverse order of creation.
func (d *Driver) Close() error {
	var errs []error
	if d.page != nil {
		errs = append(errs, d.page.Close())
	}
	if d.context != nil {
		errs = append(errs, d.context.Close())
	}
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.pw != nil {
		errs = append(errs, d.pw.Stop())
	}
	return errors.Join(errs...)
}

type element struct {
	loc playwright.Locator
}

func (e *element) Click(ctx context.Context) error {
	return translate(e.loc.Click(playwright.LocatorClickOptions{Timeout: timeout(ctx)}))
}

func (e *element) ClickCount(ctx context.Context, n int) error {
	return translate(e.loc.Click(playwright.LocatorClickOptions{
		ClickCount: playwright.Int(n),
		Timeout:    timeout(ctx),
	}))
}

func (e *element) Hover(ctx context.Context) error {
	return translate(e.loc.Hover(playwright.LocatorHoverOptions{Timeout: timeout(ctx)}))
}

func (e *element) Fill(ctx context.Context, text string) error {
	return translate(e.loc.Fill(text, playwright.LocatorFillOptions{Timeout: timeout(ctx)}))
}

func (e *element) SelectOption(ctx context.Context, label string) error {
	_, err := e.loc.SelectOption(
		playwright.SelectOptionValues{Labels: &[]string{label}},
		playwright.LocatorSelectOptionOptions{Timeout: timeout(ctx)},
	)
	return translate(err)
}

func (e *element) Visible(context.Context) (bool, error) {
	ok, err := e.loc.IsVisible()
	return ok, translate(err)
}

func (e *element) Key(ctx context.Context) (string, error) {
	v, err := e.loc.Evaluate(browser.NodeKeyFunc, nil, playwright.LocatorEvaluateOptions{Timeout: timeout(ctx)})
	if err != nil {
		return "", translate(err)
	}
	key, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("node key: unexpected %T", v)
	}
	return key, nil
}

func (e *element) Text(context.Context) (string, error) {
	s, err := e.loc.TextContent()
	return s, translate(err)
}

func waitUntil(state browser.LoadState) *playwright.WaitUntilState {
	switch state {
	case browser.DOMContentLoaded:
		return playwright.WaitUntilStateDomcontentloaded
	case browser.NetworkIdle:
		return playwright.WaitUntilStateNetworkidle
	default:
		return playwright.WaitUntilStateLoad
	}
}

// timeout converts the context deadline into Playwright milliseconds. Nil
// keeps the page default.
func timeout(ctx context.Context) *float64 {
	dl, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := time.Until(dl).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(float64(ms))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", browser.ErrTimeout, err)
	}
	return err
}
