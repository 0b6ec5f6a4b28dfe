// Package roddriver adapts go-rod to browser.Driver.
package roddriver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/staticpress2019/e2e/internal/browser"
)

type Config struct {
	Headless       bool
	Bin            string
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int
	Username       string
	Password       string
	// IdleWindow is how long the network must stay quiet to count as idle.
	IdleWindow time.Duration
}

type Driver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	idle     time.Duration
}

var _ browser.Driver = (*Driver)(nil)

func Launch(ctx context.Context, cfg Config) (*Driver, error) {
	l := launcher.New().Context(ctx).Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	d := &Driver{launcher: l, idle: cfg.IdleWindow}
	if d.idle <= 0 {
		d.idle = 500 * time.Millisecond
	}
	d.browser = rod.New().ControlURL(u)
	if err := d.browser.Connect(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not connect to browser: %w", err)
	}
	d.page, err = d.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		err = d.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	if cfg.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		if _, err := d.page.SetExtraHeaders([]string{"Authorization", "Basic " + token}); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) Navigate(ctx context.Context, url string, state browser.LoadState) error {
	w, err := d.Expect(ctx, state)
	if err != nil {
		return err
	}
	defer w.Cancel()
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return err
	}
	return w.Wait(ctx)
}

func (d *Driver) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	p := d.page.Context(ctx)
	var (
		found rod.Elements
		err   error
	)
	if loc.Strategy == browser.StrategyCSS {
		found, err = p.Elements(loc.Query)
	} else {
		found, err = p.ElementsX(loc.Query)
	}
	if err != nil {
		return nil, err
	}
	els := make([]browser.Element, 0, len(found))
	for _, el := range found {
		els = append(els, &element{el: el})
	}
	return els, nil
}

// Expect arms rod's lifecycle wait. The returned wait func blocks without
// reporting errors, so it runs in a goroutine bound to its own context.
func (d *Driver) Expect(_ context.Context, state browser.LoadState) (browser.Waiter, error) {
	armCtx, cancel := context.WithCancel(context.Background())
	p := d.page.Context(armCtx)

	var wait func()
	switch state {
	case browser.DOMContentLoaded:
		wait = p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	case browser.NetworkIdle:
		nav := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
		wait = func() {
			nav()
			p.WaitRequestIdle(d.idle, nil, nil, nil)()
		}
	default:
		wait = p.WaitNavigation(proto.PageLifecycleEventNameLoad)
	}

	return browser.WaiterFunc{
		WaitFn: func(ctx context.Context) error {
			defer cancel()
			done := make(chan struct{})
			go func() {
				wait()
				close(done)
			}()
			select {
			case <-done:
				return armCtx.Err()
			case <-ctx.Done():
				cancel()
				return ctx.Err()
			}
		},
		CancelFn: cancel,
	}, nil
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	buf, err := d.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *Driver) Close() error {
	var errs []error
	if d.browser != nil {
		errs = append(errs, d.browser.Close())
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	return errors.Join(errs...)
}

type element struct {
	el *rod.Element
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) ClickCount(ctx context.Context, n int) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, n)
}

func (e *element) Hover(ctx context.Context) error {
	return e.el.Context(ctx).Hover()
}

func (e *element) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func (e *element) SelectOption(ctx context.Context, label string) error {
	return e.el.Context(ctx).Select([]string{label}, true, rod.SelectorTypeText)
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *element) Key(ctx context.Context) (string, error) {
	node, err := e.el.Context(ctx).Describe(0, false)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("b%d", node.BackendNodeID), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
