// Package cdpdriver adapts chromedp to browser.Driver.
package cdpdriver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/staticpress2019/e2e/internal/browser"
)

type Config struct {
	Headless bool
	ExecPath string
	// RemoteURL attaches to an already running Chrome DevTools endpoint
	// instead of starting a browser.
	RemoteURL      string
	WindowWidth    int
	WindowHeight   int
	NoSandbox      bool
	Username       string
	Password       string
	ScreenshotQual int
}

type Driver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	quality     int
}

var _ browser.Driver = (*Driver)(nil)

// Launch starts (or attaches to) Chrome and enables the page lifecycle
// events used for network-idle detection.
func Launch(ctx context.Context, cfg Config) (*Driver, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
			opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	bctx, cancel := chromedp.NewContext(allocCtx)

	d := &Driver{ctx: bctx, cancel: cancel, allocCancel: allocCancel, quality: cfg.ScreenshotQual}
	if d.quality <= 0 {
		d.quality = 90
	}

	tasks := chromedp.Tasks{page.Enable(), page.SetLifecycleEventsEnabled(true)}
	if cfg.Username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + token}),
		)
	}
	rctx, done := d.scope(ctx)
	defer done()
	if err := chromedp.Run(rctx, tasks); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("could not start chrome: %w", err)
	}
	return d, nil
}

// scope derives a per-call context from the browser context, carrying the
// caller's deadline and cancellation. Cancelling it aborts the call only.
func (d *Driver) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(d.ctx)
	if dl, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, dl)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() { stop(); cancel() }
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, done := d.scope(ctx)
	defer done()
	return chromedp.Run(rctx, actions...)
}

func (d *Driver) Navigate(ctx context.Context, url string, state browser.LoadState) error {
	w, err := d.Expect(ctx, state)
	if err != nil {
		return err
	}
	defer w.Cancel()
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	return w.Wait(ctx)
}

func (d *Driver) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	var nodes []*cdp.Node
	by := chromedp.BySearch
	if loc.Strategy == browser.StrategyCSS {
		by = chromedp.ByQueryAll
	}
	if err := d.run(ctx, chromedp.Nodes(loc.Query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	els := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &element{d: d, node: n})
	}
	return els, nil
}

// Expect listens on the target for the matching page event. Network idle
// arrives as a lifecycle event named "networkIdle".
func (d *Driver) Expect(_ context.Context, state browser.LoadState) (browser.Waiter, error) {
	fired := make(chan struct{})
	var once sync.Once
	lctx, cancel := context.WithCancel(d.ctx)

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		hit := false
		switch e := ev.(type) {
		case *page.EventDomContentEventFired:
			hit = state == browser.DOMContentLoaded
		case *page.EventLoadEventFired:
			hit = state == browser.Load
		case *page.EventLifecycleEvent:
			hit = state == browser.NetworkIdle && e.Name == "networkIdle"
		}
		if hit {
			once.Do(func() { close(fired) })
		}
	})

	return browser.WaiterFunc{
		WaitFn: func(ctx context.Context) error {
			defer cancel()
			select {
			case <-fired:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		CancelFn: cancel,
	}, nil
}

func (d *Driver) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := d.run(ctx, chromedp.FullScreenshot(&buf, d.quality)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *Driver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

type element struct {
	d    *Driver
	node *cdp.Node
}

func (e *element) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

func (e *element) Click(ctx context.Context) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) ClickCount(ctx context.Context, n int) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node, chromedp.ClickCount(n)))
}

func (e *element) Hover(ctx context.Context) error {
	return e.d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx); err != nil {
			return err
		}
		box, err := dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(box.Content) < 8 {
			return errors.New("element has no box")
		}
		x := (box.Content[0] + box.Content[2] + box.Content[4] + box.Content[6]) / 4
		y := (box.Content[1] + box.Content[3] + box.Content[5] + box.Content[7]) / 4
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

func (e *element) Fill(ctx context.Context, text string) error {
	return e.d.run(ctx,
		chromedp.SetValue(e.ids(), "", chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID),
	)
}

const selectScript = `for (const o of el.options) {
  if (o.label.trim() === arg || o.text.trim() === arg) {
    el.value = o.value;
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return true;
  }
}
return false;`

func (e *element) SelectOption(ctx context.Context, label string) error {
	var ok bool
	if err := e.eval(ctx, selectScript, label, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no option labelled %q", label)
	}
	return nil
}

const visibleScript = `if (!el) return false;
const style = window.getComputedStyle(el);
if (style.display === 'none' || style.visibility === 'hidden') return false;
return el.getClientRects().length > 0;`

func (e *element) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.eval(ctx, visibleScript, nil, &ok)
	return ok, err
}

// Key prefers the backend id, which survives the node being re-pushed to the
// client under a new NodeID.
func (e *element) Key(context.Context) (string, error) {
	if e.node.BackendNodeID != 0 {
		return fmt.Sprintf("b%d", e.node.BackendNodeID), nil
	}
	return fmt.Sprintf("n%d", e.node.NodeID), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.d.run(ctx, chromedp.TextContent(e.ids(), &s, chromedp.ByNodeID))
	return s, err
}

// eval runs body as a function of (el, arg), where el is this node
// re-resolved through its full XPath.
func (e *element) eval(ctx context.Context, body string, arg any, res any) error {
	xp, err := json.Marshal(e.node.FullXPath())
	if err != nil {
		return err
	}
	a, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("(function(el, arg) {\n")
	b.WriteString(body)
	b.WriteString("\n})(document.evaluate(")
	b.Write(xp)
	b.WriteString(", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue, ")
	b.Write(a)
	b.WriteString(")")
	return e.d.run(ctx, chromedp.Evaluate(b.String(), res))
}
