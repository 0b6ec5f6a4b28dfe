// Package htmldriver implements browser.Driver over static HTML documents.
// It evaluates XPath with antchfx/htmlquery and CSS with goquery, follows
// links and form submissions between registered pages, and never touches a
// real browser. It backs the locate command and offline tests of the core.
package htmldriver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/staticpress2019/e2e/internal/browser"
)

// SubmitFunc handles a form submission and returns the URL to load next, or
// "" to stay on the current document.
type SubmitFunc func(action string, values url.Values) (string, error)

// ClickFunc intercepts clicks. Returning handled=false falls through to the
// default link and submit behaviour.
type ClickFunc func(d *Driver, n *html.Node) (handled bool, err error)

// Driver serves a fixed set of pages keyed by absolute URL.
type Driver struct {
	mu      sync.Mutex
	pages   map[string]string
	doc     *html.Node
	url     string
	waiters map[*waiter]struct{}
	actions []string
	// keys names the nodes of the current document; seq never restarts so a
	// replaced document cannot reuse a key.
	keys map[*html.Node]string
	seq  uint64

	// OnSubmit is invoked when a submit control inside a form is clicked.
	OnSubmit SubmitFunc
	// OnClick is invoked before the default click behaviour.
	OnClick ClickFunc
}

var _ browser.Driver = (*Driver)(nil)

// New returns a driver serving pages.
func New(pages map[string]string) *Driver {
	if pages == nil {
		pages = map[string]string{}
	}
	return &Driver{pages: pages, waiters: map[*waiter]struct{}{}}
}

// FromFile returns a driver with the HTML file at path already loaded.
func FromFile(path string) (*Driver, error) {
	markup, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	u := (&url.URL{Scheme: "file", Path: path}).String()
	d := New(map[string]string{u: string(markup)})
	if err := d.load(u); err != nil {
		return nil, err
	}
	return d, nil
}

// AddPage registers markup under rawURL.
func (d *Driver) AddPage(rawURL, markup string) {
	d.mu.Lock()
	d.pages[rawURL] = markup
	d.mu.Unlock()
}

// SetContent replaces the current document in place without firing load
// events, like an XHR-driven DOM update.
func (d *Driver) SetContent(markup string) error {
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	d.mu.Lock()
	d.doc = doc
	d.keys = nil
	d.mu.Unlock()
	return nil
}

// Actions returns the interactions performed so far.
func (d *Driver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

func (d *Driver) record(format string, args ...any) {
	d.mu.Lock()
	d.actions = append(d.actions, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *Driver) Navigate(ctx context.Context, rawURL string, _ browser.LoadState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.record("navigate %s", rawURL)
	return d.load(rawURL)
}

// load parses the page registered under rawURL and releases every armed
// waiter; a static document reaches all load states at once.
func (d *Driver) load(rawURL string) error {
	d.mu.Lock()
	markup, ok := d.pages[rawURL]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("no page registered for %s", rawURL)
	}
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}

	d.mu.Lock()
	d.doc = doc
	d.keys = nil
	d.url = rawURL
	waiters := d.waiters
	d.waiters = map[*waiter]struct{}{}
	d.mu.Unlock()

	for w := range waiters {
		w.release()
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	doc := d.doc
	if doc == nil {
		return nil, nil
	}

	var nodes []*html.Node
	switch loc.Strategy {
	case browser.StrategyXPath:
		found, err := htmlquery.QueryAll(doc, loc.Query)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", loc, err)
		}
		nodes = found
	default:
		nodes = goquery.NewDocumentFromNode(doc).Find(loc.Query).Nodes
	}

	els := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &element{d: d, n: n})
	}
	return els, nil
}

func (d *Driver) Expect(_ context.Context, state browser.LoadState) (browser.Waiter, error) {
	w := &waiter{state: state, done: make(chan struct{})}
	d.mu.Lock()
	d.waiters[w] = struct{}{}
	d.mu.Unlock()
	return browser.WaiterFunc{
		WaitFn: w.wait,
		CancelFn: func() {
			d.mu.Lock()
			delete(d.waiters, w)
			d.mu.Unlock()
		},
	}, nil
}

// Screenshot writes the serialized current document, the closest thing a
// static page has to a picture.
func (d *Driver) Screenshot(_ context.Context, path string) error {
	d.mu.Lock()
	doc := d.doc
	d.mu.Unlock()
	if doc == nil {
		return fmt.Errorf("no document loaded")
	}
	return os.WriteFile(path, []byte(htmlquery.OutputHTML(doc, true)), 0o644)
}

func (d *Driver) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Driver) Close() error { return nil }

func (d *Driver) nodeKey(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if k, ok := d.keys[n]; ok {
		return k
	}
	if d.keys == nil {
		d.keys = map[*html.Node]string{}
	}
	d.seq++
	k := "n" + strconv.FormatUint(d.seq, 10)
	d.keys[n] = k
	return k
}

func (d *Driver) resolve(ref string) string {
	d.mu.Lock()
	current := d.url
	d.mu.Unlock()
	base, err := url.Parse(current)
	if err != nil {
		return ref
	}
	target, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(target).String()
}

type waiter struct {
	state browser.LoadState
	once  sync.Once
	done  chan struct{}
}

func (w *waiter) release() { w.once.Do(func() { close(w.done) }) }

func (w *waiter) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
