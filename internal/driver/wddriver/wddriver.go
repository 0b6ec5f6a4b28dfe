// Package wddriver adapts a remote WebDriver session (tebeka/selenium) to
// browser.Driver.
package wddriver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/staticpress2019/e2e/internal/browser"
)

type Config struct {
	// RemoteURL is the WebDriver endpoint, e.g. http://localhost:4444/wd/hub.
	RemoteURL string
	// Browser is chrome or firefox.
	Browser  string
	Headless bool
	Args     []string
	// Username and Password are embedded in navigated URLs, the only way
	// WebDriver offers to answer a basic-auth challenge.
	Username     string
	Password     string
	PollInterval time.Duration
	// QuietWindow is how long the resource count must stay unchanged for
	// the page to count as network idle.
	QuietWindow time.Duration
}

type Driver struct {
	wd       selenium.WebDriver
	user     *url.Userinfo
	interval time.Duration
	quiet    time.Duration
}

var _ browser.Driver = (*Driver)(nil)

func Connect(cfg Config) (*Driver, error) {
	name := cfg.Browser
	if name == "" {
		name = "chrome"
	}
	args := append([]string(nil), cfg.Args...)
	caps := selenium.Capabilities{"browserName": name}
	switch name {
	case "firefox":
		if cfg.Headless {
			args = append(args, "-headless")
		}
		caps.AddFirefox(firefox.Capabilities{Args: args})
	default:
		if cfg.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
	}

	wd, err := selenium.NewRemote(caps, cfg.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("could not open webdriver session at %s: %w", cfg.RemoteURL, err)
	}
	d := &Driver{wd: wd, interval: cfg.PollInterval, quiet: cfg.QuietWindow}
	if cfg.Username != "" {
		d.user = url.UserPassword(cfg.Username, cfg.Password)
	}
	if d.interval <= 0 {
		d.interval = 100 * time.Millisecond
	}
	if d.quiet <= 0 {
		d.quiet = 500 * time.Millisecond
	}
	return d, nil
}

func (d *Driver) withCredentials(raw string) string {
	if d.user == nil {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return raw
	}
	u.User = d.user
	return u.String()
}

func (d *Driver) Navigate(ctx context.Context, rawURL string, state browser.LoadState) error {
	w, err := d.Expect(ctx, state)
	if err != nil {
		return err
	}
	defer w.Cancel()
	if err := d.wd.Get(d.withCredentials(rawURL)); err != nil {
		return err
	}
	return w.Wait(ctx)
}

func (d *Driver) Query(_ context.Context, loc browser.Locator) ([]browser.Element, error) {
	by := selenium.ByXPATH
	if loc.Strategy == browser.StrategyCSS {
		by = selenium.ByCSSSelector
	}
	found, err := d.wd.FindElements(by, loc.Query)
	if err != nil {
		return nil, err
	}
	els := make([]browser.Element, 0, len(found))
	for _, el := range found {
		els = append(els, &element{wd: d.wd, el: el})
	}
	return els, nil
}

const markScript = `window.__staticpressNavToken = arguments[0]; return null;`

const probeScript = `return [
  window.__staticpressNavToken === arguments[0],
  document.readyState,
  performance.getEntriesByType('resource').length
];`

// Expect marks the current document with a random token. The wait is over
// once a document without the token reaches the requested ready state.
func (d *Driver) Expect(_ context.Context, state browser.LoadState) (browser.Waiter, error) {
	token := uuid.NewString()
	if _, err := d.wd.ExecuteScript(markScript, []interface{}{token}); err != nil {
		return nil, fmt.Errorf("could not mark document: %w", err)
	}

	return browser.WaiterFunc{
		WaitFn: func(ctx context.Context) error {
			ticker := time.NewTicker(d.interval)
			defer ticker.Stop()
			lastCount, stableSince := -1, time.Time{}
			for {
				if done, count := d.probe(token, state); done {
					if state != browser.NetworkIdle {
						return nil
					}
					if count != lastCount {
						lastCount, stableSince = count, time.Now()
					} else if time.Since(stableSince) >= d.quiet {
						return nil
					}
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		},
	}, nil
}

// probe reports whether a new document has reached state. Script errors
// while the old document unloads count as not yet.
func (d *Driver) probe(token string, state browser.LoadState) (bool, int) {
	res, err := d.wd.ExecuteScript(probeScript, []interface{}{token})
	if err != nil {
		return false, 0
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return false, 0
	}
	if same, _ := vals[0].(bool); same {
		return false, 0
	}
	ready, _ := vals[1].(string)
	count := 0
	if f, ok := vals[2].(float64); ok {
		count = int(f)
	}
	switch state {
	case browser.DOMContentLoaded:
		return ready == "interactive" || ready == "complete", count
	default:
		return ready == "complete", count
	}
}

func (d *Driver) Screenshot(_ context.Context, path string) error {
	buf, err := d.wd.Screenshot()
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (d *Driver) URL(context.Context) (string, error) {
	return d.wd.CurrentURL()
}

func (d *Driver) Close() error {
	return d.wd.Quit()
}

type element struct {
	wd selenium.WebDriver
	el selenium.WebElement
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.el.Click()
}

// ClickCount clicks n times. WebDriver has no multi-click primitive and
// Fill clears the field anyway.
func (e *element) ClickCount(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := e.Click(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *element) Hover(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.el.MoveTo(0, 0)
}

func (e *element) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.el.Clear(); err != nil {
		return err
	}
	return e.el.SendKeys(text)
}

func (e *element) SelectOption(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opt, err := e.el.FindElement(selenium.ByXPATH,
		".//option[normalize-space(text())="+browser.EscapeXPathLiteral(label)+"]")
	if err != nil {
		return errors.Join(fmt.Errorf("no option labelled %q", label), err)
	}
	return opt.Click()
}

func (e *element) Visible(context.Context) (bool, error) {
	return e.el.IsDisplayed()
}

// Key tags the node from a script; the element reference is not exposed by
// the client library.
func (e *element) Key(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.wd.ExecuteScript("return ("+browser.NodeKeyFunc+")(arguments[0]);", []interface{}{e.el})
	if err != nil {
		return "", err
	}
	key, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("node key: unexpected %T", v)
	}
	return key, nil
}

func (e *element) Text(context.Context) (string, error) {
	return e.el.Text()
}
