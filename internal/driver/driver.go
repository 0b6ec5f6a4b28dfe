// Package driver opens a browser.Driver by name.
package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/driver/cdpdriver"
	"github.com/staticpress2019/e2e/internal/driver/htmldriver"
	"github.com/staticpress2019/e2e/internal/driver/pwdriver"
	"github.com/staticpress2019/e2e/internal/driver/roddriver"
	"github.com/staticpress2019/e2e/internal/driver/wddriver"
)

const (
	Playwright = "playwright"
	Chromedp   = "chromedp"
	Rod        = "rod"
	WebDriver  = "webdriver"
	// Static serves saved HTML pages without a browser.
	Static = "static"
)

// Config is the union of what the adapters need. Fields an adapter has no
// use for are ignored.
type Config struct {
	Name           string
	Browser        string
	Headless       bool
	SlowMo         time.Duration
	ExecPath       string
	RemoteURL      string
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	VideoDir       string
	SkipInstall    bool
	NoSandbox      bool
	Username       string
	Password       string
	DefaultTimeout time.Duration
	// Pages backs the static driver, keyed by absolute URL.
	Pages map[string]string
}

var openers = map[string]func(context.Context, Config) (browser.Driver, error){
	Playwright: func(_ context.Context, c Config) (browser.Driver, error) {
		return pwdriver.Launch(pwdriver.Config{
			Browser:        c.Browser,
			Headless:       c.Headless,
			SlowMo:         c.SlowMo,
			Args:           c.Args,
			ViewportWidth:  c.ViewportWidth,
			ViewportHeight: c.ViewportHeight,
			VideoDir:       c.VideoDir,
			Username:       c.Username,
			Password:       c.Password,
			SkipInstall:    c.SkipInstall,
			DefaultTimeout: c.DefaultTimeout,
		})
	},
	Chromedp: func(ctx context.Context, c Config) (browser.Driver, error) {
		return cdpdriver.Launch(ctx, cdpdriver.Config{
			Headless:     c.Headless,
			ExecPath:     c.ExecPath,
			RemoteURL:    c.RemoteURL,
			WindowWidth:  c.ViewportWidth,
			WindowHeight: c.ViewportHeight,
			NoSandbox:    c.NoSandbox,
			Username:     c.Username,
			Password:     c.Password,
		})
	},
	Rod: func(ctx context.Context, c Config) (browser.Driver, error) {
		return roddriver.Launch(ctx, roddriver.Config{
			Headless:       c.Headless,
			Bin:            c.ExecPath,
			NoSandbox:      c.NoSandbox,
			ViewportWidth:  c.ViewportWidth,
			ViewportHeight: c.ViewportHeight,
			Username:       c.Username,
			Password:       c.Password,
		})
	},
	WebDriver: func(_ context.Context, c Config) (browser.Driver, error) {
		if c.RemoteURL == "" {
			return nil, fmt.Errorf("%s driver needs a remote url", WebDriver)
		}
		return wddriver.Connect(wddriver.Config{
			RemoteURL: c.RemoteURL,
			Browser:   c.Browser,
			Headless:  c.Headless,
			Args:      c.Args,
			Username:  c.Username,
			Password:  c.Password,
		})
	},
	Static: func(_ context.Context, c Config) (browser.Driver, error) {
		return htmldriver.New(c.Pages), nil
	},
}

// Open starts the driver named by cfg.Name.
func Open(ctx context.Context, cfg Config) (browser.Driver, error) {
	open, ok := openers[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (want one of %v)", cfg.Name, Names())
	}
	d, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s driver: %w", cfg.Name, err)
	}
	return d, nil
}

// Names lists the known driver names.
func Names() []string {
	names := make([]string, 0, len(openers))
	for n := range openers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a driver Open understands.
func Known(name string) bool {
	_, ok := openers[name]
	return ok
}
