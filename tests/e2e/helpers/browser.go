// Package helpers sets up the live end-to-end suite: configuration, a
// reachability check and a browser session that screenshots on failure.
package helpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/config"
	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/driver"
	"github.com/staticpress2019/e2e/internal/logging"
	"github.com/staticpress2019/e2e/internal/scenario"
)

// BrowserHelper owns the driver and the scenario of one test.
type BrowserHelper struct {
	Config   *config.Config
	Session  *browser.Session
	Scenario *scenario.Scenario
	Log      *logrus.Logger

	driver browser.Driver
	t      *testing.T
}

// NewBrowserHelper loads the configuration the same way the CLI does. The
// test is skipped when the site does not answer.
func NewBrowserHelper(t *testing.T) *BrowserHelper {
	t.Helper()
	cfg, err := config.Load(config.Options{EnvFile: envFile()})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Preflight)
	defer cancel()
	probe := scenario.HTTPProber(nil, cfg.Site.BasicAuth.User, cfg.Site.BasicAuth.Password)
	if err := probe(ctx, cfg.Site.URL); err != nil {
		t.Skipf("[e2e] %v", err)
	}
	return &BrowserHelper{Config: cfg, t: t}
}

// envFile looks for .env next to the test and at the module root.
func envFile() string {
	for _, p := range []string{".env", filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Setup opens the configured driver and builds the scenario on it.
func (b *BrowserHelper) Setup() error {
	log, err := logging.New(b.Config.Logging.Level, b.Config.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	b.Log = log

	videoDir := ""
	if b.Config.Artifacts.Videos {
		videoDir = filepath.Join(b.Config.Artifacts.Dir, "videos")
	}
	d, err := driver.Open(context.Background(), b.Config.DriverConfig(videoDir))
	if err != nil {
		return fmt.Errorf("could not launch browser: %w", err)
	}
	b.driver = d
	b.Session = browser.NewSession(d, browser.Options{
		FindTimeout:   b.Config.Timeouts.Find,
		SettleTimeout: b.Config.Timeouts.Settle,
		PollInterval:  b.Config.Timeouts.Poll,
	})
	b.Scenario, err = scenario.New(b.Config, scenario.Deps{
		Session: b.Session,
		Open:    database.MySQL(b.Config.Database),
		Logger:  log,
	})
	return err
}

// TearDown screenshots a failed test and closes the browser.
func (b *BrowserHelper) TearDown() {
	if b.driver == nil {
		return
	}
	if b.t.Failed() && b.Config.Artifacts.Screenshots {
		dir := filepath.Join(b.Config.Artifacts.Dir, "screenshots")
		if err := os.MkdirAll(dir, 0o755); err == nil {
			name := filepath.Join(dir, fmt.Sprintf("%s_%d.png", filepath.Base(b.t.Name()), time.Now().Unix()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := b.Session.Screenshot(ctx, name); err != nil {
				b.t.Logf("[e2e] screenshot failed: %v", err)
			}
			cancel()
		}
	}
	if err := b.driver.Close(); err != nil {
		b.t.Logf("[e2e] close browser: %v", err)
	}
}
