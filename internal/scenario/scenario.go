// Package scenario drives the StaticPress2019 end-to-end run: install or log
// in to WordPress, reset the option rows, submit the options form, check the
// stored values and rebuild the static site.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/config"
	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/fixtures"
	"github.com/staticpress2019/e2e/internal/metrics"
	"github.com/staticpress2019/e2e/internal/pages"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

const (
	StepPreflight        = "preflight"
	StepBootstrap        = "bootstrap"
	StepResetFixtures    = "reset_fixtures"
	StepConfigureOptions = "configure_options"
	StepVerifyOptions    = "verify_options"
	StepRebuild          = "rebuild"
)

// Menu labels of the plugin screens.
const (
	menuStaticPress = "StaticPress2019"
	subMenuRebuild  = "StaticPress2019"
	subMenuOptions  = "StaticPress2019 Options"
	pluginsMenu     = "Plugins"
)

const (
	screenshotTimeout   = 10 * time.Second
	defaultProbeTimeout = 10 * time.Second
)

// Steps lists every step of a full run in order.
func Steps() []string {
	return []string{
		StepPreflight,
		StepBootstrap,
		StepResetFixtures,
		StepConfigureOptions,
		StepVerifyOptions,
		StepRebuild,
	}
}

// Launcher starts a browser session. The returned func shuts it down.
type Launcher func(ctx context.Context) (*browser.Session, func() error, error)

// Deps are the collaborators of a Scenario. Open is required, and so is
// either Session or Launch.
type Deps struct {
	Session *browser.Session
	// Launch starts the browser on the first step that needs one.
	Launch  Launcher
	Open    database.Opener
	Logger  logrus.FieldLogger
	Metrics *metrics.Recorder
	// Probe defaults to an HTTP probe of the site with its basic auth.
	Probe Prober
	// RunID defaults to a random UUID.
	RunID string
}

// Scenario runs the steps against one browser session.
type Scenario struct {
	cfg     *config.Config
	session *browser.Session
	launch  Launcher
	closer  func() error
	open    database.Opener
	log     logrus.FieldLogger
	metrics *metrics.Recorder
	probe   Prober
	runID   string

	admin   *pages.Admin
	login   *pages.Login
	results []string
}

func New(cfg *config.Config, deps Deps) (*Scenario, error) {
	if deps.Session == nil && deps.Launch == nil {
		return nil, errors.New("scenario needs a browser session or launcher")
	}
	if deps.Open == nil {
		return nil, errors.New("scenario needs a database opener")
	}
	s := &Scenario{
		cfg:     cfg,
		launch:  deps.Launch,
		open:    deps.Open,
		metrics: deps.Metrics,
		probe:   deps.Probe,
		runID:   deps.RunID,
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.probe == nil {
		s.probe = HTTPProber(nil, cfg.Site.BasicAuth.User, cfg.Site.BasicAuth.Password)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s.log = logger.WithFields(logrus.Fields{
		"run_id": s.runID,
		"driver": cfg.Browser.Driver,
	})
	if deps.Session != nil {
		s.attach(deps.Session)
	}
	return s, nil
}

func (s *Scenario) attach(session *browser.Session) {
	s.session = session
	s.admin = pages.NewAdmin(session)
	s.login = pages.NewLogin(session)
	session.Observe(func(ev browser.StepEvent) {
		entry := s.log.WithFields(logrus.Fields{
			"action":  ev.Step,
			"state":   ev.To.String(),
			"elapsed": ev.Elapsed,
		})
		if ev.Err != nil {
			entry.WithError(ev.Err).Debug("transition")
			return
		}
		entry.Debug("transition")
	})
}

// ensureBrowser launches the session on first use.
func (s *Scenario) ensureBrowser(ctx context.Context) error {
	if s.session != nil {
		return nil
	}
	s.log.Info("launching browser")
	session, closer, err := s.launch(ctx)
	if err != nil {
		return err
	}
	s.closer = closer
	s.attach(session)
	return nil
}

// Close shuts down a browser the scenario launched itself.
func (s *Scenario) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}

// RunID identifies the run in logs and in the artifact directory name.
func (s *Scenario) RunID() string { return s.runID }

// ArtifactDir is where the run writes screenshots and videos.
func (s *Scenario) ArtifactDir() string { return ArtifactDir(s.cfg, s.runID) }

// ArtifactDir is the per-run directory under the configured artifacts dir.
func ArtifactDir(cfg *config.Config, runID string) string {
	return filepath.Join(cfg.Artifacts.Dir, runID)
}

// Preflight checks that the site answers before any browser work starts.
func (s *Scenario) Preflight(ctx context.Context) error {
	timeout := s.cfg.Timeouts.Preflight
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.probe(ctx, s.cfg.Site.URL)
}

// Bootstrap brings the site to a logged-in admin session. A fresh install is
// completed first: language, install form, then plugin activation.
func (s *Scenario) Bootstrap(ctx context.Context) error {
	if err := s.ensureBrowser(ctx); err != nil {
		return err
	}
	site := s.cfg.Site
	if err := s.session.Navigate(ctx, site.URL, browser.Load); err != nil {
		return err
	}

	chooser := pages.NewLanguageChooser(s.session)
	shown, err := chooser.IsDisplayedNow(ctx)
	if err != nil {
		return err
	}
	if shown {
		s.log.WithField("language", site.Language).Info("choosing language")
		if err := chooser.Choose(ctx, site.Language); err != nil {
			return err
		}
	}

	welcome := pages.NewWelcome(s.session)
	if shown, err = welcome.IsDisplayedNow(ctx); err != nil {
		return err
	}
	if !shown {
		return s.ensureLoggedIn(ctx)
	}

	s.log.WithField("title", site.Title).Info("installing WordPress")
	if err := welcome.Install(ctx, site.Title, site.AdminUser, site.AdminPassword, site.AdminEmail); err != nil {
		return err
	}
	if err := s.session.ClickByText(ctx, "a", "Log In", browser.WaitFor(browser.NetworkIdle)); err != nil {
		return err
	}
	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}
	if err := s.admin.ClickMenu(ctx, pluginsMenu); err != nil {
		return err
	}
	s.log.WithField("plugin", site.Plugin).Info("activating plugin")
	return pages.NewPlugins(s.session).ActivatePlugin(ctx, site.Plugin)
}

// ensureLoggedIn opens wp-admin and logs in if WordPress asks for it.
func (s *Scenario) ensureLoggedIn(ctx context.Context) error {
	if err := s.session.Navigate(ctx, s.cfg.AdminURL(), browser.NetworkIdle); err != nil {
		return err
	}
	shown, err := s.login.IsDisplayedNow(ctx)
	if err != nil || !shown {
		return err
	}
	return s.login.Login(ctx, s.cfg.Site.AdminUser, s.cfg.Site.AdminPassword)
}

// ResetFixtures deletes the managed option rows and loads the fixtures.
func (s *Scenario) ResetFixtures(ctx context.Context) error {
	n, err := fixtures.NewCleaner(s.open, s.cfg.OptionsTable, s.log).Clean(ctx)
	if err != nil {
		return err
	}
	docs, err := fixtures.NewLoader(s.open, s.cfg.OptionsTable, s.log).LoadPath(ctx, s.cfg.Fixtures.Path)
	if err != nil {
		return err
	}
	rows := 0
	for _, d := range docs {
		rows += len(d.Items)
	}
	s.log.WithFields(logrus.Fields{"deleted": n, "loaded": rows}).Info("fixtures reset")
	return nil
}

// ConfigureOptions submits the StaticPress2019 options form.
func (s *Scenario) ConfigureOptions(ctx context.Context) error {
	if err := s.ensureBrowser(ctx); err != nil {
		return err
	}
	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}
	if err := s.admin.OpenSubMenu(ctx, menuStaticPress, subMenuOptions); err != nil {
		return err
	}
	sp := s.cfg.StaticPress
	return pages.NewStaticPressOptions(s.session).SetOptions(ctx, pages.Options{
		StaticURL:     sp.StaticURL,
		StaticDir:     sp.StaticDir,
		BasicUser:     sp.BasicUser,
		BasicPassword: sp.BasicPassword,
		Timeout:       sp.Timeout,
	})
}

// VerifyOptions checks the stored option rows against the submitted form.
func (s *Scenario) VerifyOptions(ctx context.Context) error {
	return database.WithConnection(ctx, s.open, func(ctx context.Context, db *sqlx.DB) error {
		store, err := wpoptions.NewStore(db, s.cfg.OptionsTable)
		if err != nil {
			return err
		}
		return store.Verify(ctx, s.cfg.ExpectedOptions())
	})
}

// Rebuild starts a rebuild and returns the reported files. The front page
// of the static URL must be among them.
func (s *Scenario) Rebuild(ctx context.Context) ([]string, error) {
	expected, err := s.cfg.ExpectedResultPath()
	if err != nil {
		return nil, err
	}
	if err := s.ensureBrowser(ctx); err != nil {
		return nil, err
	}
	if err := s.admin.OpenSubMenu(ctx, menuStaticPress, subMenuRebuild); err != nil {
		return nil, err
	}
	sp := pages.NewStaticPress(s.session, s.cfg.Timeouts.Rebuild)
	s.log.WithField("expected", expected).Info("rebuilding static site")
	if err := sp.Rebuild(ctx, expected); err != nil {
		return nil, err
	}
	return sp.Results(ctx)
}

func (s *Scenario) stepFunc(name string) (func(context.Context) error, bool) {
	switch name {
	case StepPreflight:
		return s.Preflight, true
	case StepBootstrap:
		return s.Bootstrap, true
	case StepResetFixtures:
		return s.ResetFixtures, true
	case StepConfigureOptions:
		return s.ConfigureOptions, true
	case StepVerifyOptions:
		return s.VerifyOptions, true
	case StepRebuild:
		return func(ctx context.Context) error {
			results, err := s.Rebuild(ctx)
			s.results = results
			return err
		}, true
	}
	return nil, false
}

// Run executes every step in order.
func (s *Scenario) Run(ctx context.Context) (*Report, error) {
	return s.RunSteps(ctx, Steps()...)
}

// RunSteps executes the named steps in order and stops at the first
// failure. The report is returned even when a step fails.
func (s *Scenario) RunSteps(ctx context.Context, steps ...string) (*Report, error) {
	report := &Report{RunID: s.runID, ArtifactDir: s.ArtifactDir()}
	s.results = nil
	started := time.Now()
	s.log.WithField("steps", steps).Info("run started")

	var runErr error
	for _, name := range steps {
		fn, ok := s.stepFunc(name)
		if !ok {
			runErr = fmt.Errorf("unknown step %q", name)
			break
		}
		res := s.step(ctx, name, fn)
		report.Steps = append(report.Steps, res)
		if res.Err != nil {
			runErr = fmt.Errorf("%s: %w", name, res.Err)
			break
		}
	}
	report.Results = s.results

	finished := time.Now()
	if s.metrics != nil {
		s.metrics.ObserveRun(runErr == nil, finished)
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			s.log.WithError(err).Warn("could not write metrics textfile")
		}
	}
	entry := s.log.WithField("elapsed", finished.Sub(started))
	if runErr != nil {
		entry.WithError(runErr).Error("run failed")
	} else {
		entry.WithField("results", len(report.Results)).Info("run passed")
	}
	return report, runErr
}

func (s *Scenario) step(ctx context.Context, name string, fn func(context.Context) error) StepResult {
	log := s.log.WithField("step", name)
	log.Info("step started")
	start := time.Now()
	err := fn(ctx)
	res := StepResult{Name: name, Duration: time.Since(start), Err: err}
	kind := FailureKind(err)
	if s.metrics != nil {
		s.metrics.ObserveStep(name, res.Duration, kind)
	}
	if err == nil {
		log.WithField("elapsed", res.Duration).Info("step finished")
		return res
	}
	if s.session != nil && name != StepPreflight && name != StepResetFixtures && name != StepVerifyOptions {
		res.Screenshot = s.screenshot(ctx, name, log)
	}
	log.WithFields(logrus.Fields{
		"elapsed":    res.Duration,
		"kind":       kind,
		"screenshot": res.Screenshot,
	}).WithError(err).Error("step failed")
	return res
}

// screenshot saves the current page into the artifact directory. The step
// context may already be spent, so the capture gets its own deadline.
func (s *Scenario) screenshot(ctx context.Context, name string, log logrus.FieldLogger) string {
	if !s.cfg.Artifacts.Screenshots {
		return ""
	}
	dir := s.ArtifactDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Warn("could not create artifact directory")
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", name, time.Now().Unix()))
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()
	if err := s.session.Screenshot(sctx, path); err != nil {
		log.WithError(err).Warn("could not take screenshot")
		return ""
	}
	return path
}

// FailureKind classifies err for metrics and logs. nil yields "". A settle
// timeout wraps the not-found error of its Appears condition, so it is
// checked first.
func FailureKind(err error) string {
	var mismatch *wpoptions.MismatchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, browser.ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, browser.ErrActionFailed):
		return "action_failed"
	case errors.Is(err, browser.ErrElementNotFound):
		return "element_not_found"
	case errors.As(err, &mismatch):
		return "options_mismatch"
	case errors.Is(err, ErrSiteUnreachable):
		return "unreachable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
