package scenario

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/config"
	"github.com/staticpress2019/e2e/internal/driver"
	"github.com/staticpress2019/e2e/internal/metrics"
	"github.com/staticpress2019/e2e/internal/testutil"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Site: config.SiteConfig{
			URL:           testutil.SiteURL,
			BasicAuth:     config.BasicAuthConfig{User: "authuser", Password: "authpassword"},
			Title:         "test_title",
			AdminUser:     "test_user",
			AdminPassword: "-JfG+L.3-s!A6YmhsKGkGERc+hq&XswU",
			AdminEmail:    "test@gmail.com",
			Language:      "English (United States)",
			Plugin:        "StaticPress2019",
		},
		Browser: config.BrowserConfig{Driver: driver.Static},
		Timeouts: config.TimeoutConfig{
			Find:      200 * time.Millisecond,
			Settle:    time.Second,
			Rebuild:   time.Second,
			Poll:      5 * time.Millisecond,
			Preflight: time.Second,
		},
		OptionsTable: wpoptions.DefaultSchema(),
		StaticPress: config.StaticPressConfig{
			StaticURL:     "http://example.com/sub/",
			StaticDir:     "/tmp/static/",
			BasicUser:     "authuser",
			BasicPassword: "authpassword",
			Timeout:       "10",
		},
		Artifacts: config.ArtifactsConfig{Dir: t.TempDir(), Screenshots: true},
	}
}

// mockDatabase hands out a fresh sqlmock connection per open, each primed by
// the next setup func.
type mockDatabase struct {
	t      *testing.T
	setups []func(sqlmock.Sqlmock)
	mocks  []sqlmock.Sqlmock
}

func (m *mockDatabase) open(context.Context) (*sqlx.DB, error) {
	if len(m.mocks) >= len(m.setups) {
		return nil, errors.New("unexpected connection")
	}
	db, mock, err := sqlmock.New()
	require.NoError(m.t, err)
	m.setups[len(m.mocks)](mock)
	m.mocks = append(m.mocks, mock)
	return sqlx.NewDb(db, "mysql"), nil
}

func (m *mockDatabase) verify() {
	require.Len(m.t, m.mocks, len(m.setups), "connections opened")
	for _, mock := range m.mocks {
		assert.NoError(m.t, mock.ExpectationsWereMet())
	}
}

func expectClean(mock sqlmock.Sqlmock) {
	mock.ExpectExec("DELETE FROM wp_options WHERE option_name IN").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectClose()
}

func expectLoad(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO wp_options").WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	mock.ExpectCommit()
	mock.ExpectClose()
}

func expectStored(timeout string) func(sqlmock.Sqlmock) {
	return func(mock sqlmock.Sqlmock) {
		rows := sqlmock.NewRows([]string{"option_id", "option_name", "option_value", "autoload"}).
			AddRow(1, wpoptions.KeyStaticURL, "http://example.com/sub/", "yes").
			AddRow(2, wpoptions.KeyStaticDir, "/tmp/static/", "yes").
			AddRow(3, wpoptions.KeyTimeout, timeout, "yes")
		mock.ExpectQuery("FROM wp_options WHERE option_name IN").WillReturnRows(rows)
		mock.ExpectClose()
	}
}

func quietLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

type fixture struct {
	cfg     *config.Config
	wp      *testutil.FakeWordPress
	db      *mockDatabase
	hook    *logtest.Hook
	metrics *metrics.Recorder
	probed  []string
	sc      *Scenario
}

func newFixture(t *testing.T, setups []func(sqlmock.Sqlmock), opts ...testutil.Option) *fixture {
	t.Helper()
	f := &fixture{
		cfg:     testConfig(t),
		wp:      testutil.NewFakeWordPress(opts...),
		db:      &mockDatabase{t: t, setups: setups},
		metrics: metrics.New(driver.Static),
	}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f.hook = hook

	session := browser.NewSession(f.wp.Driver, browser.Options{
		FindTimeout:   f.cfg.Timeouts.Find,
		SettleTimeout: f.cfg.Timeouts.Settle,
		PollInterval:  f.cfg.Timeouts.Poll,
	})
	sc, err := New(f.cfg, Deps{
		Session: session,
		Open:    f.db.open,
		Logger:  logger,
		Metrics: f.metrics,
		Probe: func(_ context.Context, siteURL string) error {
			f.probed = append(f.probed, siteURL)
			return nil
		},
	})
	require.NoError(t, err)
	f.sc = sc
	return f
}

func TestRunFreshInstall(t *testing.T) {
	f := newFixture(t, []func(sqlmock.Sqlmock){expectClean, expectLoad, expectStored("10")})

	report, err := f.sc.Run(context.Background())
	require.NoError(t, err)
	f.db.verify()

	assert.False(t, report.Failed())
	require.Len(t, report.Steps, len(Steps()))
	for i, name := range Steps() {
		assert.Equal(t, name, report.Steps[i].Name)
	}
	assert.Contains(t, report.Results, "/tmp/static/sub/index.html")
	assert.Equal(t, []string{testutil.SiteURL}, f.probed)

	assert.True(t, f.wp.Installed())
	assert.True(t, f.wp.PluginActive())
	v := f.wp.InstallValues()
	assert.Equal(t, "test_user", v.Get("user_name"))
	assert.Equal(t, "-JfG+L.3-s!A6YmhsKGkGERc+hq&XswU", v.Get("admin_password"))
	assert.Equal(t, map[string]string{
		wpoptions.KeyStaticURL: "http://example.com/sub/",
		wpoptions.KeyStaticDir: "/tmp/static/",
		wpoptions.KeyTimeout:   "10",
	}, f.wp.Options())
	user, password := f.wp.BasicAuth()
	assert.Equal(t, "authuser", user)
	assert.Equal(t, "authpassword", password)

	n, err := promtest.GatherAndCount(f.metrics.Registry(), "staticpress_e2e_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, len(Steps()), n)

	last := f.hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "run passed", last.Message)
	assert.Equal(t, f.sc.RunID(), last.Data["run_id"])
	assert.Equal(t, driver.Static, last.Data["driver"])
}

func TestRunInstalledSiteOnlyLogsIn(t *testing.T) {
	f := newFixture(t, nil, testutil.Installed())

	_, err := f.sc.RunSteps(context.Background(), StepBootstrap, StepConfigureOptions)
	require.NoError(t, err)

	assert.Nil(t, f.wp.InstallValues(), "installed site must not be reinstalled")
	assert.Equal(t, 1, f.wp.Logins())
	assert.Equal(t, "10", f.wp.Options()[wpoptions.KeyTimeout])
}

func TestRunTransitionsAreLogged(t *testing.T) {
	f := newFixture(t, nil, testutil.Installed())

	_, err := f.sc.RunSteps(context.Background(), StepBootstrap)
	require.NoError(t, err)

	var states []string
	for _, e := range f.hook.AllEntries() {
		if e.Message == "transition" {
			states = append(states, e.Data["state"].(string))
		}
	}
	assert.Contains(t, states, browser.StateSettled.String())
}

func TestRebuildTimeoutStopsRunWithScreenshot(t *testing.T) {
	f := newFixture(t, nil, testutil.Installed())
	f.wp.StallRebuild = true
	f.cfg.Timeouts.Rebuild = 100 * time.Millisecond

	report, err := f.sc.RunSteps(context.Background(), StepBootstrap, StepRebuild, StepConfigureOptions)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNavigationTimeout)
	assert.Equal(t, "navigation_timeout", FailureKind(err))

	require.Len(t, report.Steps, 2, "steps after the failure must not run")
	failed := report.Steps[1]
	assert.Equal(t, StepRebuild, failed.Name)
	require.NotEmpty(t, failed.Screenshot)
	_, statErr := os.Stat(failed.Screenshot)
	assert.NoError(t, statErr)
	assert.Contains(t, failed.Screenshot, f.sc.ArtifactDir())

	assert.Equal(t, 1, f.wp.Logins())
	assert.True(t, report.Failed())

	n, err := promtest.GatherAndCount(f.metrics.Registry(), "staticpress_e2e_step_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVerifyOptionsMismatch(t *testing.T) {
	f := newFixture(t, []func(sqlmock.Sqlmock){expectStored("20")})

	_, err := f.sc.RunSteps(context.Background(), StepVerifyOptions)
	require.Error(t, err)
	f.db.verify()

	var mismatch *wpoptions.MismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Len(t, mismatch.Mismatches, 1)
	assert.Equal(t, wpoptions.KeyTimeout, mismatch.Mismatches[0].Name)
	assert.Equal(t, "options_mismatch", FailureKind(err))
}

func TestPreflightFailureSkipsBrowser(t *testing.T) {
	f := newFixture(t, nil)
	f.sc.probe = func(context.Context, string) error {
		return ErrSiteUnreachable
	}

	report, err := f.sc.Run(context.Background())
	require.ErrorIs(t, err, ErrSiteUnreachable)
	require.Len(t, report.Steps, 1)
	assert.Empty(t, report.Steps[0].Screenshot)
	assert.Empty(t, f.wp.Driver.Actions())
}

func TestLauncherStartsBrowserOnFirstBrowserStep(t *testing.T) {
	cfg := testConfig(t)
	wp := testutil.NewFakeWordPress(testutil.Installed())
	launches, closes := 0, 0
	probeErr := ErrSiteUnreachable
	sc, err := New(cfg, Deps{
		Open:   (&mockDatabase{t: t}).open,
		Logger: quietLogger(),
		Probe:  func(context.Context, string) error { return probeErr },
		Launch: func(context.Context) (*browser.Session, func() error, error) {
			launches++
			s := browser.NewSession(wp.Driver, browser.Options{
				FindTimeout:   cfg.Timeouts.Find,
				SettleTimeout: cfg.Timeouts.Settle,
				PollInterval:  cfg.Timeouts.Poll,
			})
			return s, func() error { closes++; return nil }, nil
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = sc.RunSteps(ctx, StepPreflight, StepBootstrap)
	require.ErrorIs(t, err, ErrSiteUnreachable)
	assert.Zero(t, launches)

	probeErr = nil
	_, err = sc.RunSteps(ctx, StepPreflight, StepBootstrap, StepConfigureOptions)
	require.NoError(t, err)
	assert.Equal(t, 1, launches)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	assert.Equal(t, 1, closes)
}

func TestLauncherFailure(t *testing.T) {
	sc, err := New(testConfig(t), Deps{
		Open:   (&mockDatabase{t: t}).open,
		Logger: quietLogger(),
		Launch: func(context.Context) (*browser.Session, func() error, error) {
			return nil, nil, errors.New("no chromium")
		},
	})
	require.NoError(t, err)

	report, err := sc.RunSteps(context.Background(), StepBootstrap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chromium")
	assert.Empty(t, report.Steps[0].Screenshot)
}

func TestUnknownStep(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.sc.RunSteps(context.Background(), "deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown step "deploy"`)
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, Deps{Open: func(context.Context) (*sqlx.DB, error) { return nil, nil }})
	assert.Error(t, err)

	session := browser.NewSession(testutil.NewFakeWordPress().Driver, browser.Options{})
	_, err = New(cfg, Deps{Session: session})
	assert.Error(t, err)

	sc, err := New(cfg, Deps{Session: session, Open: func(context.Context) (*sqlx.DB, error) { return nil, nil }, RunID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", sc.RunID())
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&browser.ElementNotFoundError{}, "element_not_found"},
		{&browser.NavigationTimeoutError{}, "navigation_timeout"},
		{&browser.ActionFailedError{Err: errors.New("detached")}, "action_failed"},
		{&browser.NavigationTimeoutError{Err: &browser.ElementNotFoundError{}}, "navigation_timeout"},
		{&wpoptions.MismatchError{}, "options_mismatch"},
		{ErrSiteUnreachable, "unreachable"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FailureKind(tt.err), "%v", tt.err)
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "authuser" || pass != "authpassword" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	ctx := context.Background()

	assert.NoError(t, HTTPProber(srv.Client(), "authuser", "authpassword")(ctx, srv.URL+"/"))

	err := HTTPProber(srv.Client(), "authuser", "wrong")(ctx, srv.URL+"/")
	require.ErrorIs(t, err, ErrSiteUnreachable)
	assert.Contains(t, err.Error(), "basic auth")

	assert.ErrorIs(t, HTTPProber(nil, "", "")(ctx, "not a url"), ErrSiteUnreachable)
}

func TestHTTPProberServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := HTTPProber(srv.Client(), "", "")(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrSiteUnreachable)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPProberClosedPort(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := HTTPProber(nil, "", "")(context.Background(), addr)
	assert.ErrorIs(t, err, ErrSiteUnreachable)
}

func TestReportString(t *testing.T) {
	r := &Report{
		RunID: "abc",
		Steps: []StepResult{
			{Name: StepBootstrap, Duration: 1500 * time.Millisecond},
			{Name: StepRebuild, Duration: time.Second, Err: errors.New("timed out"), Screenshot: "artifacts/abc/rebuild.png"},
		},
		Results: []string{"/tmp/static/sub/index.html"},
	}
	out := r.String()
	assert.Contains(t, out, "run abc")
	assert.Contains(t, out, "FAIL: timed out")
	assert.Contains(t, out, "screenshot artifacts/abc/rebuild.png")
	assert.Contains(t, out, "dumped /tmp/static/sub/index.html")
}
