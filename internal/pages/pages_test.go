package pages_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staticpress2019/e2e/internal/browser"
	"github.com/staticpress2019/e2e/internal/pages"
	"github.com/staticpress2019/e2e/internal/testutil"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

func newSite(t *testing.T, opts ...testutil.Option) (*testutil.FakeWordPress, *browser.Session) {
	t.Helper()
	wp := testutil.NewFakeWordPress(opts...)
	s := browser.NewSession(wp.Driver, browser.Options{
		FindTimeout:   200 * time.Millisecond,
		SettleTimeout: time.Second,
		PollInterval:  5 * time.Millisecond,
	})
	return wp, s
}

func currentURL(t *testing.T, s *browser.Session) string {
	t.Helper()
	u, err := s.Driver().URL(context.Background())
	require.NoError(t, err)
	return u
}

func TestInstallFlow(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t)
	require.NoError(t, s.Navigate(ctx, testutil.SiteURL, browser.Load))

	chooser := pages.NewLanguageChooser(s)
	shown, err := chooser.IsDisplayedNow(ctx)
	require.NoError(t, err)
	require.True(t, shown)
	require.NoError(t, chooser.Choose(ctx, "English (United States)"))

	welcome := pages.NewWelcome(s)
	shown, err = welcome.IsDisplayedNow(ctx)
	require.NoError(t, err)
	require.True(t, shown)
	require.NoError(t, welcome.Install(ctx, "test_title", "test_user", "p'ass", "test@gmail.com"))

	assert.True(t, wp.Installed())
	v := wp.InstallValues()
	assert.Equal(t, "test_title", v.Get("weblog_title"))
	assert.Equal(t, "test_user", v.Get("user_name"))
	assert.Equal(t, "p'ass", v.Get("admin_password"))
	assert.Equal(t, "test@gmail.com", v.Get("admin_email"))
	assert.Equal(t, testutil.InstallStep2URL, currentURL(t, s))
}

func TestWelcomeLegacyPasswordField(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Legacy())
	require.NoError(t, s.Navigate(ctx, testutil.InstallStep1URL, browser.Load))

	welcome := pages.NewWelcome(s)
	shown, err := welcome.IsDisplayedNow(ctx)
	require.NoError(t, err)
	require.True(t, shown, "<h1> heading must be recognised")

	require.NoError(t, welcome.Install(ctx, "t", "u", "secret", "e@example.org"))
	v := wp.InstallValues()
	assert.Equal(t, "secret", v.Get("admin_password_text"))
	assert.Empty(t, v.Get("admin_password"))
}

func TestChooserNotDisplayedOnInstalledSite(t *testing.T) {
	ctx := context.Background()
	_, s := newSite(t, testutil.Installed())
	require.NoError(t, s.Navigate(ctx, testutil.SiteURL, browser.Load))

	start := time.Now()
	shown, err := pages.NewLanguageChooser(s).IsDisplayedNow(ctx)
	require.NoError(t, err)
	assert.False(t, shown)
	shown, err = pages.NewWelcome(s).IsDisplayedNow(ctx)
	require.NoError(t, err)
	assert.False(t, shown)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "display probes do not wait")
}

func TestLoginAndAdminNavigation(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Installed())
	require.NoError(t, s.Navigate(ctx, testutil.AdminURL, browser.NetworkIdle))

	login := pages.NewLogin(s)
	shown, err := login.IsDisplayedNow(ctx)
	require.NoError(t, err)
	require.True(t, shown)
	require.NoError(t, login.Login(ctx, "test_user", "-JfG+L.3-s!A6YmhsKGkGERc+hq&XswU"))
	assert.Equal(t, 1, wp.Logins())

	admin := pages.NewAdmin(s)
	require.NoError(t, admin.OpenSubMenu(ctx, "StaticPress2019", "StaticPress2019 Options"))
	assert.Equal(t, testutil.OptionsURL, currentURL(t, s))
	assert.Contains(t, wp.Driver.Actions(), `hover div`)

	require.NoError(t, admin.ClickMenu(ctx, "Plugins"))
	assert.Equal(t, testutil.PluginsURL, currentURL(t, s))

	err = admin.ClickSubMenu(ctx, "Comments")
	require.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestActivatePlugin(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t)
	require.NoError(t, s.Navigate(ctx, testutil.PluginsURL, browser.Load))

	plugins := pages.NewPlugins(s)
	active, err := plugins.IsActive(ctx, "StaticPress2019")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, plugins.ActivatePlugin(ctx, "StaticPress2019"))
	assert.True(t, wp.PluginActive())
	assert.Equal(t, testutil.ActivateURL, currentURL(t, s))

	active, err = plugins.IsActive(ctx, "StaticPress2019")
	require.NoError(t, err)
	assert.True(t, active)

	err = plugins.ActivatePlugin(ctx, "Hello Dolly")
	require.ErrorIs(t, err, browser.ErrElementNotFound)
}

func TestSetOptions(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Installed())
	require.NoError(t, s.Navigate(ctx, testutil.OptionsURL, browser.Load))

	err := pages.NewStaticPressOptions(s).SetOptions(ctx, pages.Options{
		StaticURL:     "http://example.com/sub/",
		StaticDir:     "/tmp/static/",
		BasicUser:     "authuser",
		BasicPassword: "authpassword",
		Timeout:       "10",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		wpoptions.KeyStaticURL: "http://example.com/sub/",
		wpoptions.KeyStaticDir: "/tmp/static/",
		wpoptions.KeyTimeout:   "10",
	}, wp.Options())
	user, pass := wp.BasicAuth()
	assert.Equal(t, "authuser", user)
	assert.Equal(t, "authpassword", pass)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Installed())
	require.NoError(t, s.Navigate(ctx, testutil.OptionsURL, browser.Load))
	require.NoError(t, pages.NewStaticPressOptions(s).SetOptions(ctx, pages.Options{
		StaticURL: "http://example.com/sub/",
		StaticDir: "/tmp/static/",
		Timeout:   "10",
	}))
	require.Equal(t, "/tmp/static/sub/index.html", wp.ExpectedResult())

	require.NoError(t, s.Navigate(ctx, testutil.RebuildURL, browser.Load))
	sp := pages.NewStaticPress(s, time.Second)
	require.NoError(t, sp.Rebuild(ctx, "/tmp/static/sub/index.html"))

	results, err := sp.Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/static/sub/index.html", "/tmp/static/sub/feed/index.html"}, results)
}

func TestRebuildTimesOut(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Installed())
	wp.StallRebuild = true
	require.NoError(t, s.Navigate(ctx, testutil.RebuildURL, browser.Load))

	start := time.Now()
	err := pages.NewStaticPress(s, 100*time.Millisecond).Rebuild(ctx, "/tmp/static/sub/index.html")
	require.ErrorIs(t, err, browser.ErrNavigationTimeout)
	assert.False(t, errors.Is(err, browser.ErrActionFailed))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestRebuildWaitsForFreshResult(t *testing.T) {
	ctx := context.Background()
	wp, s := newSite(t, testutil.Installed())
	require.NoError(t, s.Navigate(ctx, testutil.RebuildURL, browser.Load))
	sp := pages.NewStaticPress(s, 100*time.Millisecond)
	require.NoError(t, sp.Rebuild(ctx, wp.ExpectedResult()))

	// The finished page still shows the marker and the results.
	wp.StallRebuild = true
	err := sp.Rebuild(ctx, wp.ExpectedResult())
	require.ErrorIs(t, err, browser.ErrNavigationTimeout)
}
