// Package testutil provides an in-memory WordPress site for offline tests
// of the page objects and the scenario.
package testutil

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"
	"time"

	xhtml "golang.org/x/net/html"

	"github.com/staticpress2019/e2e/internal/driver/htmldriver"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

const SiteURL = "http://wp.test/"

const (
	InstallURL      = SiteURL + "wp-admin/install.php"
	InstallStep1URL = InstallURL + "?step=1"
	InstallStep2URL = InstallURL + "?step=2"
	LoginURL        = SiteURL + "wp-login.php"
	AdminURL        = SiteURL + "wp-admin/"
	PluginsURL      = AdminURL + "plugins.php"
	ActivateURL     = PluginsURL + "?action=activate&plugin=staticpress2019"
	OptionsURL      = AdminURL + "admin.php?page=static-press-2019-options"
	RebuildURL      = AdminURL + "admin.php?page=static-press-2019"
)

// FakeWordPress serves the screens of a WordPress install with the
// StaticPress2019 plugin and tracks the state the forms change.
type FakeWordPress struct {
	Driver *htmldriver.Driver

	mu           sync.Mutex
	installed    bool
	legacy       bool
	pluginActive bool
	loggedIn     bool
	language     string
	install      url.Values
	logins       int
	options      map[string]string
	basicAuth    [2]string

	// RebuildDelay is how long the rebuild takes to report completion.
	RebuildDelay time.Duration
	// StallRebuild keeps the rebuild from ever finishing.
	StallRebuild bool
}

// Option configures a FakeWordPress.
type Option func(*FakeWordPress)

// Installed starts from a finished install with the plugin active.
func Installed() Option {
	return func(f *FakeWordPress) {
		f.installed = true
		f.pluginActive = true
	}
}

// Legacy renders the WordPress 4.3 install screen: <h1> heading and only
// the #pass1-text password field visible.
func Legacy() Option {
	return func(f *FakeWordPress) { f.legacy = true }
}

func NewFakeWordPress(opts ...Option) *FakeWordPress {
	f := &FakeWordPress{
		options: map[string]string{
			wpoptions.KeyStaticURL: "http://example.org/sub/",
			wpoptions.KeyStaticDir: "/var/www/web/static/",
			wpoptions.KeyTimeout:   "20",
		},
		RebuildDelay: 20 * time.Millisecond,
	}
	for _, o := range opts {
		o(f)
	}
	f.Driver = htmldriver.New(nil)
	f.Driver.OnSubmit = f.submit
	f.Driver.OnClick = f.click
	f.mu.Lock()
	f.render()
	f.mu.Unlock()
	return f
}

func (f *FakeWordPress) Installed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed
}

func (f *FakeWordPress) PluginActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pluginActive
}

func (f *FakeWordPress) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.language
}

// InstallValues returns the submitted install form.
func (f *FakeWordPress) InstallValues() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.install
}

// Logins counts successful logins.
func (f *FakeWordPress) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

// Options returns a copy of the stored StaticPress options.
func (f *FakeWordPress) Options() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.options))
	for k, v := range f.options {
		out[k] = v
	}
	return out
}

// BasicAuth returns the credentials saved on the options form.
func (f *FakeWordPress) BasicAuth() (user, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.basicAuth[0], f.basicAuth[1]
}

// ExpectedResult is the file the rebuild reports for the front page.
func (f *FakeWordPress) ExpectedResult() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expectedResult()
}

func (f *FakeWordPress) expectedResult() string {
	u, _ := url.Parse(f.options[wpoptions.KeyStaticURL])
	p := ""
	if u != nil {
		if p = strings.Trim(u.Path, "/"); p != "" {
			p += "/"
		}
	}
	return strings.TrimSuffix(f.options[wpoptions.KeyStaticDir], "/") + "/" + p + "index.html"
}

// render re-registers every page for the current state. Callers hold mu.
func (f *FakeWordPress) render() {
	d := f.Driver
	if f.installed {
		d.AddPage(SiteURL, page("test_title", `<a href="/wp-login.php">Log In</a>`))
	} else {
		d.AddPage(SiteURL, chooserPage)
	}
	d.AddPage(InstallURL, chooserPage)
	d.AddPage(InstallStep1URL, f.welcomePage())
	d.AddPage(InstallStep2URL, page("Success!", `<h1>Success!</h1><p>WordPress has been installed.</p><a href="../wp-login.php">Log In</a>`))
	d.AddPage(LoginURL, loginPage)
	if f.loggedIn {
		d.AddPage(AdminURL, adminPage("Dashboard", `<h1>Dashboard</h1>`))
	} else {
		d.AddPage(AdminURL, loginPage)
	}
	d.AddPage(PluginsURL, adminPage("Plugins", f.pluginsBody()))
	d.AddPage(ActivateURL, adminPage("Plugins", `<div id="message" class="updated"><p>Plugin activated.</p></div>`+f.pluginsBody()))
	d.AddPage(OptionsURL, adminPage("StaticPress2019 Options", f.optionsBody()))
	d.AddPage(RebuildURL, adminPage("StaticPress2019", rebuildBody))
}

func page(title, body string) string {
	return "<!DOCTYPE html><html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

const chooserPage = `<!DOCTYPE html><html><body>
<form id="setup" method="post" action="?step=1">
<label class="screen-reader-text" for="language">Select a default language</label>
<select size="14" name="language" id="language">
<option value="" lang="en" selected="selected">English (United States)</option>
<option value="ja" lang="ja">日本語</option>
</select>
<p class="step"><input id="language-continue" type="submit" class="button button-primary button-large" value="Continue"></p>
</form></body></html>`

func (f *FakeWordPress) welcomePage() string {
	heading, pass1 := "<h2>Information needed</h2>", `<input type="password" name="admin_password" id="pass1" value="">`
	if f.legacy {
		heading, pass1 = "<h1>Information needed</h1>", `<input type="password" name="admin_password" id="pass1" style="display:none">`
	}
	return page("Installation", heading+`
<form id="setup" method="post" action="install.php?step=2">
<input name="weblog_title" type="text" id="weblog_title" value="">
<input name="user_name" type="text" id="user_login" value="">
`+pass1+`
<input type="text" name="admin_password_text" id="pass1-text" value="">
<input name="admin_email" type="email" id="admin_email" value="">
<input type="submit" name="Submit" id="submit" class="button button-large" value="Install WordPress">
</form>`)
}

const loginPage = `<!DOCTYPE html><html><body class="login"><form name="loginform" id="loginform" action="/wp-login.php" method="post">
<input type="text" name="log" id="user_login" value="">
<input type="password" name="pwd" id="user_pass" value="">
<input type="submit" name="wp-submit" id="wp-submit" class="button button-primary button-large" value="Log In">
</form></body></html>`

func adminPage(title, body string) string {
	return page(title, `<div id="adminmenuwrap"><ul id="adminmenu">
<li><a href="/wp-admin/"><div class="wp-menu-name">Dashboard</div></a></li>
<li><a href="/wp-admin/plugins.php"><div class="wp-menu-name">Plugins <span class="update-plugins">1</span></div></a></li>
<li><a href="/wp-admin/admin.php?page=static-press-2019"><div class="wp-menu-name">StaticPress2019</div></a>
<ul class="wp-submenu">
<li><a href="/wp-admin/admin.php?page=static-press-2019">StaticPress2019</a></li>
<li><a href="/wp-admin/admin.php?page=static-press-2019-options">StaticPress2019 Options</a></li>
</ul></li>
</ul></div><div id="wpbody">`+body+`</div>`)
}

func (f *FakeWordPress) pluginsBody() string {
	action := `<a href="/wp-admin/plugins.php?action=activate&amp;plugin=staticpress2019">Activate</a>`
	if f.pluginActive {
		action = `<a href="/wp-admin/plugins.php?action=deactivate&amp;plugin=staticpress2019">Deactivate</a>`
	}
	return `<table class="plugins"><tbody>
<tr><td class="plugin-title"><strong>Akismet Anti-Spam</strong><div class="row-actions visible"><a href="#">Activate</a></div></td></tr>
<tr><td class="plugin-title"><strong>StaticPress2019</strong><div class="row-actions visible">` + action + `</div></td></tr>
</tbody></table>`
}

func (f *FakeWordPress) optionsBody() string {
	field := func(id, value string) string {
		return fmt.Sprintf(`<tr><td><input type="text" name="%[1]s" id="%[1]s" value="%[2]s"></td></tr>`, id, html.EscapeString(value))
	}
	return `<h2>StaticPress2019 Options</h2><form method="post" action="/wp-admin/admin.php?page=static-press-2019-options"><table>` +
		field("static_url", f.options[wpoptions.KeyStaticURL]) +
		field("static_dir", f.options[wpoptions.KeyStaticDir]) +
		field("basic_usr", f.basicAuth[0]) +
		field("basic_pwd", f.basicAuth[1]) +
		field("timeout", f.options[wpoptions.KeyTimeout]) +
		`</table><p class="submit"><input type="submit" name="Submit" class="button-primary" value="Save Changes"></p></form>`
}

const rebuildBody = `<h2>StaticPress2019</h2>
<p id="message"></p>
<p><input type="button" class="button-primary" id="rebuild" name="rebuild" value="Rebuild"></p>
<ul class="result-list"></ul>`

func (f *FakeWordPress) submit(action string, values url.Values) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.render()

	switch {
	case action == "?step=1":
		f.language = values.Get("language")
		return InstallStep1URL, nil
	case action == "install.php?step=2":
		f.install = values
		f.installed = true
		return InstallStep2URL, nil
	case action == "/wp-login.php":
		if values.Get("log") == "" || values.Get("pwd") == "" {
			return LoginURL, nil
		}
		f.loggedIn = true
		f.logins++
		return AdminURL, nil
	case strings.Contains(action, "page=static-press-2019-options"):
		f.options[wpoptions.KeyStaticURL] = values.Get("static_url")
		f.options[wpoptions.KeyStaticDir] = values.Get("static_dir")
		f.options[wpoptions.KeyTimeout] = values.Get("timeout")
		f.basicAuth = [2]string{values.Get("basic_usr"), values.Get("basic_pwd")}
		return OptionsURL, nil
	}
	return "", fmt.Errorf("unexpected form action %q", action)
}

func (f *FakeWordPress) click(d *htmldriver.Driver, n *xhtml.Node) (bool, error) {
	switch {
	case n.Data == "a" && strings.Contains(attrOf(n, "href"), "action=activate&plugin=staticpress2019"):
		f.mu.Lock()
		f.pluginActive = true
		f.render()
		f.mu.Unlock()
		return false, nil
	case attrOf(n, "id") == "rebuild":
		f.mu.Lock()
		result, delay, stall := f.expectedResult(), f.RebuildDelay, f.StallRebuild
		f.mu.Unlock()
		if stall {
			return true, nil
		}
		go func() {
			time.Sleep(delay)
			_ = d.SetContent(adminPage("StaticPress2019", `<h2>StaticPress2019</h2>
<p id="message"><strong>End</strong></p>
<p><input type="button" class="button-primary" id="rebuild" name="rebuild" value="Rebuild"></p>
<ul class="result-list">
<li>`+html.EscapeString(result)+`</li>
<li>`+html.EscapeString(strings.TrimSuffix(result, "index.html")+"feed/index.html")+`</li>
</ul>`))
		}()
		return true, nil
	}
	return false, nil
}

func attrOf(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
