// Package pages models the WordPress and StaticPress2019 screens the
// scenario walks through. Every page object works on a shared
// browser.Session and holds no other state.
package pages

import (
	"context"

	"github.com/staticpress2019/e2e/internal/browser"
)

// displayed reports whether loc matches anything on the current page,
// without waiting.
func displayed(ctx context.Context, s *browser.Session, loc browser.Locator) (bool, error) {
	return s.Exists(ctx, loc)
}

// LanguageChooser is the first install screen on WordPress 5.4.2 and later.
type LanguageChooser struct {
	s *browser.Session
}

func NewLanguageChooser(s *browser.Session) *LanguageChooser { return &LanguageChooser{s: s} }

func (p *LanguageChooser) IsDisplayedNow(ctx context.Context) (bool, error) {
	return displayed(ctx, p.s, browser.ByExactText("label", "Select a default language"))
}

// Choose selects language and continues to the welcome screen.
func (p *LanguageChooser) Choose(ctx context.Context, language string) error {
	if err := p.s.Select(ctx, browser.CSS(`select[id="language"]`), language); err != nil {
		return err
	}
	return p.s.Click(ctx, browser.ByAttribute("input", "value", "Continue"),
		browser.WaitFor(browser.Load), browser.WaitFor(browser.NetworkIdle))
}

// Welcome is the "Information needed" install form.
type Welcome struct {
	s *browser.Session
}

func NewWelcome(s *browser.Session) *Welcome { return &Welcome{s: s} }

// IsDisplayedNow matches the heading as <h2> (current WordPress) or <h1>
// (4.3).
func (p *Welcome) IsDisplayedNow(ctx context.Context) (bool, error) {
	return displayed(ctx, p.s, browser.XPath(`.//*[self::h1 or self::h2][text()="Information needed"]`))
}

// Install fills the install form and submits it.
func (p *Welcome) Install(ctx context.Context, title, user, password, email string) error {
	if err := p.s.Fill(ctx, browser.CSS(`input[id="weblog_title"]`), title); err != nil {
		return err
	}
	if err := p.s.Fill(ctx, browser.CSS(`input[id="user_login"]`), user); err != nil {
		return err
	}

	// WordPress 4.3 only shows #pass1-text.
	pass := browser.CSS("#pass1-text")
	if p.visibleNow(ctx, browser.CSS("#pass1")) {
		pass = browser.CSS("#pass1")
	}
	if err := p.s.Fill(ctx, pass, password); err != nil {
		return err
	}
	if err := p.s.Fill(ctx, browser.CSS(`input[id="admin_email"]`), email); err != nil {
		return err
	}
	return p.s.Click(ctx, browser.ByAttribute("input", "value", "Install WordPress"),
		browser.WaitFor(browser.DOMContentLoaded))
}

func (p *Welcome) visibleNow(ctx context.Context, loc browser.Locator) bool {
	els, err := p.s.Driver().Query(ctx, loc)
	if err != nil || len(els) == 0 {
		return false
	}
	ok, err := els[0].Visible(ctx)
	return err == nil && ok
}

// Login is wp-login.php.
type Login struct {
	s *browser.Session
}

func NewLogin(s *browser.Session) *Login { return &Login{s: s} }

func (p *Login) IsDisplayedNow(ctx context.Context) (bool, error) {
	return displayed(ctx, p.s, browser.CSS("input#user_login"))
}

func (p *Login) Login(ctx context.Context, user, password string) error {
	if _, err := p.s.Resolver().WaitVisible(ctx, browser.CSS("input#user_login"), p.s.Resolver().Timeout()); err != nil {
		return err
	}
	if err := p.s.Fill(ctx, browser.CSS("input#user_login"), user); err != nil {
		return err
	}
	if err := p.s.Fill(ctx, browser.CSS("input#user_pass"), password); err != nil {
		return err
	}
	return p.s.Click(ctx, browser.CSS(`input[type="submit"][name="wp-submit"]`),
		browser.WaitFor(browser.NetworkIdle))
}
