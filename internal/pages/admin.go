package pages

import (
	"context"

	"github.com/staticpress2019/e2e/internal/browser"
)

// Admin is the wp-admin chrome: the left-hand menu and its flyouts.
type Admin struct {
	s *browser.Session
}

func NewAdmin(s *browser.Session) *Admin { return &Admin{s: s} }

func menuLocator(menu string) browser.Locator {
	return browser.XPath(`.//div[@class="wp-menu-name" and contains(text(), ` + browser.EscapeXPathLiteral(menu) + `)]`)
}

func subMenuLocator(subMenu string) browser.Locator {
	return browser.ByExactText("a", subMenu)
}

// HoverMenu opens the flyout of a top-level menu.
func (p *Admin) HoverMenu(ctx context.Context, menu string) error {
	return p.s.Hover(ctx, menuLocator(menu))
}

// ClickMenu opens a top-level menu page.
func (p *Admin) ClickMenu(ctx context.Context, menu string) error {
	return p.s.Click(ctx, menuLocator(menu),
		browser.WaitFor(browser.Load), browser.WaitFor(browser.NetworkIdle))
}

// WaitForSubMenu waits until the submenu link is visible.
func (p *Admin) WaitForSubMenu(ctx context.Context, subMenu string) error {
	_, err := p.s.Resolver().WaitVisible(ctx, subMenuLocator(subMenu), p.s.Resolver().Timeout())
	return err
}

func (p *Admin) ClickSubMenu(ctx context.Context, subMenu string) error {
	return p.s.Click(ctx, subMenuLocator(subMenu),
		browser.WaitFor(browser.Load), browser.WaitFor(browser.NetworkIdle))
}

// OpenSubMenu hovers menu, waits for subMenu and clicks it.
func (p *Admin) OpenSubMenu(ctx context.Context, menu, subMenu string) error {
	if err := p.HoverMenu(ctx, menu); err != nil {
		return err
	}
	if err := p.WaitForSubMenu(ctx, subMenu); err != nil {
		return err
	}
	return p.ClickSubMenu(ctx, subMenu)
}

// Plugins is the installed plugins list.
type Plugins struct {
	s *browser.Session
}

func NewPlugins(s *browser.Session) *Plugins { return &Plugins{s: s} }

func activateLocator(plugin string) browser.Locator {
	return browser.XPath(`.//strong[text()=` + browser.EscapeXPathLiteral(plugin) + `]/following-sibling::div//a[text()="Activate"]`)
}

// ActivatePlugin clicks the Activate link of plugin. A plugin that is not
// installed, or already active, yields browser.ErrElementNotFound.
func (p *Plugins) ActivatePlugin(ctx context.Context, plugin string) error {
	return p.s.Click(ctx, activateLocator(plugin), browser.WaitFor(browser.DOMContentLoaded))
}

// IsActive reports whether plugin shows a Deactivate link.
func (p *Plugins) IsActive(ctx context.Context, plugin string) (bool, error) {
	return displayed(ctx, p.s, browser.XPath(`.//strong[text()=`+browser.EscapeXPathLiteral(plugin)+`]/following-sibling::div//a[text()="Deactivate"]`))
}
