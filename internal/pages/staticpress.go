package pages

import (
	"context"
	"strings"
	"time"

	"github.com/staticpress2019/e2e/internal/browser"
)

// StaticPressOptions is the "StaticPress2019 Options" settings form.
type StaticPressOptions struct {
	s *browser.Session
}

func NewStaticPressOptions(s *browser.Session) *StaticPressOptions {
	return &StaticPressOptions{s: s}
}

// Options are the values typed into the settings form.
type Options struct {
	StaticURL     string
	StaticDir     string
	BasicUser     string
	BasicPassword string
	Timeout       string
}

// SetOptions replaces every field and saves.
func (p *StaticPressOptions) SetOptions(ctx context.Context, o Options) error {
	for _, f := range []struct{ id, value string }{
		{"static_url", o.StaticURL},
		{"static_dir", o.StaticDir},
		{"basic_usr", o.BasicUser},
		{"basic_pwd", o.BasicPassword},
		{"timeout", o.Timeout},
	} {
		if err := p.s.Fill(ctx, browser.CSS(`input[id="`+f.id+`"]`), f.value); err != nil {
			return err
		}
	}
	return p.s.Click(ctx, browser.ByAttribute("input", "value", "Save Changes"),
		browser.WaitFor(browser.DOMContentLoaded))
}

// StaticPress is the rebuild screen.
type StaticPress struct {
	s       *browser.Session
	timeout time.Duration
}

// DefaultRebuildTimeout bounds a whole site dump.
const DefaultRebuildTimeout = 3 * time.Minute

// NewStaticPress uses timeout for the rebuild waits; zero means
// DefaultRebuildTimeout.
func NewStaticPress(s *browser.Session, timeout time.Duration) *StaticPress {
	if timeout <= 0 {
		timeout = DefaultRebuildTimeout
	}
	return &StaticPress{s: s, timeout: timeout}
}

var (
	rebuildDone = browser.XPath(`.//p[@id="message"]/strong[text()="End"]`)
	resultItems = browser.XPath(`.//ul[@class="result-list"]/li`)
)

// Rebuild starts a rebuild and waits for the completion marker and for a
// result entry containing expectedPath.
func (p *StaticPress) Rebuild(ctx context.Context, expectedPath string) error {
	result := browser.XPath(`.//ul[@class="result-list"]/li[contains(text(), ` + browser.EscapeXPathLiteral(expectedPath) + `)]`)
	return p.s.Click(ctx, browser.ByAttribute("input", "value", "Rebuild"),
		browser.Appears(rebuildDone).Within(p.timeout),
		browser.Appears(result).Within(p.timeout),
	)
}

// Results lists the dumped files reported on the page.
func (p *StaticPress) Results(ctx context.Context) ([]string, error) {
	els, err := p.s.Driver().Query(ctx, resultItems)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out, nil
}
