package htmldriver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/staticpress2019/e2e/internal/browser"
)

type element struct {
	d *Driver
	n *html.Node
}

var _ browser.Element = (*element)(nil)

// Node exposes the underlying HTML node.
func (e *element) Node() *html.Node { return e.n }

func (e *element) Key(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.d.nodeKey(e.n), nil
}

func (e *element) describe() string {
	var b strings.Builder
	b.WriteString(e.n.Data)
	if id := attr(e.n, "id"); id != "" {
		b.WriteString("#" + id)
	}
	if v := attr(e.n, "value"); v != "" && e.n.Data == "input" {
		b.WriteString(fmt.Sprintf("[value=%q]", v))
	}
	return b.String()
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if hasAttr(e.n, "disabled") {
		return fmt.Errorf("%s is disabled", e.describe())
	}
	e.d.record("click %s", e.describe())

	if hook := e.d.OnClick; hook != nil {
		handled, err := hook(e.d, e.n)
		if err != nil || handled {
			return err
		}
	}

	switch {
	case enclosingLink(e.n) != nil:
		return e.d.load(e.d.resolve(attr(enclosingLink(e.n), "href")))
	case isSubmit(e.n):
		form := enclosingForm(e.n)
		if form == nil || e.d.OnSubmit == nil {
			return nil
		}
		next, err := e.d.OnSubmit(attr(form, "action"), formValues(form))
		if err != nil || next == "" {
			return err
		}
		return e.d.load(e.d.resolve(next))
	}
	return nil
}

func (e *element) ClickCount(ctx context.Context, n int) error {
	if n <= 1 {
		return e.Click(ctx)
	}
	e.d.record("click x%d %s", n, e.describe())
	return nil
}

func (e *element) Hover(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.d.record("hover %s", e.describe())
	return nil
}

func (e *element) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	switch e.n.Data {
	case "input":
		setAttr(e.n, "value", text)
	case "textarea":
		for c := e.n.FirstChild; c != nil; {
			next := c.NextSibling
			e.n.RemoveChild(c)
			c = next
		}
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	default:
		return fmt.Errorf("cannot fill <%s>", e.n.Data)
	}
	e.d.actions = append(e.d.actions, "fill "+e.describe())
	return nil
}

func (e *element) SelectOption(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.n.Data != "select" {
		return fmt.Errorf("cannot select an option of <%s>", e.n.Data)
	}
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	options, err := htmlquery.QueryAll(e.n, ".//option")
	if err != nil {
		return err
	}
	var chosen *html.Node
	for _, o := range options {
		if strings.TrimSpace(htmlquery.InnerText(o)) == label {
			chosen = o
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("no option labelled %q", label)
	}
	for _, o := range options {
		removeAttr(o, "selected")
	}
	setAttr(chosen, "selected", "selected")
	e.d.actions = append(e.d.actions, fmt.Sprintf("select %q in %s", label, e.describe()))
	return nil
}

// Visible treats hidden inputs, the hidden attribute and inline
// display:none on the node or an ancestor as invisible.
func (e *element) Visible(context.Context) (bool, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.n.Data == "input" && strings.EqualFold(attr(e.n, "type"), "hidden") {
		return false, nil
	}
	for n := e.n; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hasAttr(n, "hidden") {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(attr(n, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Text(context.Context) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return htmlquery.InnerText(e.n), nil
}

func isSubmit(n *html.Node) bool {
	t := strings.ToLower(attr(n, "type"))
	switch n.Data {
	case "input":
		return t == "submit"
	case "button":
		return t == "" || t == "submit"
	}
	return false
}

// enclosingLink returns n or its nearest ancestor that is an <a href>.
func enclosingLink(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "a" && attr(p, "href") != "" {
			return p
		}
	}
	return nil
}

func enclosingForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			return p
		}
	}
	return nil
}

func formValues(form *html.Node) url.Values {
	values := url.Values{}
	fields, _ := htmlquery.QueryAll(form, ".//input[@name] | .//select[@name] | .//textarea[@name]")
	for _, f := range fields {
		name := attr(f, "name")
		switch f.Data {
		case "input":
			t := strings.ToLower(attr(f, "type"))
			if t == "submit" || t == "button" {
				continue
			}
			if (t == "checkbox" || t == "radio") && !hasAttr(f, "checked") {
				continue
			}
			values.Add(name, attr(f, "value"))
		case "textarea":
			values.Add(name, htmlquery.InnerText(f))
		case "select":
			if opt := htmlquery.FindOne(f, ".//option[@selected]"); opt != nil {
				values.Add(name, attr(opt, "value"))
			} else if opt := htmlquery.FindOne(f, ".//option"); opt != nil {
				values.Add(name, attr(opt, "value"))
			}
		}
	}
	return values
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
