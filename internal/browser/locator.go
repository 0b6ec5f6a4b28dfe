package browser

import "strings"

// Strategy tells a driver how to interpret a locator query.
type Strategy int

const (
	StrategyCSS Strategy = iota
	StrategyXPath
)

func (s Strategy) String() string {
	switch s {
	case StrategyXPath:
		return "xpath"
	default:
		return "css"
	}
}

// Locator identifies zero or more elements in the rendered page. Locators are
// built per lookup and carry no identity.
type Locator struct {
	Strategy Strategy
	Query    string
}

// CSS builds a CSS selector locator.
func CSS(selector string) Locator {
	return Locator{Strategy: StrategyCSS, Query: selector}
}

// XPath builds an XPath locator. Expressions without a leading "." or "/"
// are made relative to the document.
func XPath(expr string) Locator {
	if !strings.HasPrefix(expr, ".") && !strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, "(") {
		expr = ".//" + expr
	}
	return Locator{Strategy: StrategyXPath, Query: expr}
}

// Relative reports whether the query is scoped to the current node rather
// than the document root.
func (l Locator) Relative() bool {
	return l.Strategy == StrategyXPath && strings.HasPrefix(l.Query, ".")
}

// String renders the locator in the "engine=query" form understood by
// Playwright and used in error messages.
func (l Locator) String() string {
	return l.Strategy.String() + "=" + l.Query
}
