package browser

import (
	"fmt"
	"strings"
)

// EscapeXPathLiteral turns an arbitrary string into an XPath string
// expression. XPath 1.0 has no escape sequence for a quote inside a literal,
// so the text is split on single quotes and stitched back together with
// concat(). A trailing empty literal keeps concat() at two or more arguments
// for inputs without any quote.
//
//	EscapeXPathLiteral("Bob's") == `concat('Bob', "'", 's', '')`
func EscapeXPathLiteral(text string) string {
	parts := strings.Split(text, "'")
	var b strings.Builder
	b.Grow(len(text) + len(parts)*8 + 16)
	b.WriteString("concat(")
	for i, part := range parts {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'")
		b.WriteString(part)
		b.WriteString("'")
	}
	b.WriteString(", '')")
	return b.String()
}

// ByText matches elements of the given tag whose text node contains text.
func ByText(tag, text string) Locator {
	return XPath(fmt.Sprintf(".//%s[contains(text(), %s)]", tag, EscapeXPathLiteral(text)))
}

// ByExactText matches elements of the given tag whose text node equals text.
func ByExactText(tag, text string) Locator {
	return XPath(fmt.Sprintf(".//%s[text()=%s]", tag, EscapeXPathLiteral(text)))
}

// ByAttribute matches elements of the given tag whose attribute equals value.
func ByAttribute(tag, attr, value string) Locator {
	return XPath(fmt.Sprintf(".//%s[@%s=%s]", tag, attr, EscapeXPathLiteral(value)))
}
