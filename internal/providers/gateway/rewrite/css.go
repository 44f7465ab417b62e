package rewrite

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	cssURL    = regexp.MustCompile(`(?i)url\(\s*(?:'([^']*)'|"([^"]*)"|([^'"\)]*))\s*\)`)
	cssImport = regexp.MustCompile(`(?i)@import\s+(['"])([^'"]+)['"]`)
)

// RewriteCSS rewrites every url(...) and string @import in css against the
// pass base. It returns the new text and the number of references changed.
func (c *Context) RewriteCSS(css string) (string, int) {
	return c.rewriteCSSAgainst(css, c.Base)
}

func (c *Context) rewriteCSSAgainst(css string, base *url.URL) (string, int) {
	lower := strings.ToLower(css)
	if !strings.Contains(lower, "url(") && !strings.Contains(lower, "@import") {
		return css, 0
	}

	n := 0
	out := cssURL.ReplaceAllStringFunc(css, func(m string) string {
		sub := cssURL.FindStringSubmatch(m)
		var raw, quote string
		switch {
		case sub[1] != "":
			raw, quote = sub[1], "'"
		case sub[2] != "":
			raw, quote = sub[2], `"`
		default:
			raw = strings.TrimSpace(sub[3])
		}

		wrapped, ok := c.cachedWrap(raw, base)
		if !ok {
			return m
		}
		n++
		if quote == "" && strings.ContainsAny(wrapped, `()'" `) {
			quote = `"`
		}
		return "url(" + quote + wrapped + quote + ")"
	})

	out = cssImport.ReplaceAllStringFunc(out, func(m string) string {
		sub := cssImport.FindStringSubmatch(m)
		wrapped, ok := c.cachedWrap(sub[2], base)
		if !ok {
			return m
		}
		n++
		return "@import " + sub[1] + wrapped + sub[1]
	})

	return out, n
}
