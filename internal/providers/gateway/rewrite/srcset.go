package rewrite

import "strings"

// candidate is one entry of a srcset list
type candidate struct {
	url        string
	descriptor string
}

// parseSrcset splits a srcset value into candidates. A URL may itself hold
// commas (data URLs), so a candidate ends at the first comma after its
// descriptor rather than at any comma.
func parseSrcset(v string) []candidate {
	var out []candidate
	i := 0
	for i < len(v) {
		for i < len(v) && (isSpace(v[i]) || v[i] == ',') {
			i++
		}
		if i >= len(v) {
			break
		}

		start := i
		for i < len(v) && !isSpace(v[i]) {
			i++
		}
		u := v[start:i]

		if strings.HasSuffix(u, ",") {
			out = append(out, candidate{url: strings.TrimRight(u, ",")})
			continue
		}

		start = i
		depth := 0
		for i < len(v) {
			if v[i] == '(' {
				depth++
			} else if v[i] == ')' && depth > 0 {
				depth--
			} else if v[i] == ',' && depth == 0 {
				break
			}
			i++
		}
		out = append(out, candidate{url: u, descriptor: strings.TrimSpace(v[start:i])})
	}
	return out
}

// isSpace matches HTML ASCII whitespace only; UTF-8 continuation bytes
// such as 0xA0 must not split a URL.
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// RewriteSrcset wraps the URL of every candidate, keeping descriptors
func (c *Context) RewriteSrcset(v string) (string, int) {
	cands := parseSrcset(v)
	if len(cands) == 0 {
		return v, 0
	}

	n := 0
	parts := make([]string, 0, len(cands))
	for _, cand := range cands {
		u := cand.url
		if wrapped, ok := c.Wrap(u); ok {
			u = wrapped
			n++
		}
		if cand.descriptor != "" {
			u += " " + cand.descriptor
		}
		parts = append(parts, u)
	}
	return strings.Join(parts, ", "), n
}
