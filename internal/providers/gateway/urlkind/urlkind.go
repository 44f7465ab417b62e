// Package urlkind classifies and resolves the URL strings found in proxied
// documents.
package urlkind

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind is the category of a raw URL string
type Kind int

const (
	Relative Kind = iota
	Absolute
	Data
	Mailto
	JavaScript
	Blob
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case Relative:
		return "relative"
	case Absolute:
		return "absolute"
	case Data:
		return "data"
	case Mailto:
		return "mailto"
	case JavaScript:
		return "javascript"
	case Blob:
		return "blob"
	default:
		return "unknown"
	}
}

var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// Classify reports which kind of URL raw is
func Classify(raw string) Kind {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(v, "data:"):
		return Data
	case strings.HasPrefix(v, "mailto:"):
		return Mailto
	case strings.HasPrefix(v, "javascript:"):
		return JavaScript
	case strings.HasPrefix(v, "blob:"):
		return Blob
	case IsAbsolute(v):
		return Absolute
	default:
		return Relative
	}
}

// IsAbsolute reports whether v carries its own scheme or host.
// Protocol-relative values ("//cdn.example.com/x.js") count as absolute.
func IsAbsolute(v string) bool {
	v = strings.TrimSpace(v)
	return schemePrefix.MatchString(v) || strings.HasPrefix(v, "//")
}

// IsSkippable reports whether a value must never be rewritten
func IsSkippable(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "#") {
		return true
	}
	switch Classify(v) {
	case Data, Mailto, JavaScript, Blob:
		return true
	}
	return false
}

// IsHTTP reports whether an absolute URL uses http or https
func IsHTTP(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

// Resolve resolves relative against base. It returns false instead of
// failing when either side cannot be parsed.
func Resolve(relative, base string) (string, bool) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", false
	}
	return ResolveURL(relative, b)
}

// ResolveURL is Resolve with an already parsed base
func ResolveURL(relative string, base *url.URL) (string, bool) {
	if base == nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(relative))
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme == "" {
		return "", false
	}
	return resolved.String(), true
}

// Normalize turns user input into a fully-qualified URL, defaulting to https
// when no scheme is present.
func Normalize(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "//") {
		return "https:" + v
	}
	if schemePrefix.MatchString(v) && !looksLikeHostPort(v) {
		return v
	}
	return "https://" + v
}

// looksLikeHostPort catches "localhost:8080/x" which matches the scheme
// pattern but is a host with a port.
func looksLikeHostPort(v string) bool {
	i := strings.Index(v, ":")
	if i < 0 || i+1 >= len(v) {
		return false
	}
	rest := v[i+1:]
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	port := rest[:end]
	if port == "" {
		return false
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FromInput converts what a user typed into the address bar into a target
// URL. Free text becomes a search through searchTemplate.
func FromInput(text, searchTemplate string) string {
	v := strings.TrimSpace(text)
	if v == "" {
		return ""
	}
	if IsAbsolute(v) {
		return Normalize(v)
	}
	if strings.ContainsAny(v, " \t") || !looksLikeHost(v) {
		if searchTemplate == "" {
			return Normalize(v)
		}
		return searchTemplate + url.QueryEscape(v)
	}
	return Normalize(v)
}

func looksLikeHost(v string) bool {
	host := v
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || strings.Contains(host, ".")
}

// Hostname returns the host part of an absolute URL, or "" when it has none
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
