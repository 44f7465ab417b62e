package relay

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

// maxUnwrapDepth bounds how many nested relay layers are peeled off
const maxUnwrapDepth = 8

var encodedHTTP = regexp.MustCompile(`(?i)^https?%3a`)

// query keys relays use to carry the target
var targetParams = []string{"url", "quest"}

// path segments after which a relay appends the raw target
var targetSegments = []string{"/fetch/", "/raw/"}

// Unwrap returns the original target behind u. Nested relay layers are
// removed one at a time. URLs that are not relay URLs are returned as is.
func (c *Catalog) Unwrap(u string) string {
	cur := strings.TrimSpace(u)
	for i := 0; i < maxUnwrapDepth; i++ {
		next, ok := c.unwrapOnce(cur)
		if !ok || next == cur {
			break
		}
		cur = next
	}
	return cur
}

// IsRelayURL reports whether u points at a known relay
func (c *Catalog) IsRelayURL(u string) bool {
	_, ok := c.unwrapOnce(strings.TrimSpace(u))
	return ok
}

func (c *Catalog) unwrapOnce(u string) (string, bool) {
	for _, p := range c.prefixes {
		if !strings.HasPrefix(u, p) {
			continue
		}
		rest := decodeTarget(u[len(p):])
		if urlkind.IsAbsolute(rest) {
			return rest, true
		}
		break
	}

	parsed, err := url.Parse(u)
	if err != nil || !c.IsRelayHost(parsed.Host) {
		return u, false
	}

	q := parsed.Query()
	for _, key := range targetParams {
		if v := q.Get(key); v != "" && urlkind.IsAbsolute(v) {
			return v, true
		}
	}
	for _, seg := range targetSegments {
		i := strings.Index(u, seg)
		if i < 0 {
			continue
		}
		rest := decodeTarget(u[i+len(seg):])
		if urlkind.IsAbsolute(rest) {
			return rest, true
		}
	}
	return u, false
}

// decodeTarget percent-decodes a remainder only when the whole target was
// encoded, so raw targets keep their own escapes.
func decodeTarget(rest string) string {
	if !encodedHTTP.MatchString(rest) {
		return rest
	}
	if dec, err := url.QueryUnescape(rest); err == nil {
		return dec
	}
	return rest
}
