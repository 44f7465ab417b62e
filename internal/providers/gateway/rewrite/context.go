package rewrite

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

// Context is the state of one rewrite pass. Its cache lives only as long
// as the pass and is never shared between documents.
type Context struct {
	Base  *url.URL
	Relay relay.Descriptor

	catalog *relay.Catalog

	mu    sync.Mutex
	cache map[string]string
}

// NewContext creates a pass context. catalog may be nil; when set, values
// that already point at a relay are unwrapped before being wrapped again.
func NewContext(base string, d relay.Descriptor, catalog *relay.Catalog) (*Context, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base %q: %w", base, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base %q is not absolute", base)
	}
	return &Context{
		Base:    u,
		Relay:   d,
		catalog: catalog,
		cache:   make(map[string]string),
	}, nil
}

// Resolve returns raw resolved against the pass base
func (c *Context) Resolve(raw string) (string, bool) {
	return urlkind.ResolveURL(raw, c.Base)
}

// Wrap turns a reference into a relay URL. It reports false for values
// that must stay untouched.
func (c *Context) Wrap(raw string) (string, bool) {
	return c.wrapAgainst(raw, c.Base)
}

func (c *Context) wrapAgainst(raw string, base *url.URL) (string, bool) {
	v := strings.TrimSpace(raw)
	if urlkind.IsSkippable(v) {
		return "", false
	}
	if c.catalog != nil {
		v = c.catalog.Unwrap(v)
	}
	abs, ok := urlkind.ResolveURL(v, base)
	if !ok || !urlkind.IsHTTP(abs) {
		return "", false
	}
	return c.Relay.AssetURL(abs), true
}

// cachedWrap dedups repeated references within the pass
func (c *Context) cachedWrap(raw string, base *url.URL) (string, bool) {
	key := base.String() + "\x00" + raw

	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return v, v != ""
	}
	c.mu.Unlock()

	v, ok := c.wrapAgainst(raw, base)
	if !ok {
		v = ""
	}

	c.mu.Lock()
	c.cache[key] = v
	c.mu.Unlock()
	return v, ok
}
