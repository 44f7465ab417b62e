package relay

import (
	"net/url"
	"sort"
	"strings"
)

// Descriptor describes one third-party CORS relay
type Descriptor struct {
	ID   string `json:"id" yaml:"id" toml:"id"`
	Name string `json:"name" yaml:"name" toml:"name"`
	// URLTemplate is the prefix the target URL is appended to
	URLTemplate string `json:"url_template" yaml:"url_template" toml:"url_template"`
	// AssetTemplate is used for sub-resources when set. JSON-wrapped relays
	// need a raw endpoint for images, scripts and fonts.
	AssetTemplate string `json:"asset_template,omitempty" yaml:"asset_template" toml:"asset_template"`
	// JSONWrapped relays answer {"contents": "..."} and take an encoded target
	JSONWrapped bool `json:"json_wrapped" yaml:"json_wrapped" toml:"json_wrapped"`
}

// Wrap builds the relay URL that fetches target as a page
func (d Descriptor) Wrap(target string) string {
	if d.JSONWrapped {
		return d.URLTemplate + url.QueryEscape(target)
	}
	return d.URLTemplate + target
}

// AssetPrefix is the prefix used for sub-resource URLs
func (d Descriptor) AssetPrefix() string {
	if d.AssetTemplate != "" {
		return d.AssetTemplate
	}
	return d.URLTemplate
}

// AssetURL prefixes an absolute URL with the asset prefix
func (d Descriptor) AssetURL(abs string) string {
	return d.AssetPrefix() + abs
}

// Primary is the relay used when an unknown id is requested
const Primary = "allorigins"

// Defaults returns the built-in relay list
func Defaults() []Descriptor {
	return []Descriptor{
		{
			ID:            "allorigins",
			Name:          "AllOrigins",
			URLTemplate:   "https://api.allorigins.win/get?url=",
			AssetTemplate: "https://api.allorigins.win/raw?url=",
			JSONWrapped:   true,
		},
		{
			ID:          "corsproxy",
			Name:        "corsproxy.io",
			URLTemplate: "https://corsproxy.io/?",
		},
		{
			ID:          "codetabs",
			Name:        "CodeTabs",
			URLTemplate: "https://api.codetabs.com/v1/proxy?quest=",
		},
		{
			ID:          "thingproxy",
			Name:        "ThingProxy",
			URLTemplate: "https://thingproxy.freeboard.io/fetch/",
		},
		{
			ID:          "cors-anywhere",
			Name:        "CORS Anywhere",
			URLTemplate: "https://cors-anywhere.herokuapp.com/",
		},
	}
}

// Catalog is the immutable set of relays known to the gateway
type Catalog struct {
	order    []string
	byID     map[string]Descriptor
	primary  string
	prefixes []string
	hostSet  map[string]bool
}

// NewCatalog builds a catalog. The first descriptor is the primary unless
// one carries the Primary id.
func NewCatalog(descriptors []Descriptor) *Catalog {
	if len(descriptors) == 0 {
		descriptors = Defaults()
	}

	c := &Catalog{byID: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.ID == "" || d.URLTemplate == "" {
			continue
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if _, dup := c.byID[d.ID]; !dup {
			c.order = append(c.order, d.ID)
		}
		c.byID[d.ID] = d
	}
	if len(c.order) == 0 {
		return NewCatalog(Defaults())
	}

	c.primary = c.order[0]
	if _, ok := c.byID[Primary]; ok {
		c.primary = Primary
	}
	c.index()
	return c
}

// WithPrimary returns a copy of the catalog whose fallback relay is id.
// Unknown ids leave the primary unchanged.
func (c *Catalog) WithPrimary(id string) *Catalog {
	if _, ok := c.byID[id]; !ok {
		return c
	}
	return &Catalog{
		order:    c.order,
		byID:     c.byID,
		primary:  id,
		prefixes: c.prefixes,
		hostSet:  c.hostSet,
	}
}

// BaseFor returns the relay with the given id, or the primary relay
func (c *Catalog) BaseFor(id string) Descriptor {
	if d, ok := c.byID[id]; ok {
		return d
	}
	return c.byID[c.primary]
}

// Lookup returns the relay with the given id
func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// PrimaryID returns the id of the fallback relay
func (c *Catalog) PrimaryID() string {
	return c.primary
}

// List returns the relays in declaration order
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Prefixes returns every known relay prefix, longest first so that a
// prefix never shadows a longer one sharing its start.
func (c *Catalog) Prefixes() []string {
	return append([]string(nil), c.prefixes...)
}

// IsRelayHost reports whether host belongs to a known relay
func (c *Catalog) IsRelayHost(host string) bool {
	return c.hostSet[strings.ToLower(host)]
}

func (c *Catalog) index() {
	seen := make(map[string]bool)
	c.hostSet = make(map[string]bool)
	for _, id := range c.order {
		d := c.byID[id]
		for _, p := range []string{d.URLTemplate, d.AssetTemplate} {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			c.prefixes = append(c.prefixes, p)
			if u, err := url.Parse(p); err == nil && u.Host != "" {
				c.hostSet[strings.ToLower(u.Host)] = true
			}
		}
	}
	sort.SliceStable(c.prefixes, func(i, j int) bool {
		return len(c.prefixes[i]) > len(c.prefixes[j])
	})
}
