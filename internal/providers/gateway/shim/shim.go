// Package shim synthesizes the script injected at the top of every proxied
// page. The script keeps navigation inside the gateway, tolerates history
// APIs that throw inside a sandboxed frame, and routes runtime fetches
// through the active relay.
package shim

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

//go:embed shim.js.tmpl
var source string

// delimiters that cannot collide with JavaScript braces
var tmpl = template.Must(template.New("shim").Delims("<%", "%>").Parse(source))

// ErrInvalidParams is returned when the page URL or relay base is unusable
var ErrInvalidParams = errors.New("invalid shim parameters")

// Params describes one page's shim
type Params struct {
	// OriginalURL is the unwrapped page address; relative navigations
	// resolve against it.
	OriginalURL string
	// RelayBase is prepended to runtime request URLs.
	RelayBase string
	// RelayID names the relay in navigation URLs.
	RelayID string
	// Settings is the opaque settings blob carried on navigation.
	Settings string
	// Prefixes lists every known relay prefix so wrapped URLs can be
	// unwrapped before re-wrapping.
	Prefixes []string
	// LocalPrefixes are gateway paths (blob hrefs) left untouched.
	LocalPrefixes []string
	Debug         bool
}

// literals holds Params encoded as JavaScript literals
type literals struct {
	OriginalURL   string
	RelayBase     string
	RelayID       string
	Settings      string
	Prefixes      string
	LocalPrefixes string
	Debug         string
}

// Build renders the shim for p and verifies it parses
func Build(p Params) (string, error) {
	if !urlkind.IsHTTP(p.OriginalURL) {
		return "", fmt.Errorf("%w: original url %q", ErrInvalidParams, p.OriginalURL)
	}
	if !urlkind.IsHTTP(p.RelayBase) {
		return "", fmt.Errorf("%w: relay base %q", ErrInvalidParams, p.RelayBase)
	}
	if p.Prefixes == nil {
		p.Prefixes = []string{}
	}
	if p.LocalPrefixes == nil {
		p.LocalPrefixes = []string{}
	}

	var lit literals
	var err error
	for _, f := range []struct {
		dst *string
		v   any
	}{
		{&lit.OriginalURL, p.OriginalURL},
		{&lit.RelayBase, p.RelayBase},
		{&lit.RelayID, p.RelayID},
		{&lit.Settings, p.Settings},
		{&lit.Prefixes, p.Prefixes},
		{&lit.LocalPrefixes, p.LocalPrefixes},
		{&lit.Debug, p.Debug},
	} {
		if *f.dst, err = literal(f.v); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, lit); err != nil {
		return "", fmt.Errorf("render shim: %w", err)
	}
	script := buf.String()
	if err := Check(script); err != nil {
		return "", err
	}
	return script, nil
}

// BuildShim renders a shim for a page fetched through the relay at
// relayBase, using the default catalog's prefixes.
func BuildShim(originalURL, relayBase, relayID string) (string, error) {
	return Build(Params{
		OriginalURL: originalURL,
		RelayBase:   relayBase,
		RelayID:     relayID,
		Prefixes:    relay.NewCatalog(nil).Prefixes(),
	})
}

// ForDescriptor fills the relay fields of p from d and catalog
func ForDescriptor(p Params, d relay.Descriptor, catalog *relay.Catalog) Params {
	p.RelayBase = d.AssetPrefix()
	p.RelayID = d.ID
	if catalog != nil {
		p.Prefixes = catalog.Prefixes()
	}
	return p
}

// Check parses script without running it
func Check(script string) error {
	if _, err := goja.Compile("shim.js", script, false); err != nil {
		return fmt.Errorf("shim does not parse: %w", err)
	}
	return nil
}

// literal encodes v as JSON that is safe inside an inline <script>. HTML
// escaping keeps "</script>" out of the output; U+2028 and U+2029 end a
// line in ES5 string literals.
func literal(v any) (string, error) {
	s, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("encode shim literal: %w", err)
	}
	s = strings.ReplaceAll(s, "\u2028", `\u2028`)
	s = strings.ReplaceAll(s, "\u2029", `\u2029`)
	return s, nil
}
