// Package gateway loads remote pages through relays into frames.
//
// A load unwraps relay-prefixed targets, fetches through the chosen relay
// (retrying once over http when https fails), rewrites the document so its
// resources also go through the relay, injects the runtime shim and writes
// the result into a Target. Failures end as a message inside that target.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"html"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/fetch"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/rewrite"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/shim"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

var (
	// ErrEmptyTarget is returned for a blank target URL
	ErrEmptyTarget = errors.New("empty target url")
	// ErrBlocked is returned for targets matching the blocklist
	ErrBlocked = errors.New("target blocked")
	// ErrUnsupportedScheme is returned for targets that are neither http(s) nor data
	ErrUnsupportedScheme = errors.New("unsupported target scheme")
)

// load outcomes recorded in metrics
const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeFailed   = "failed"
	outcomeBlocked  = "blocked"
	outcomeStale    = "stale"
	outcomeData     = "data"
	outcomeText     = "text"
)

// PageFetcher fetches a target through a relay
type PageFetcher interface {
	ViaRelay(ctx context.Context, d relay.Descriptor, target string) (*fetch.Page, error)
}

// Request is one navigation: a target fetched through a relay
type Request struct {
	Relay     string
	TargetURL string
	// Settings is the opaque blob carried on in-page navigation
	Settings string
	Debug    bool
}

// Result describes a completed load
type Result struct {
	// TargetURL is the address finally fetched, after unwrapping and any
	// scheme fallback
	TargetURL string
	Relay     string
	Title     string
	Mode      RenderMode
	FellBack  bool
	Stats     rewrite.Stats
	Duration  time.Duration
}

// Options configures a Pipeline
type Options struct {
	Catalog  *relay.Catalog
	Fetcher  PageFetcher
	Rewriter *rewrite.Rewriter
	// Blocklist holds doublestar patterns matched against the target host,
	// or against host and path when the pattern contains a slash
	Blocklist []string
	// LocalPrefixes are gateway paths the shim must not relay
	LocalPrefixes []string
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
}

// Pipeline runs loads. It is safe for concurrent use.
type Pipeline struct {
	catalog       *relay.Catalog
	fetcher       PageFetcher
	rewriter      *rewrite.Rewriter
	blocklist     []string
	localPrefixes []string
	sanitizer     *bluemonday.Policy
	logger        *zap.Logger
	metrics       *monitoring.Metrics
}

// New creates a pipeline
func New(opts Options) (*Pipeline, error) {
	if opts.Catalog == nil {
		opts.Catalog = relay.NewCatalog(nil)
	}
	if opts.Fetcher == nil {
		return nil, errors.New("pipeline requires a fetcher")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Rewriter == nil {
		opts.Rewriter = rewrite.New(rewrite.Options{
			Catalog: opts.Catalog,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		})
	}

	blocklist := make([]string, 0, len(opts.Blocklist))
	for _, p := range opts.Blocklist {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid blocklist pattern %q", p)
		}
		blocklist = append(blocklist, p)
	}

	return &Pipeline{
		catalog:       opts.Catalog,
		fetcher:       opts.Fetcher,
		rewriter:      opts.Rewriter,
		blocklist:     blocklist,
		localPrefixes: opts.LocalPrefixes,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}, nil
}

// Catalog returns the relay catalog the pipeline resolves ids against
func (p *Pipeline) Catalog() *relay.Catalog {
	return p.catalog
}

// Load runs one navigation into t. Fetch failures are rendered into t and
// also returned; a superseded load returns ErrStaleGeneration and leaves t
// alone.
func (p *Pipeline) Load(ctx context.Context, req Request, t Target) (*Result, error) {
	target := strings.TrimSpace(req.TargetURL)
	if target == "" {
		return nil, ErrEmptyTarget
	}

	start := time.Now()
	gen := t.Claim()
	d := p.catalog.BaseFor(req.Relay)
	res := &Result{Relay: d.ID}

	// a relay URL submitted as a target would proxy the proxy
	if unwrapped := p.catalog.Unwrap(target); unwrapped != target {
		p.logger.Debug("unwrapped relay target",
			zap.String("from", target),
			zap.String("to", unwrapped))
		target = unwrapped
	}

	if urlkind.Classify(target) == urlkind.Data {
		res.TargetURL = target
		res.Mode = ModeSource
		if err := t.SetSource(gen, target); err != nil {
			return nil, p.stale(d.ID, err)
		}
		p.finish(res, outcomeData, start)
		return res, nil
	}

	target = urlkind.Normalize(target)
	res.TargetURL = target
	if !urlkind.IsHTTP(target) {
		err := fmt.Errorf("%w: %s", ErrUnsupportedScheme, target)
		return nil, p.fail(res, t, gen, err, start)
	}
	if p.blocked(target) {
		err := fmt.Errorf("%w: %s", ErrBlocked, target)
		p.metrics.RecordLoad(d.ID, outcomeBlocked, time.Since(start))
		if werr := p.renderError(t, gen, target, err); werr != nil {
			return nil, p.stale(d.ID, werr)
		}
		return nil, err
	}

	page, final, err := p.fetch(ctx, d, target)
	if err != nil {
		if ctx.Err() != nil {
			// the tab went away; nobody is left to read a message
			return nil, ctx.Err()
		}
		return nil, p.fail(res, t, gen, err, start)
	}
	res.TargetURL = final
	res.FellBack = final != target

	doc, asText := p.transform(ctx, req, d, page, final, res)

	res.Mode = ModeDocument
	switch err := t.WriteDocument(gen, doc); {
	case errors.Is(err, ErrWriteBlocked):
		res.Mode = ModeSrcdoc
		if err := t.SetSrcdoc(gen, doc); err != nil {
			return nil, p.stale(d.ID, err)
		}
	case err != nil:
		return nil, p.stale(d.ID, err)
	}

	outcome := outcomeOK
	if res.FellBack {
		outcome = outcomeFallback
	}
	if asText {
		outcome = outcomeText
	}
	p.finish(res, outcome, start)

	p.logger.Info("page loaded",
		zap.String("url", res.TargetURL),
		zap.String("relay", d.ID),
		zap.Bool("fallback", res.FellBack),
		zap.Int("attributes", res.Stats.Attributes),
		zap.Int("stylesheets", res.Stats.Stylesheets),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// fetch tries target and, when an https fetch fails, the same URL over http
func (p *Pipeline) fetch(ctx context.Context, d relay.Descriptor, target string) (*fetch.Page, string, error) {
	page, err := p.fetcher.ViaRelay(ctx, d, target)
	if err == nil {
		return page, target, nil
	}
	if ctx.Err() != nil || !strings.HasPrefix(strings.ToLower(target), "https://") {
		return nil, target, err
	}

	fallback := "http://" + target[len("https://"):]
	p.logger.Debug("https fetch failed, retrying over http",
		zap.String("url", target),
		zap.String("relay", d.ID),
		zap.Error(err))

	page, ferr := p.fetcher.ViaRelay(ctx, d, fallback)
	p.metrics.RecordSchemeFallback(d.ID, ferr == nil)
	if ferr != nil {
		return nil, target, fmt.Errorf("%w (http fallback: %v)", err, ferr)
	}
	return page, fallback, nil
}

// transform rewrites page into the final document. Rewriter failures fall
// back to string-level shim injection on the untouched markup. Bodies that
// are not HTML come back as an escaped text view, reported by asText.
func (p *Pipeline) transform(ctx context.Context, req Request, d relay.Descriptor, page *fetch.Page, base string, res *Result) (doc string, asText bool) {
	host := urlkind.Hostname(base)
	res.Title = host

	if !isHTML(page) {
		return textDocument(host, page.Body), true
	}

	tree, stats, rerr := p.rewriter.Rewrite(ctx, page.Body, base, d)
	// relative links in the page resolve where its resources did
	pageBase := base
	if rerr == nil {
		res.Stats = stats
		if stats.Base != "" {
			pageBase = stats.Base
		}
	}

	script, err := shim.Build(shim.ForDescriptor(shim.Params{
		OriginalURL:   pageBase,
		Settings:      req.Settings,
		LocalPrefixes: p.localPrefixes,
		Debug:         req.Debug,
	}, d, p.catalog))
	if err != nil {
		// a page without the shim still renders; navigation just escapes it
		p.logger.Warn("shim build failed", zap.String("url", base), zap.Error(err))
		script = ""
	}

	fallback := func(err error) string {
		p.logger.Warn("rewrite failed, serving original markup",
			zap.String("url", base),
			zap.Error(err))
		if script == "" {
			return page.Body
		}
		return rewrite.InjectScriptString(page.Body, script)
	}

	if rerr != nil {
		return fallback(rerr), false
	}

	if script != "" {
		tree.InjectScript(script)
	}
	if host != "" {
		tree.SetTitle(host)
	}

	out, err := tree.Render()
	if err != nil {
		return fallback(err), false
	}
	return out, false
}

func (p *Pipeline) blocked(target string) bool {
	if len(p.blocklist) == 0 {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	hostPath := host + u.EscapedPath()
	for _, pattern := range p.blocklist {
		subject := host
		if strings.Contains(pattern, "/") {
			subject = hostPath
		}
		if ok, _ := doublestar.Match(pattern, subject); ok {
			return true
		}
	}
	return false
}

// fail renders err into t and returns it
func (p *Pipeline) fail(res *Result, t Target, gen uint64, err error, start time.Time) error {
	p.metrics.RecordLoad(res.Relay, outcomeFailed, time.Since(start))
	p.logger.Warn("page load failed",
		zap.String("url", res.TargetURL),
		zap.String("relay", res.Relay),
		zap.Error(err))

	if werr := p.renderError(t, gen, res.TargetURL, err); werr != nil {
		return p.stale(res.Relay, werr)
	}
	return err
}

func (p *Pipeline) stale(relayID string, err error) error {
	if errors.Is(err, ErrStaleGeneration) {
		p.metrics.IncStaleWrites()
		p.metrics.RecordLoad(relayID, outcomeStale, 0)
	}
	return err
}

func (p *Pipeline) finish(res *Result, outcome string, start time.Time) {
	res.Duration = time.Since(start)
	p.metrics.RecordLoad(res.Relay, outcome, res.Duration)
}

const errorPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Failed to load</title>` +
	`<style>body{font-family:system-ui,sans-serif;margin:2rem;color:#333}pre{white-space:pre-wrap}</style>` +
	`</head><body><h1>Failed to load</h1><p>%s</p><pre>%s</pre></body></html>`

// renderError writes a plain-text failure message into t
func (p *Pipeline) renderError(t Target, gen uint64, target string, cause error) error {
	doc := fmt.Sprintf(errorPage,
		p.sanitizer.Sanitize(target),
		p.sanitizer.Sanitize(cause.Error()))

	err := t.WriteDocument(gen, doc)
	if errors.Is(err, ErrWriteBlocked) {
		err = t.SetSrcdoc(gen, doc)
	}
	return err
}

const textPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head>` +
	`<body><pre style="white-space:pre-wrap;word-break:break-all">%s</pre></body></html>`

func textDocument(title, body string) string {
	return fmt.Sprintf(textPage, html.EscapeString(title), html.EscapeString(body))
}

// isHTML trusts a declared HTML type and otherwise sniffs the body
func isHTML(page *fetch.Page) bool {
	if mt, _, err := mime.ParseMediaType(page.ContentType); err == nil {
		switch mt {
		case "text/html", "application/xhtml+xml":
			return true
		}
	}
	return mimetype.Detect([]byte(page.Body)).Is("text/html")
}
