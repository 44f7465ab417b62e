// Package rewrite routes the resource references of a fetched page through
// a relay.
package rewrite

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/fetch"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

// DefaultConcurrency bounds parallel stylesheet fetches within one pass
const DefaultConcurrency = 6

// attributes rewritten on every element except anchors
var urlAttributes = []string{"src", "href", "action"}

// SheetFetcher fetches linked stylesheets without a relay
type SheetFetcher interface {
	Direct(ctx context.Context, u string) (*fetch.Page, error)
}

// BlobSink stores rewritten stylesheet text and returns the href that
// serves it
type BlobSink interface {
	Store(contentType string, data []byte) (string, error)
}

// Options configures a Rewriter
type Options struct {
	// Sheets and Blobs enable stylesheet inlining. Without either, linked
	// stylesheets are relay-prefixed like any other resource.
	Sheets      SheetFetcher
	Blobs       BlobSink
	Catalog     *relay.Catalog
	Concurrency int
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
}

// Stats counts what one pass changed
type Stats struct {
	// Base is the URL references were resolved against, after any <base>
	Base              string
	Attributes        int
	Srcset            int
	CSS               int
	Stylesheets       int
	StylesheetsFailed int
}

// Rewriter rewrites documents. It is safe for concurrent use; all per-pass
// state lives in a Context.
type Rewriter struct {
	sheets      SheetFetcher
	blobs       BlobSink
	catalog     *relay.Catalog
	concurrency int
	logger      *zap.Logger
	metrics     *monitoring.Metrics
}

// New creates a rewriter
func New(opts Options) *Rewriter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Rewriter{
		sheets:      opts.Sheets,
		blobs:       opts.Blobs,
		catalog:     opts.Catalog,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// RewriteHTML rewrites markup and serializes it. Any failure returns the
// input unchanged.
func (r *Rewriter) RewriteHTML(ctx context.Context, markup, baseURL string, d relay.Descriptor) string {
	doc, _, err := r.Rewrite(ctx, markup, baseURL, d)
	if err != nil {
		return markup
	}
	out, err := doc.Render()
	if err != nil {
		return markup
	}
	return out
}

// Rewrite parses markup and rewrites it in place, returning the document
// for further edits. baseURL must be absolute.
func (r *Rewriter) Rewrite(ctx context.Context, markup, baseURL string, d relay.Descriptor) (*Document, Stats, error) {
	var stats Stats

	doc, err := Parse(markup)
	if err != nil {
		return nil, stats, err
	}

	rc, err := NewContext(baseURL, d, r.catalog)
	if err != nil {
		return nil, stats, err
	}

	sel := doc.Selection()

	// <base> moves the effective base; honor it, then drop it so nothing
	// re-resolves the rewritten absolute URLs against it
	if href, ok := sel.Find("base[href]").First().Attr("href"); ok {
		if abs, ok := rc.Resolve(href); ok && urlkind.IsHTTP(abs) {
			if u, err := url.Parse(abs); err == nil {
				rc.Base = u
			}
		}
	}
	sel.Find("base").Remove()
	stats.Base = rc.Base.String()

	sheets := sel.Find("link[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return isStylesheet(s)
	})

	sel.Find("[src], [href], [action]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "a" || (goquery.NodeName(s) == "link" && isStylesheet(s)) {
			return
		}
		for _, attr := range urlAttributes {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			if wrapped, ok := rc.Wrap(v); ok {
				s.SetAttr(attr, wrapped)
				stats.Attributes++
			}
		}
	})

	sel.Find("[srcset]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("srcset")
		out, n := rc.RewriteSrcset(v)
		if n > 0 {
			s.SetAttr("srcset", out)
			stats.Srcset += n
		}
	})

	sel.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("style")
		out, n := rc.RewriteCSS(v)
		if n > 0 {
			s.SetAttr("style", out)
			stats.CSS += n
		}
	})

	sel.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.TextNode {
					continue
				}
				out, n := rc.RewriteCSS(c.Data)
				c.Data = out
				stats.CSS += n
			}
		}
	})

	r.rewriteStylesheets(ctx, rc, sheets, &stats)

	r.metrics.AddRewritten("attribute", stats.Attributes)
	r.metrics.AddRewritten("srcset", stats.Srcset)
	r.metrics.AddRewritten("css", stats.CSS)

	return doc, stats, nil
}

// sheetResult is computed concurrently and applied to the tree afterwards;
// goquery nodes are not safe to touch from several goroutines
type sheetResult struct {
	href   string
	inline bool
}

func (r *Rewriter) rewriteStylesheets(ctx context.Context, rc *Context, sheets *goquery.Selection, stats *Stats) {
	if sheets.Length() == 0 {
		return
	}

	results := make([]sheetResult, sheets.Length())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	sheets.Each(func(i int, s *goquery.Selection) {
		raw, _ := s.Attr("href")
		g.Go(func() error {
			results[i] = r.rewriteStylesheet(gctx, rc, raw)
			return nil
		})
	})
	_ = g.Wait()

	sheets.Each(func(i int, s *goquery.Selection) {
		res := results[i]
		if res.href == "" {
			return
		}
		s.SetAttr("href", res.href)
		// the rewritten text no longer matches the original digest
		s.RemoveAttr("integrity")
		s.RemoveAttr("crossorigin")
		if res.inline {
			stats.Stylesheets++
		} else {
			stats.StylesheetsFailed++
		}
	})
}

// rewriteStylesheet fetches one stylesheet directly, sweeps its url()
// references and stores it as a blob. On failure it falls back to a relay
// href so the sheet still loads.
func (r *Rewriter) rewriteStylesheet(ctx context.Context, rc *Context, raw string) sheetResult {
	wrapped, ok := rc.Wrap(raw)
	if !ok {
		return sheetResult{}
	}
	fallback := sheetResult{href: wrapped}

	if r.sheets == nil || r.blobs == nil {
		return fallback
	}

	abs, ok := rc.Resolve(raw)
	if !ok {
		return fallback
	}
	sheetBase, err := url.Parse(abs)
	if err != nil {
		return fallback
	}

	page, err := r.sheets.Direct(ctx, abs)
	if err != nil {
		r.logger.Debug("stylesheet fetch failed, using relay",
			zap.String("url", abs),
			zap.Error(err))
		r.metrics.RecordStylesheet(false)
		return fallback
	}

	// url() inside a stylesheet is relative to the sheet, not the page
	css, n := rc.rewriteCSSAgainst(page.Body, sheetBase)
	href, err := r.blobs.Store("text/css; charset=utf-8", []byte(css))
	if err != nil {
		r.logger.Warn("stylesheet blob store failed", zap.String("url", abs), zap.Error(err))
		r.metrics.RecordStylesheet(false)
		return fallback
	}

	r.metrics.RecordStylesheet(true)
	r.metrics.AddRewritten("stylesheet_url", n)
	return sheetResult{href: href, inline: true}
}

func isStylesheet(s *goquery.Selection) bool {
	for _, tok := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
		if tok == "stylesheet" {
			return true
		}
	}
	return false
}
