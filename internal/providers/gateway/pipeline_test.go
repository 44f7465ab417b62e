package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/fetch"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/http/client"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]*fetch.Page
	errs    map[string]error
	gates   map[string]chan struct{}
	started chan string
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:   make(map[string]*fetch.Page),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
}

func (f *fakeFetcher) page(target, body string) {
	f.pages[target] = &fetch.Page{Body: body, ContentType: "text/html; charset=utf-8", StatusCode: 200}
}

func (f *fakeFetcher) ViaRelay(ctx context.Context, d relay.Descriptor, target string) (*fetch.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	gate := f.gates[target]
	page, err := f.pages[target], f.errs[target]
	f.mu.Unlock()

	f.started <- target
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.New("connection refused")
	}
	return page, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newPipeline(t *testing.T, f PageFetcher, opts Options) *Pipeline {
	opts.Fetcher = f
	opts.Logger = zaptest.NewLogger(t)
	opts.Metrics = monitoring.NewMetrics()
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func rendered(t *testing.T, frame *Frame) string {
	t.Helper()
	return frame.State().Content
}

func TestLoadRewritesAndInjects(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://example.com/page", `<html><head><title>Old</title></head>`+
		`<body><img src="/logo.png"><a href="/next">next</a></body></html>`)
	p := newPipeline(t, f, Options{LocalPrefixes: []string{"/blob/"}})

	frame := NewFrame(true)
	res, err := p.Load(context.Background(), Request{Relay: "corsproxy", TargetURL: "https://example.com/page"}, frame)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", res.TargetURL)
	assert.Equal(t, "corsproxy", res.Relay)
	assert.Equal(t, ModeDocument, res.Mode)
	assert.Equal(t, "example.com", res.Title)
	assert.False(t, res.FellBack)
	assert.Equal(t, 1, res.Stats.Attributes)

	out := rendered(t, frame)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))

	doc, err := htmlquery.Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "https://corsproxy.io/?https://example.com/logo.png",
		htmlquery.SelectAttr(htmlquery.FindOne(doc, "//img"), "src"))
	assert.Equal(t, "/next", htmlquery.SelectAttr(htmlquery.FindOne(doc, "//a"), "href"))
	assert.Equal(t, "example.com", htmlquery.InnerText(htmlquery.FindOne(doc, "//title")))

	first := htmlquery.FindOne(doc, "//head/*[1]")
	require.NotNil(t, first)
	assert.Equal(t, "script", first.Data)
	assert.Contains(t, htmlquery.InnerText(first), "__auroraNavigate")
}

func TestLoadShimFollowsBaseTag(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://example.com/page", `<html><head><base href="https://docs.example.net/v2/"></head>`+
		`<body><img src="logo.png"><a href="intro">intro</a></body></html>`)
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	res, err := p.Load(context.Background(), Request{Relay: "corsproxy", TargetURL: "https://example.com/page"}, frame)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.net/v2/", res.Stats.Base)

	doc, err := htmlquery.Parse(strings.NewReader(rendered(t, frame)))
	require.NoError(t, err)
	assert.Equal(t, "https://corsproxy.io/?https://docs.example.net/v2/logo.png",
		htmlquery.SelectAttr(htmlquery.FindOne(doc, "//img"), "src"))
	script := htmlquery.InnerText(htmlquery.FindOne(doc, "//head/script"))
	assert.Contains(t, script, `"https://docs.example.net/v2/"`)
	assert.NotContains(t, script, `"https://example.com/page"`)
}

func TestLoadJSONRelayExtractsContents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contents":"<html><head></head><body><img src=\"a.png\"></body></html>",` +
			`"status":{"content_type":"text/html","http_code":200}}`))
	}))
	defer srv.Close()

	catalog := relay.NewCatalog([]relay.Descriptor{{
		ID:            "json",
		URLTemplate:   srv.URL + "/get?url=",
		AssetTemplate: srv.URL + "/raw?url=",
		JSONWrapped:   true,
	}})
	fetcher := fetch.New(client.NewClient(client.DefaultConfig()), zaptest.NewLogger(t), nil)
	p := newPipeline(t, fetcher, Options{Catalog: catalog})

	frame := NewFrame(true)
	_, err := p.Load(context.Background(), Request{Relay: "json", TargetURL: "https://example.com/dir/"}, frame)
	require.NoError(t, err)

	out := rendered(t, frame)
	assert.NotContains(t, out, `"contents"`)
	assert.NotContains(t, out, "http_code")

	doc, err := htmlquery.Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/raw?url=https://example.com/dir/a.png",
		htmlquery.SelectAttr(htmlquery.FindOne(doc, "//img"), "src"))
}

func TestLoadSchemeFallback(t *testing.T) {
	f := newFakeFetcher()
	f.errs["https://example.org"] = errors.New("tls handshake failure")
	f.page("http://example.org", `<html><head></head><body><img src="/a.png"></body></html>`)
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	res, err := p.Load(context.Background(), Request{Relay: "corsproxy", TargetURL: "example.org"}, frame)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.org", "http://example.org"}, f.Calls())
	assert.True(t, res.FellBack)
	assert.Equal(t, "http://example.org", res.TargetURL)

	doc, err := htmlquery.Parse(strings.NewReader(rendered(t, frame)))
	require.NoError(t, err)
	assert.Equal(t, "https://corsproxy.io/?http://example.org/a.png",
		htmlquery.SelectAttr(htmlquery.FindOne(doc, "//img"), "src"))
	assert.Contains(t, htmlquery.InnerText(htmlquery.FindOne(doc, "//head/script")), `"http://example.org"`)
}

func TestLoadFailureRendersError(t *testing.T) {
	f := newFakeFetcher()
	f.errs["https://down.test/"] = errors.New("relay said <script>alert(1)</script>")
	f.errs["http://down.test/"] = errors.New("no route")
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	_, err := p.Load(context.Background(), Request{Relay: "corsproxy", TargetURL: "https://down.test/"}, frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route")

	out := rendered(t, frame)
	assert.Contains(t, out, "Failed to load")
	assert.Contains(t, out, "https://down.test/")
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, ModeDocument, frame.State().Mode)
}

func TestLoadHTTPTargetDoesNotFallBack(t *testing.T) {
	f := newFakeFetcher()
	p := newPipeline(t, f, Options{})

	_, err := p.Load(context.Background(), Request{TargetURL: "http://plain.test/"}, NewFrame(true))
	require.Error(t, err)
	assert.Equal(t, []string{"http://plain.test/"}, f.Calls())
}

func TestLoadUnwrapsRelayTarget(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://example.com/inner", "<p>inner</p>")
	p := newPipeline(t, f, Options{})

	res, err := p.Load(context.Background(), Request{
		Relay:     "corsproxy",
		TargetURL: "https://api.allorigins.win/get?url=https%3A%2F%2Fcorsproxy.io%2F%3Fhttps%3A%2F%2Fexample.com%2Finner",
	}, NewFrame(true))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/inner"}, f.Calls())
	assert.Equal(t, "https://example.com/inner", res.TargetURL)
}

func TestLoadDataURL(t *testing.T) {
	f := newFakeFetcher()
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	res, err := p.Load(context.Background(), Request{TargetURL: "data:text/html,<p>hi</p>"}, frame)
	require.NoError(t, err)

	assert.Equal(t, ModeSource, res.Mode)
	assert.Equal(t, ModeSource, frame.State().Mode)
	assert.Equal(t, "data:text/html,<p>hi</p>", frame.State().Content)
	assert.Empty(t, f.Calls())
}

func TestLoadBlocklist(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://example.com/public", "<p>ok</p>")
	p := newPipeline(t, f, Options{Blocklist: []string{"*.ads.test", "example.com/private/**"}})

	tests := []struct {
		target  string
		blocked bool
	}{
		{"https://tracker.ads.test/pixel", true},
		{"https://example.com/private/a/b", true},
		{"https://example.com/public", false},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			frame := NewFrame(true)
			_, err := p.Load(context.Background(), Request{TargetURL: tt.target}, frame)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrBlocked)
				assert.Contains(t, frame.State().Content, "target blocked")
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Equal(t, []string{"https://example.com/public"}, f.Calls())
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(Options{Fetcher: newFakeFetcher(), Blocklist: []string{"[unclosed"}})
	assert.Error(t, err)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestLoadWriteBlockedFallsBackToSrcdoc(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://example.com/", "<p>sandboxed</p>")
	p := newPipeline(t, f, Options{})

	frame := NewFrame(false)
	res, err := p.Load(context.Background(), Request{TargetURL: "https://example.com/"}, frame)
	require.NoError(t, err)

	assert.Equal(t, ModeSrcdoc, res.Mode)
	assert.Equal(t, ModeSrcdoc, frame.State().Mode)
	assert.Contains(t, frame.State().Content, "sandboxed")
}

func TestLoadStaleGenerationDiscarded(t *testing.T) {
	f := newFakeFetcher()
	f.page("https://slow.test/", "<p>slow</p>")
	f.page("https://fast.test/", "<p>fast</p>")
	gate := make(chan struct{})
	f.gates["https://slow.test/"] = gate
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	slowErr := make(chan error, 1)
	go func() {
		_, err := p.Load(context.Background(), Request{TargetURL: "https://slow.test/"}, frame)
		slowErr <- err
	}()

	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never started")
	}

	_, err := p.Load(context.Background(), Request{TargetURL: "https://fast.test/"}, frame)
	require.NoError(t, err)

	close(gate)
	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrStaleGeneration)
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never finished")
	}

	assert.Contains(t, frame.State().Content, "fast")
	assert.NotContains(t, frame.State().Content, "slow")
}

func TestLoadCancelledLeavesFrameAlone(t *testing.T) {
	f := newFakeFetcher()
	f.gates["https://hang.test/"] = make(chan struct{})
	p := newPipeline(t, f, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	frame := NewFrame(true)
	done := make(chan error, 1)
	go func() {
		_, err := p.Load(ctx, Request{TargetURL: "https://hang.test/"}, frame)
		done <- err
	}()

	<-f.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("load ignored cancellation")
	}
	assert.Equal(t, ModeEmpty, frame.State().Mode)
	assert.Len(t, f.Calls(), 1)
}

func TestLoadNonHTMLShownAsText(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://api.test/data.json"] = &fetch.Page{
		Body:        `{"name":"<b>bold</b>"}`,
		ContentType: "application/json",
	}
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	_, err := p.Load(context.Background(), Request{TargetURL: "https://api.test/data.json"}, frame)
	require.NoError(t, err)

	out := frame.State().Content
	assert.Contains(t, out, "&lt;b&gt;bold&lt;/b&gt;")
	assert.NotContains(t, out, "__auroraNavigate")
}

func TestLoadSniffsUndeclaredHTML(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://bare.test/"] = &fetch.Page{Body: `<!DOCTYPE html><html><body><img src="x.png"></body></html>`}
	p := newPipeline(t, f, Options{})

	frame := NewFrame(true)
	res, err := p.Load(context.Background(), Request{Relay: "corsproxy", TargetURL: "https://bare.test/"}, frame)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Attributes)
	assert.Contains(t, frame.State().Content, "https://corsproxy.io/?https://bare.test/x.png")
}

func TestLoadEmptyTarget(t *testing.T) {
	p := newPipeline(t, newFakeFetcher(), Options{})
	frame := NewFrame(true)

	_, err := p.Load(context.Background(), Request{TargetURL: "  "}, frame)
	assert.ErrorIs(t, err, ErrEmptyTarget)
	assert.Equal(t, uint64(0), frame.Generation())
}

func TestFrameGenerations(t *testing.T) {
	frame := NewFrame(true)

	g1 := frame.Claim()
	g2 := frame.Claim()
	assert.ErrorIs(t, frame.WriteDocument(g1, "old"), ErrStaleGeneration)
	require.NoError(t, frame.WriteDocument(g2, "new"))
	assert.Equal(t, "new", frame.State().Content)

	frame.Reset()
	assert.Equal(t, ModeEmpty, frame.State().Mode)
	assert.ErrorIs(t, frame.SetSrcdoc(g2, "late"), ErrStaleGeneration)
	assert.Equal(t, g2+1, frame.Generation())
}
