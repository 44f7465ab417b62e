// Package fetch retrieves pages through relays and stylesheets directly.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/http/client"
)

// DirectKey is the breaker key for requests that bypass relays
const DirectKey = "direct"

var (
	// ErrEnvelope is returned when a JSON-wrapped relay answers with
	// something that is not a usable envelope
	ErrEnvelope = errors.New("invalid relay envelope")
	// ErrUpstreamStatus is returned when the envelope reports a failed fetch
	ErrUpstreamStatus = errors.New("relay reported upstream failure")
)

// Getter performs one GET against an upstream
type Getter interface {
	Get(ctx context.Context, key, url string) (*client.Response, error)
}

// Page is a fetched document
type Page struct {
	Body        string
	ContentType string
	StatusCode  int
	// URL is the address that was requested, relay prefix included
	URL string
}

// envelope is the body of JSON-wrapped relays
type envelope struct {
	Contents *string `json:"contents"`
	Status   struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		HTTPCode    int    `json:"http_code"`
	} `json:"status"`
}

// Fetcher fetches documents through relays
type Fetcher struct {
	getter  Getter
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a fetcher
func New(getter Getter, logger *zap.Logger, metrics *monitoring.Metrics) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{getter: getter, logger: logger, metrics: metrics}
}

// ViaRelay fetches target through d. JSON-wrapped relays have their
// envelope removed; only the contents field is returned.
func (f *Fetcher) ViaRelay(ctx context.Context, d relay.Descriptor, target string) (*Page, error) {
	u := d.Wrap(target)
	resp, err := f.get(ctx, d.ID, u)
	if err != nil {
		return nil, err
	}

	if !d.JSONWrapped {
		return &Page{
			Body:        resp.Text(),
			ContentType: resp.ContentType,
			StatusCode:  resp.StatusCode,
			URL:         u,
		}, nil
	}

	page, err := DecodeEnvelope(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s via %s: %w", target, d.ID, err)
	}
	page.URL = u
	return page, nil
}

// Direct fetches u without a relay
func (f *Fetcher) Direct(ctx context.Context, u string) (*Page, error) {
	resp, err := f.get(ctx, DirectKey, u)
	if err != nil {
		return nil, err
	}
	return &Page{
		Body:        resp.Text(),
		ContentType: resp.ContentType,
		StatusCode:  resp.StatusCode,
		URL:         u,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, key, u string) (*client.Response, error) {
	timer := monitoring.NewTimer(f.metrics, key)
	resp, err := f.getter.Get(ctx, key, u)

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	timer.Stop(status)

	if err != nil {
		f.logger.Debug("upstream fetch failed",
			zap.String("upstream", key),
			zap.String("url", u),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// DecodeEnvelope extracts the page from a JSON relay answer
func DecodeEnvelope(body []byte) (*Page, error) {
	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}

	code := env.Status.HTTPCode
	if code != 0 && (code < 200 || code > 299) {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstreamStatus, code)
	}
	if env.Contents == nil {
		return nil, fmt.Errorf("%w: no contents", ErrEnvelope)
	}

	if code == 0 {
		code = 200
	}
	return &Page{
		Body:        *env.Contents,
		ContentType: env.Status.ContentType,
		StatusCode:  code,
	}, nil
}
