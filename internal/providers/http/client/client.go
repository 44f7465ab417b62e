package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/resilience"
)

// DefaultUserAgent is sent with every upstream request
const DefaultUserAgent = "Mozilla/5.0 (compatible; AuroraGateway/1.0)"

// DefaultMaxBodySize caps how much of an upstream body is read
const DefaultMaxBodySize = 16 << 20

// Config configures the upstream client
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is requests per second across all upstreams, 0 for unlimited
	RateLimit   float64
	MaxBodySize int64
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		Timeout:      45 * time.Second,
		UserAgent:    DefaultUserAgent,
		RetryMax:     1,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		MaxBodySize:  DefaultMaxBodySize,
	}
}

// Client wraps resty with rate limiting and one circuit breaker per upstream
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Set
	Mu       sync.RWMutex

	maxBody int64
}

// Response is a fully read, decompressed upstream response
type Response struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	ContentType string
	URL         string
}

// Text returns the body transcoded to UTF-8
func (r *Response) Text() string {
	return DecodeText(r.Body, r.ContentType)
}

// StatusError is returned for non-2xx upstream answers
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d for %s", e.StatusCode, e.URL)
}

// ErrBodyTooLarge is returned when a body exceeds the configured limit
var ErrBodyTooLarge = errors.New("response body too large")

// NewClient creates the upstream client
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}

	// pooled transport from retryablehttp; retries are driven by resty below
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// bodies are streamed, so only transport errors are retried
			if err == nil {
				return false
			}
			ctx := context.Background()
			if resp != nil && resp.Request != nil {
				ctx = resp.Request.Context()
			}
			retry, _ := retryablehttp.DefaultRetryPolicy(ctx, nil, err)
			return retry
		})

	restyClient.SetTransport(NewDecompressor(retryClient.HTTPClient.Transport))

	breakers := resilience.NewSet(resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			// Relays are flaky by nature, trip only on a clear pattern
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		IsFailure: isUpstreamFailure,
	})

	c := &Client{
		Resty:    restyClient,
		Limiter:  rate.NewLimiter(rate.Inf, 0),
		Breakers: breakers,
		maxBody:  cfg.MaxBodySize,
	}
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// isUpstreamFailure counts server errors and transport failures against a
// relay. Client errors describe the target, and cancellation describes us.
func isUpstreamFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// SetHeader adds default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// SetTimeout configures request timeout
func (c *Client) SetTimeout(duration time.Duration) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetTimeout(duration)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates a new request after waiting for the rate limiter
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.Mu.RLock()
	limiter := c.Limiter
	c.Mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx).SetDoNotParseResponse(true), nil
}

// Get fetches url through the breaker named key. Non-2xx answers are
// returned as *StatusError together with the response.
func (c *Client) Get(ctx context.Context, key, url string) (*Response, error) {
	return resilience.Do(c.Breakers.Get(key), func() (*Response, error) {
		return c.get(ctx, url)
	})
}

func (c *Client) get(ctx context.Context, url string) (*Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w", url, ErrBodyTooLarge)
	}

	out := &Response{
		StatusCode:  resp.StatusCode(),
		Header:      resp.Header(),
		Body:        body,
		ContentType: resp.Header().Get("Content-Type"),
		URL:         url,
	}
	if out.StatusCode < 200 || out.StatusCode > 299 {
		return out, &StatusError{StatusCode: out.StatusCode, URL: url}
	}
	return out, nil
}

// Reach issues a request and reports only transport failures. Any HTTP
// answer, whatever its status, counts as reachable. The breaker is not
// consulted so probes can observe a relay that recovered.
func (c *Client) Reach(ctx context.Context, key, url string) error {
	req, err := c.Request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.Get(url)
	if err != nil {
		return fmt.Errorf("reach %s via %s: %w", url, key, err)
	}
	if raw := resp.RawBody(); raw != nil {
		_ = raw.Close()
	}
	return nil
}

// BreakerStates returns the circuit state per upstream
func (c *Client) BreakerStates() map[string]resilience.State {
	return c.Breakers.States()
}
