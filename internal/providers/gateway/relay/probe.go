package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
)

const (
	// DefaultProbeURL is the reference page fetched through each relay
	DefaultProbeURL = "https://example.com/"
	// DefaultProbeTimeout is the ceiling after which a relay counts as offline
	DefaultProbeTimeout = 5 * time.Second
)

// Reacher issues one request through a relay. Any HTTP response means the
// relay is reachable, whatever its status.
type Reacher interface {
	Reach(ctx context.Context, relayID, url string) error
}

// Prober reports relay reachability
type Prober struct {
	reacher Reacher
	catalog *Catalog
	testURL string
	timeout time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// ProberOption configures a Prober
type ProberOption func(*Prober)

// WithProbeURL sets the reference URL fetched through each relay
func WithProbeURL(u string) ProberOption {
	return func(p *Prober) {
		if u != "" {
			p.testURL = u
		}
	}
}

// WithProbeTimeout sets the probe ceiling
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithProbeMetrics records probe results
func WithProbeMetrics(m *monitoring.Metrics) ProberOption {
	return func(p *Prober) { p.metrics = m }
}

// NewProber creates a prober over the catalog
func NewProber(reacher Reacher, catalog *Catalog, logger *zap.Logger, opts ...ProberOption) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{
		reacher: reacher,
		catalog: catalog,
		testURL: DefaultProbeURL,
		timeout: DefaultProbeTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe reports whether the relay answers within the timeout. The request
// is not aborted when the timer wins; its late result is discarded.
func (p *Prober) Probe(ctx context.Context, id string) bool {
	d := p.catalog.BaseFor(id)
	target := d.Wrap(p.testURL)

	// buffered so the late sender never blocks
	done := make(chan error, 1)
	go func() {
		done <- p.reacher.Reach(context.WithoutCancel(ctx), d.ID, target)
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	online := false
	select {
	case err := <-done:
		online = err == nil
		if err != nil {
			p.logger.Debug("relay probe failed", zap.String("relay", d.ID), zap.Error(err))
		}
	case <-timer.C:
		p.logger.Debug("relay probe timed out", zap.String("relay", d.ID), zap.Duration("timeout", p.timeout))
	case <-ctx.Done():
	}

	p.metrics.RecordProbe(d.ID, online)
	return online
}

// ProbeAll probes every relay concurrently
func (p *Prober) ProbeAll(ctx context.Context) map[string]bool {
	relays := p.catalog.List()
	results := make(map[string]bool, len(relays))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range relays {
		d := d
		g.Go(func() error {
			ok := p.Probe(gctx, d.ID)
			mu.Lock()
			results[d.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
