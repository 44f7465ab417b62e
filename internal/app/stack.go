package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/blob"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/config"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/fetch"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/rewrite"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/http/client"
)

// Stack is the set of components one gateway process runs on
type Stack struct {
	Client   *client.Client
	Catalog  *relay.Catalog
	Fetcher  *fetch.Fetcher
	Blobs    *blob.Store
	Rewriter *rewrite.Rewriter
	Pipeline *gateway.Pipeline
	Prober   *relay.Prober
}

// Build wires the stack from configuration
func Build(gw config.GatewayConfig, storage config.StorageConfig, logger *zap.Logger, metrics *monitoring.Metrics) (*Stack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := relay.LoadCatalog(gw.RelayCatalog)
	if err != nil {
		return nil, err
	}
	if gw.DefaultRelay != "" {
		if _, ok := catalog.Lookup(gw.DefaultRelay); !ok {
			logger.Warn("default relay not in catalog, keeping primary",
				zap.String("relay", gw.DefaultRelay),
				zap.String("primary", catalog.PrimaryID()))
		}
		catalog = catalog.WithPrimary(gw.DefaultRelay)
	}

	cfg := client.DefaultConfig()
	if gw.FetchTimeout > 0 {
		cfg.Timeout = gw.FetchTimeout
	}
	if gw.UserAgent != "" {
		cfg.UserAgent = gw.UserAgent
	}
	cfg.RateLimit = gw.UpstreamRPS
	httpClient := client.NewClient(cfg)

	fetcher := fetch.New(httpClient, logger.Named("fetch"), metrics)
	blobs := blob.NewStore(blob.Config{TTL: storage.BlobTTL, MaxBytes: storage.BlobMaxBytes}, logger.Named("blob"), metrics)
	rewriter := rewrite.New(rewrite.Options{
		Sheets:      fetcher,
		Blobs:       blobs,
		Catalog:     catalog,
		Concurrency: gw.SheetConcurrency,
		Logger:      logger.Named("rewrite"),
		Metrics:     metrics,
	})

	pipeline, err := gateway.New(gateway.Options{
		Catalog:       catalog,
		Fetcher:       fetcher,
		Rewriter:      rewriter,
		Blocklist:     gw.Blocklist,
		LocalPrefixes: []string{blob.PathPrefix},
		Logger:        logger.Named("pipeline"),
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	prober := relay.NewProber(httpClient, catalog, logger.Named("probe"),
		relay.WithProbeURL(gw.ProbeURL),
		relay.WithProbeTimeout(gw.ProbeTimeout),
		relay.WithProbeMetrics(metrics))

	return &Stack{
		Client:   httpClient,
		Catalog:  catalog,
		Fetcher:  fetcher,
		Blobs:    blobs,
		Rewriter: rewriter,
		Pipeline: pipeline,
		Prober:   prober,
	}, nil
}
