// Command aurora runs and inspects the Aurora Gateway from a terminal.
//
//	aurora serve --port 8000
//	aurora fetch example.com --relay corsproxy
//	aurora fetch https://example.com/ --links
//	aurora probe
//	aurora shim https://example.com/docs/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/config"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/logging"
)

// options shared by every subcommand
type options struct {
	relay    string
	catalog  string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "aurora",
		Short: "HTML rewriting gateway over public CORS relays",
		Long: `Aurora loads pages through third-party CORS relays and rewrites them so
their links, images, stylesheets and runtime requests stay inside the relay.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVarP(&opts.relay, "relay", "r", "", "relay id (default from DEFAULT_RELAY)")
	root.PersistentFlags().StringVar(&opts.catalog, "relays", "", "relay catalog file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for stderr output")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newFetchCmd(opts))
	root.AddCommand(newProbeCmd(opts))
	root.AddCommand(newShimCmd(opts))
	return root
}

func (o *options) load() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.relay != "" {
		cfg.Gateway.DefaultRelay = o.relay
	}
	if o.catalog != "" {
		cfg.Gateway.RelayCatalog = o.catalog
	}
	o.cfg = cfg

	logger, err := logging.New(logging.Config{
		Level:       o.logLevel,
		Development: true,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	o.logger = logger.Logger
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
