package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/server"
)

func newServeCmd(opts *options) *cobra.Command {
	var port string
	var dev bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if port != "" {
				cfg.Server.Port = port
			}
			if dev {
				cfg.Logging.Development = true
			}

			srv, err := server.NewServer(cfg)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from PORT)")
	cmd.Flags().BoolVar(&dev, "dev", false, "development logging")
	return cmd
}
