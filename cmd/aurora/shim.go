package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/blob"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/relay"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/shim"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

func newShimCmd(opts *options) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "shim <page url>",
		Short: "Print the runtime script injected into a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := relay.LoadCatalog(opts.cfg.Gateway.RelayCatalog)
			if err != nil {
				return err
			}
			catalog = catalog.WithPrimary(opts.cfg.Gateway.DefaultRelay)

			script, err := shim.Build(shim.ForDescriptor(shim.Params{
				OriginalURL:   urlkind.Normalize(args[0]),
				LocalPrefixes: []string{blob.PathPrefix},
				Debug:         debug,
			}, catalog.BaseFor(opts.cfg.Gateway.DefaultRelay), catalog))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), script)
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "render the debug variant")
	return cmd
}
