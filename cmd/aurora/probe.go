package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AuroraGateway/internal/app"
)

func newProbeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check which relays answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := app.Build(opts.cfg.Gateway, opts.cfg.Storage, opts.logger, nil)
			if err != nil {
				return err
			}

			online := stack.Prober.ProbeAll(cmd.Context())
			primary := stack.Catalog.PrimaryID()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPRIMARY")
			up := 0
			for _, d := range stack.Catalog.List() {
				status := "offline"
				if online[d.ID] {
					status = "online"
					up++
				}
				mark := ""
				if d.ID == primary {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, status, mark)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if up == 0 {
				return fmt.Errorf("no relay answered %s", opts.cfg.Gateway.ProbeURL)
			}
			return nil
		},
	}
}
