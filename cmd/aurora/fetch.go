package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/AuroraGateway/internal/app"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway"
	"github.com/GriffinCanCode/AuroraGateway/internal/providers/gateway/urlkind"
)

func newFetchCmd(opts *options) *cobra.Command {
	var links, debug bool

	cmd := &cobra.Command{
		Use:   "fetch <url or search>",
		Short: "Load one page through a relay and print the rewritten document",
		Long: `Load one page through a relay and print the rewritten document.

Inlined stylesheets point at /blob/ paths, which only resolve on a running
gateway. With --links only the document's anchors are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := app.Build(opts.cfg.Gateway, opts.cfg.Storage, opts.logger, nil)
			if err != nil {
				return err
			}

			target := urlkind.FromInput(strings.Join(args, " "), opts.cfg.Gateway.SearchTemplate)
			frame := gateway.NewFrame(true)
			res, loadErr := stack.Pipeline.Load(cmd.Context(), gateway.Request{
				Relay:     opts.cfg.Gateway.DefaultRelay,
				TargetURL: target,
				Debug:     debug,
			}, frame)

			state := frame.State()
			out := cmd.OutOrStdout()
			if links {
				if err := printLinks(out, state.Content); err != nil {
					return err
				}
			} else if state.Content != "" {
				fmt.Fprintln(out, state.Content)
			}

			if res != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "relay=%s target=%s mode=%s fallback=%t rewritten=%d stylesheets=%d took=%s\n",
					res.Relay, res.TargetURL, state.Mode, res.FellBack,
					res.Stats.Attributes+res.Stats.Srcset+res.Stats.CSS, res.Stats.Stylesheets, res.Duration)
			}
			return loadErr
		},
	}

	cmd.Flags().BoolVar(&links, "links", false, "print anchor targets instead of the document")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable shim debug logging in the page")
	return cmd
}

// printLinks writes one line per anchor: the href, a tab, then the text
func printLinks(w io.Writer, document string) error {
	doc, err := htmlquery.Parse(strings.NewReader(document))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	for _, a := range htmlquery.Find(doc, "//a[@href]") {
		href := htmlquery.SelectAttr(a, "href")
		if urlkind.IsSkippable(href) {
			continue
		}
		text := strings.Join(strings.Fields(htmlquery.InnerText(a)), " ")
		fmt.Fprintf(w, "%s\t%s\n", href, text)
	}
	return nil
}
