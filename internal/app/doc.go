// Package app assembles the gateway's components from configuration.
//
// A Stack holds one upstream client, relay catalog, blob store, rewriter
// and pipeline. The HTTP server adds tabs and a session on top; the CLI
// uses the pipeline directly.
//
// Example Usage:
//
//	stack, err := app.Build(cfg.Gateway, cfg.Storage, logger, metrics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := stack.Pipeline.Load(ctx, req, frame)
package app
