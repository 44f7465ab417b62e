/*
Package monitoring provides metrics collection for the gateway.

# Overview

Metrics live on a dedicated Prometheus registry so several collectors can
coexist in one process (tests create one per case). Every method is safe on
a nil *Metrics, which lets components treat metrics as optional.

# Metrics

- HTTP requests (latency, throughput, size) labelled by route template
- Pipeline loads by relay and outcome, scheme fallbacks, stale writes
- Rewritten references by kind and linked stylesheets by outcome
- Upstream relay calls and probe results
- Open tabs, stored blobs and WebSocket connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "allorigins")
	// ... fetch ...
	timer.Stop("200")
*/
package monitoring
