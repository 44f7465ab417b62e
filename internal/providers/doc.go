// Package providers holds the gateway's outbound side.
//
//   - gateway: relay catalog, fetcher, rewriter, shim and the load pipeline
//   - http/client: the resilient HTTP client every relay request goes through
package providers
