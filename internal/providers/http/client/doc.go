// Package client is the upstream HTTP client used to reach relays and
// stylesheet hosts.
//
// Built on go-resty/resty with the pooled transport from
// hashicorp/go-retryablehttp:
//   - transport errors retried per retryablehttp's default policy
//   - one circuit breaker per upstream (relay id or "direct")
//   - optional global rate limit
//   - gzip, deflate, zstd and brotli bodies decoded in the transport
//   - text bodies transcoded to UTF-8 (declared charset, meta prescan, chardet)
//
// Example Usage:
//
//	c := client.NewClient(client.DefaultConfig())
//	resp, err := c.Get(ctx, "allorigins", relayURL)
//	html := resp.Text()
package client
