// Package config provides 12-factor configuration for the gateway.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - Logging: Log level, output format and optional rotating log file
//   - RateLimit: Per-IP rate limiting configuration
//   - Gateway: Relay catalog, default relay, probe and fetch timeouts,
//     stylesheet concurrency, search template, blocklist, user agent
//   - Storage: Settings store path and blob store limits
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - RELAY_CATALOG, DEFAULT_RELAY, PROBE_URL, PROBE_TIMEOUT, FETCH_TIMEOUT,
//     UPSTREAM_RPS, SHEET_CONCURRENCY, SEARCH_TEMPLATE, BLOCKLIST, USER_AGENT
//   - SETTINGS_PATH, BLOB_TTL, BLOB_MAX_BYTES
package config
