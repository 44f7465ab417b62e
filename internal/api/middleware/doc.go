// Package middleware holds the gin middleware in front of the gateway API.
//
//   - CORS: origins from CORS_ORIGINS, every origin by default
//   - RateLimit: per-IP token buckets, idle clients evicted after ten minutes
//   - GlobalRateLimit: one bucket shared by every client
//
// Rejected requests get 429 with a Retry-After header.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
