// Package logging builds the gateway's zap loggers.
//
// Console output is JSON in production and colored text in development.
// Setting Config.File tees every entry into a JSON file rotated by
// lumberjack, compressed once it rolls over.
//
// Services build their logger from the loaded configuration:
//
//	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development, cfg.Logging.File)
//	defer logger.Sync()
//	tabsLog := logger.Named("tabs")
//
// FromConfig never fails. An unknown level yields a no-op logger; call New
// directly to see the error.
package logging
