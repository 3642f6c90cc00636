// Package logging provides structured logging for the playout server.
//
// It wraps log/slog: JSON output for production, text for development,
// level filtering, and default fields (service, version) on every entry.
//
// Logging is configured via the logging section of the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	engineLogger := logger.Component("playout")
//	engineLogger.Info("part taken", "playlist_id", id)
package logging
