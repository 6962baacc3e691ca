// Package logging provides structured logging for plcd.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("listening", "addr", cfg.ListenAddr())
//
// Components take a small Logger interface (Debug/Info/Warn/Error) so
// *Logger can be passed straight in.
package logging
