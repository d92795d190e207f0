// Package logging provides structured logging for nestsync.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same default fields (service, version) and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("stream opened", "url", streamURL)
//
// # Security
//
// Never log access tokens or client secrets. Log a prefix at most:
//
//	logger.Info("credential stored", "token_prefix", token[:6]+"...")
package logging
