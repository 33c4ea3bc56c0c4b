// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Bot starting", zap.String("session", "bot-main"))
//	logger.Error("Restore failed", zap.Error(err))
package logging
