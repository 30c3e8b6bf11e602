// Package logging provides structured logging for the SSDP engine.
//
// This package wraps a package-global zap logger with convenience functions
// for the logging patterns used throughout the discovery service, cache and
// reporting server.
//
// # Log Levels
//
//   - Debug: Raw datagrams, decoded messages, dropped malformed packets
//   - Info: Service lifecycle, listener registration, announcements
//   - Warn: Send failures, listener panics, shutdown timeouts
//   - Error: Startup failures
//
// # Structured Logging
//
//	logging.Info("Cache entry expired",
//	    zap.String("usn", usn),
//	    zap.Time("expiration", exp),
//	)
//
// # Configuration
//
// Logging is silent unless a level is passed to Initialize or the
// SSDP_LOG_LEVEL environment variable is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that command output on stdout stays clean.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use once Initialize has
// returned.
package logging
