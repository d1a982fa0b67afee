// Package logging provides structured logging for the smartrelay daemon.
//
// This package wraps a zap logger with package-level helpers so that every
// component logs through the same sink without passing a logger around.
//
// # Log Levels
//
//   - Debug: SSDP datagrams, HTTP request details, ignored commands
//   - Info: state transitions, remote commands, startup and shutdown
//   - Warn: pin write/read failures, dropped commands, lost network link
//   - Error: failures that stop a component
//
// # Structured Logging
//
//	logging.Info("Virtual device registered",
//	    zap.Int("device_id", id),
//	    zap.String("name", "office light"),
//	)
//
// Domain helpers keep the field names consistent:
//
//	logging.LogStateChange(id, name, true, "button")
//	logging.LogRemoteCommand("wemo", id, name, false, 0)
//	logging.LogDatagram("received", addr, payload)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Client commands call InitializeFromEnv and stay silent unless
// SMARTRELAY_LOG_LEVEL is set. The MCP server logs to stderr because stdout
// is its transport; the console logs into a file-backed writer.
package logging
