// Package ui renders terminal output for the smartrelay CLI.
//
// Two kinds of output live here. One-shot commands (status, on, off,
// discover) print styled result boxes through Printer. The console command
// runs an interactive Bubble Tea front panel: the daemon runs against the
// simulated pin backend and the panel shows the LED and relay while the
// keyboard drives the push button.
//
// Terminals do not report key releases, so a space press is a click: the
// button is held for a few hundred milliseconds and then released, long
// enough for the poll loop to sample it. "h" holds the button down until
// pressed again, which shows that holding never repeats a toggle.
//
// # Logging Integration
//
// Logging is controlled via the SMARTRELAY_LOG_LEVEL environment variable.
// When unset or empty, zap logging is silent so that log lines do not tear
// the console display.
package ui
