// Package server implements the local REST and WebSocket API of the daemon.
//
// # Endpoints
//
//	GET  /health           liveness, device name, network status
//	GET  /api/v1/state     current reported state
//	PUT  /api/v1/state     {"on": true|false}
//	POST /api/v1/toggle    invert the power state
//	GET  /api/v1/events    WebSocket stream of state events
//
// # Commands
//
// Handlers never call the device controller. PUT and toggle submit a
// command to the poll loop and then wait briefly for the controller to
// report the result. When the report does not arrive in time the response
// carries the last known state with "pending": true.
//
// # State
//
// The server implements device.Reporter. Every report updates the snapshot
// served by GET /api/v1/state and is broadcast to all WebSocket clients.
// ReportState never blocks: a client that cannot keep up is disconnected.
//
// # Graceful Shutdown
//
// Shutdown stops accepting connections, closes WebSocket clients and waits
// for in-flight requests up to the context deadline.
package server
