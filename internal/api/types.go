// Package api holds the JSON types of the local REST and WebSocket API,
// shared by the server and its clients.
package api

import "time"

// Paths of the v1 API.
const (
	PathHealth = "/health"
	PathState  = "/api/v1/state"
	PathToggle = "/api/v1/toggle"
	PathEvents = "/api/v1/events"
)

// --- Request DTOs ---

// SetStateRequest is the body of PUT /api/v1/state.
type SetStateRequest struct {
	On *bool `json:"on" binding:"required"`
}

// --- Response DTOs ---

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned from GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Device    string    `json:"device"`
	Version   string    `json:"version"`
	Network   string    `json:"network"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the reported state of the device.
type State struct {
	ID        int       `json:"id"`
	Device    string    `json:"device"`
	UDN       string    `json:"udn,omitempty"`
	On        bool      `json:"on"`
	Level     uint8     `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateResponse is returned from the state and toggle endpoints.
type StateResponse struct {
	State State `json:"state"`
	// Pending is true when the command was queued but the device had not
	// reported the new state before the response was written.
	Pending bool `json:"pending,omitempty"`
}

// EventState is the type of a state event on the events stream.
const EventState = "state"

// Event is one message on GET /api/v1/events.
type Event struct {
	Type      string    `json:"type"`
	State     *State    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
