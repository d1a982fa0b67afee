// Package mcp exposes the daemon to MCP clients (assistants and agents) as
// a small set of tools served over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/muurk/smartrelay/internal/api"
	"github.com/muurk/smartrelay/internal/version"
)

// Device is the daemon API the tools call. *client.Client implements it.
type Device interface {
	Health(ctx context.Context) (*api.HealthResponse, error)
	GetState(ctx context.Context) (*api.StateResponse, error)
	SetState(ctx context.Context, on bool) (*api.StateResponse, error)
	Toggle(ctx context.Context) (*api.StateResponse, error)
}

// Server wraps the MCP server with the device tools.
type Server struct {
	mcpServer *server.MCPServer
	device    Device
}

// NewServer creates an MCP server for one daemon.
func NewServer(device Device) *Server {
	s := &Server{device: device}

	s.mcpServer = server.NewMCPServer(
		"smartrelay",
		version.Version,
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio serves MCP over stdin/stdout until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
