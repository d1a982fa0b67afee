package mcp

import "github.com/mark3labs/mcp-go/mcp"

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check that the smartrelay daemon is running and whether it is on the network"),
		),
		s.handleGetHealth,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_state",
			mcp.WithDescription("Get whether the relay-controlled device is currently on or off"),
		),
		s.handleGetState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("turn_on",
			mcp.WithDescription("Switch the device on (energize the relay)"),
		),
		s.handleTurnOn,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("turn_off",
			mcp.WithDescription("Switch the device off (release the relay)"),
		),
		s.handleTurnOff,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("toggle",
			mcp.WithDescription("Invert the power state, like pressing the physical button"),
		),
		s.handleToggle,
	)
}
