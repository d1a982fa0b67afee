package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/muurk/smartrelay/internal/api"
	"github.com/muurk/smartrelay/internal/client"
)

// StateOutput is the result of every state tool.
type StateOutput struct {
	Device  string `json:"device"`
	On      bool   `json:"on"`
	State   string `json:"state"`
	Pending bool   `json:"pending,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleGetHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health, err := s.device.Health(ctx)
	if err != nil {
		return toolError("daemon unreachable", err), nil
	}
	return mcp.NewToolResultText(formatJSON(health)), nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.device.GetState(ctx)
	if err != nil {
		return toolError("failed to get state", err), nil
	}
	return mcp.NewToolResultText(formatJSON(stateOutput(resp, ""))), nil
}

func (s *Server) handleTurnOn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setState(ctx, true)
}

func (s *Server) handleTurnOff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setState(ctx, false)
}

func (s *Server) setState(ctx context.Context, on bool) (*mcp.CallToolResult, error) {
	resp, err := s.device.SetState(ctx, on)
	if err != nil {
		return toolError(fmt.Sprintf("failed to turn %s", onOff(on)), err), nil
	}
	msg := fmt.Sprintf("Device %q is %s", resp.State.Device, onOff(resp.State.On))
	if resp.Pending {
		msg = fmt.Sprintf("Command to turn %s queued; device has not confirmed yet", onOff(on))
	}
	return mcp.NewToolResultText(formatJSON(stateOutput(resp, msg))), nil
}

func (s *Server) handleToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp, err := s.device.Toggle(ctx)
	if err != nil {
		return toolError("failed to toggle", err), nil
	}
	msg := fmt.Sprintf("Device %q is now %s", resp.State.Device, onOff(resp.State.On))
	if resp.Pending {
		msg = "Toggle queued; device has not confirmed yet"
	}
	return mcp.NewToolResultText(formatJSON(stateOutput(resp, msg))), nil
}

func stateOutput(resp *api.StateResponse, msg string) StateOutput {
	return StateOutput{
		Device:  resp.State.Device,
		On:      resp.State.On,
		State:   onOff(resp.State.On),
		Pending: resp.Pending,
		Message: msg,
	}
}

func toolError(what string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", what, client.GetShortErrorMessage(err)))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
