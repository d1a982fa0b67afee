package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/muurk/smartrelay/internal/api"
)

type fakeDevice struct {
	on      bool
	pending bool
	err     error
	calls   []string
}

func (f *fakeDevice) resp() *api.StateResponse {
	return &api.StateResponse{State: api.State{Device: "office light", On: f.on}, Pending: f.pending}
}

func (f *fakeDevice) Health(ctx context.Context) (*api.HealthResponse, error) {
	f.calls = append(f.calls, "health")
	if f.err != nil {
		return nil, f.err
	}
	return &api.HealthResponse{Status: "ok", Device: "office light"}, nil
}

func (f *fakeDevice) GetState(ctx context.Context) (*api.StateResponse, error) {
	f.calls = append(f.calls, "get")
	if f.err != nil {
		return nil, f.err
	}
	return f.resp(), nil
}

func (f *fakeDevice) SetState(ctx context.Context, on bool) (*api.StateResponse, error) {
	f.calls = append(f.calls, "set")
	if f.err != nil {
		return nil, f.err
	}
	if !f.pending {
		f.on = on
	}
	return f.resp(), nil
}

func (f *fakeDevice) Toggle(ctx context.Context) (*api.StateResponse, error) {
	f.calls = append(f.calls, "toggle")
	if f.err != nil {
		return nil, f.err
	}
	f.on = !f.on
	return f.resp(), nil
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func decode(t *testing.T, res *mcp.CallToolResult) StateOutput {
	t.Helper()
	var out StateOutput
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestStateTools(t *testing.T) {
	dev := &fakeDevice{}
	s := NewServer(dev)
	ctx := context.Background()

	res, err := s.handleTurnOn(ctx, mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("turn_on: %v %+v", err, res)
	}
	if out := decode(t, res); !out.On || out.State != "on" {
		t.Errorf("turn_on = %+v", out)
	}

	res, _ = s.handleToggle(ctx, mcp.CallToolRequest{})
	if out := decode(t, res); out.On {
		t.Errorf("toggle = %+v", out)
	}

	res, _ = s.handleTurnOff(ctx, mcp.CallToolRequest{})
	if out := decode(t, res); out.On {
		t.Errorf("turn_off = %+v", out)
	}

	res, _ = s.handleGetState(ctx, mcp.CallToolRequest{})
	if out := decode(t, res); out.On || out.Device != "office light" {
		t.Errorf("get_state = %+v", out)
	}

	want := []string{"set", "toggle", "set", "get"}
	if strings.Join(dev.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", dev.calls, want)
	}
}

func TestPendingMessage(t *testing.T) {
	s := NewServer(&fakeDevice{pending: true})
	res, _ := s.handleTurnOn(context.Background(), mcp.CallToolRequest{})
	out := decode(t, res)
	if !out.Pending || !strings.Contains(out.Message, "queued") {
		t.Errorf("pending output = %+v", out)
	}
}

func TestErrorsBecomeToolErrors(t *testing.T) {
	s := NewServer(&fakeDevice{err: errors.New("connection refused")})
	ctx := context.Background()

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_health": s.handleGetHealth,
		"get_state":  s.handleGetState,
		"turn_on":    s.handleTurnOn,
		"turn_off":   s.handleTurnOff,
		"toggle":     s.handleToggle,
	}
	for name, h := range handlers {
		res, err := h(ctx, mcp.CallToolRequest{})
		if err != nil {
			t.Errorf("%s returned protocol error %v", name, err)
			continue
		}
		if !res.IsError || !strings.Contains(text(t, res), "connection refused") {
			t.Errorf("%s result = %+v", name, res)
		}
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeDevice{})
	res, err := s.handleGetHealth(context.Background(), mcp.CallToolRequest{})
	if err != nil || res.IsError {
		t.Fatalf("get_health: %v %+v", err, res)
	}
	if !strings.Contains(text(t, res), `"status": "ok"`) {
		t.Errorf("health = %s", text(t, res))
	}
}
