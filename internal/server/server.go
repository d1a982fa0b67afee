package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/netsession"
)

// DefaultCommandWait bounds how long PUT and toggle wait for the new state.
const DefaultCommandWait = 2 * time.Second

// Config holds the server configuration
type Config struct {
	Listen   string // host:port, e.g. ":8080"
	DeviceID int
	Device   string
	UDN      string

	// CommandWait bounds how long a command handler waits for the state
	// report. Zero means DefaultCommandWait.
	CommandWait time.Duration
}

// SubmitFunc hands a command to the poll loop.
type SubmitFunc func(device.Command) error

// NetworkStatus reports the link for /health.
type NetworkStatus interface {
	Status() netsession.Status
	LocalAddress() string
}

// Server is the REST and WebSocket API.
type Server struct {
	config  Config
	submit  SubmitFunc
	network NetworkStatus

	store   *stateStore
	hub     *hub
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	wg       sync.WaitGroup
}

// New creates a server. network may be nil.
func New(config Config, submit SubmitFunc, network NetworkStatus) *Server {
	if config.CommandWait <= 0 {
		config.CommandWait = DefaultCommandWait
	}
	s := &Server{
		config:  config,
		submit:  submit,
		network: network,
		store:   newStateStore(config.DeviceID, config.Device, config.UDN),
		hub:     newHub(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// ReportState implements device.Reporter.
func (s *Server) ReportState(id int, on bool, level uint8) {
	if id != s.config.DeviceID {
		return
	}
	st := s.store.set(on, level)
	s.hub.broadcastState(st)
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.httpSrv
	s.mu.Unlock()

	logging.Info("API server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("API server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the listening TCP port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return 0
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	logging.Info("Shutting down API server...")

	// WebSocket connections are hijacked and not tracked by http.Server.
	s.hub.closeAll()

	err := srv.Shutdown(ctx)
	if err != nil {
		logging.Warn("API shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.hub.wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All API connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	return s.hub.count()
}
