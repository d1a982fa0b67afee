package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/api"
	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/loop"
	"github.com/muurk/smartrelay/internal/netsession"
	"github.com/muurk/smartrelay/internal/version"
)

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET(api.PathHealth, s.health)
	engine.GET(api.PathState, s.getState)
	engine.PUT(api.PathState, s.putState)
	engine.POST(api.PathToggle, s.toggle)
	engine.GET(api.PathEvents, s.events)

	return engine
}

// requestLogger logs each request through the shared zap logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		headers := map[string]string{}
		if ua := c.GetHeader("User-Agent"); ua != "" {
			headers["User-Agent"] = ua
		}
		logging.LogHTTPRequest(c.ClientIP(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), headers)
		if c.Writer.Status() >= http.StatusInternalServerError {
			logging.Warn("API request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.Duration("latency", time.Since(start)),
			)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	resp := api.HealthResponse{
		Status:    "ok",
		Device:    s.config.Device,
		Version:   version.Version,
		Network:   netsession.Disconnected.String(),
		Timestamp: time.Now().UTC(),
	}
	if s.network != nil {
		resp.Network = s.network.Status().String()
		resp.Address = s.network.LocalAddress()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getState(c *gin.Context) {
	st, _, _ := s.store.get()
	c.JSON(http.StatusOK, api.StateResponse{State: st})
}

func (s *Server) putState(c *gin.Context) {
	var req api.SetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "invalid_request",
			Message: `body must be {"on": true|false}`,
		})
		return
	}
	on := *req.On

	before, reported, changed := s.store.get()
	logging.LogRemoteCommand("api", s.config.DeviceID, s.config.Device, on, 0)
	if !s.submitOrFail(c, device.Set(s.config.DeviceID, on, "api")) {
		return
	}
	if reported && before.On == on {
		c.JSON(http.StatusOK, api.StateResponse{State: before})
		return
	}
	s.respondAfterChange(c, changed, func(st api.State) bool { return st.On == on })
}

func (s *Server) toggle(c *gin.Context) {
	before, _, changed := s.store.get()
	logging.LogRemoteCommand("api", s.config.DeviceID, s.config.Device, !before.On, 0)
	if !s.submitOrFail(c, device.Toggle(s.config.DeviceID, "api")) {
		return
	}
	s.respondAfterChange(c, changed, func(st api.State) bool { return st.On != before.On })
}

func (s *Server) submitOrFail(c *gin.Context, cmd device.Command) bool {
	err := s.submit(cmd)
	if err == nil {
		return true
	}
	status := http.StatusInternalServerError
	code := "submit_failed"
	if errors.Is(err, loop.ErrBusy) {
		status = http.StatusServiceUnavailable
		code = "busy"
	}
	c.JSON(status, api.ErrorResponse{Error: code, Message: err.Error()})
	return false
}

// respondAfterChange waits for the next report and answers with it. done
// decides whether the reported state is the one the command asked for.
func (s *Server) respondAfterChange(c *gin.Context, changed <-chan struct{}, done func(api.State) bool) {
	timer := time.NewTimer(s.config.CommandWait)
	defer timer.Stop()

	select {
	case <-changed:
	case <-timer.C:
	case <-c.Request.Context().Done():
		return
	}

	st, _, _ := s.store.get()
	c.JSON(http.StatusOK, api.StateResponse{State: st, Pending: !done(st)})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
