package wemo

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/version"
)

const xmlContentType = `text/xml; charset="utf-8"`

// handler builds the HTTP surface of one virtual device.
func (t *Transport) handler(d *virtualDevice) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(d.name))
	engine.Use(func(c *gin.Context) {
		c.Header("Server", version.ServerHeader())
		c.Next()
	})

	engine.GET("/setup.xml", func(c *gin.Context) {
		on, _ := d.snapshot()
		body, err := setupXML(d.name, on)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, xmlContentType, body)
	})
	engine.GET("/eventservice.xml", staticDocument(eventServiceXML))
	engine.GET("/metainfoservice.xml", staticDocument(metaInfoServiceXML))
	engine.POST(controlPath, t.control(d))

	return engine
}

func staticDocument(build func() ([]byte, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := build()
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, xmlContentType, body)
	}
}

func (t *Transport) control(d *virtualDevice) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
		if err != nil {
			c.Status(http.StatusBadRequest)
			return
		}

		cmd, err := parseControl(body)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errUnknownAction) {
				status = http.StatusNotImplemented
			}
			logging.Warn("Rejected WeMo control request",
				zap.String("device", d.name),
				zap.String("soapaction", strings.Trim(c.GetHeader("SOAPACTION"), `"`)),
				zap.Error(err),
			)
			c.Status(status)
			return
		}

		switch cmd.Action {
		case "GetBinaryState":
			on, _ := d.snapshot()
			c.Data(http.StatusOK, xmlContentType, soapResponse(cmd.Action, on))

		case "SetBinaryState":
			logging.LogRemoteCommand("wemo", d.id, d.name, cmd.On, cmd.Level)
			if err := t.enqueue(setRequest{id: d.id, on: cmd.On, level: cmd.Level}); err != nil {
				logging.Warn("Dropping WeMo command", zap.String("device", d.name), zap.Error(err))
				c.Status(http.StatusServiceUnavailable)
				return
			}
			c.Data(http.StatusOK, xmlContentType, soapResponse(cmd.Action, cmd.On))
		}
	}
}

// requestLogger logs each request through the shared zap logger.
func requestLogger(device string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.GetLogger().Debug("WeMo request",
			zap.String("device", device),
			zap.String("remote_addr", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
