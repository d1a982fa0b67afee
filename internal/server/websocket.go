package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/api"
	"github.com/muurk/smartrelay/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Events buffered per client before it is dropped as too slow
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// hub fans state events out to WebSocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	wg      sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// broadcastState never blocks. Clients with a full buffer are dropped.
func (h *hub) broadcastState(st api.State) {
	data, err := json.Marshal(api.Event{Type: api.EventState, State: &st, Timestamp: time.Now().UTC()})
	if err != nil {
		logging.Error("Failed to marshal state event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow WebSocket client", zap.String("remote_addr", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *hub) wait() { h.wg.Wait() }

// events upgrades to a WebSocket and streams state events, starting with
// the current state.
func (s *Server) events(c *gin.Context) {
	if !isWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:   "upgrade_required",
			Message: "this endpoint speaks WebSocket",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	remoteAddr := conn.RemoteAddr().String()
	logging.Info("WebSocket client connected", zap.String("remote_addr", remoteAddr))

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	st, _, _ := s.store.get()
	if data, err := json.Marshal(api.Event{Type: api.EventState, State: &st, Timestamp: time.Now().UTC()}); err == nil {
		client.send <- data
	}
	s.hub.add(client)

	s.hub.wg.Add(2)
	go func() {
		defer s.hub.wg.Done()
		writePump(client)
	}()
	go func() {
		defer s.hub.wg.Done()
		readPump(client)
		s.hub.remove(client)
		logging.Info("WebSocket client disconnected", zap.String("remote_addr", remoteAddr))
	}()
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It returns when the connection fails or is closed.
func readPump(c *wsClient) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued events and pings. A closed send channel ends the
// connection with a close frame.
func writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
