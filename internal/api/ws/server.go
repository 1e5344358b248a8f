// Package ws streams pump state-change events to local dashboards over a
// websocket, mirroring (not replacing) the MQTT side of the bridge.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wavepump/pumpbridge/internal/pump"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Server upgrades GET /ws connections and broadcasts every pump
// state-change event it receives (via PumpStateChanged, satisfying
// pump.EventSink) to all of them as a JSON line. It never reads anything
// back from a client: the status stream is read-only.
type Server struct {
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewServer builds a Server. Register it with the supervisor via AddSink to
// start receiving events.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a websocket and registers the new
// client to receive the broadcast stream.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.readUntilClosed(c)
	go s.writePump(c)
}

// readUntilClosed discards anything the client sends (this stream is
// read-only) and exists purely to notice when the connection drops.
func (s *Server) readUntilClosed(c *client) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// PumpStateChanged implements pump.EventSink, broadcasting evt as a JSON
// line to every connected client. A client whose send buffer is full is
// dropped rather than allowed to stall the broadcast.
func (s *Server) PumpStateChanged(evt pump.StateChangeEvent) {
	body, err := marshalEvent(evt)
	if err != nil {
		s.logger.Error("marshal state-change event failed", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- body:
		default:
			go s.remove(c)
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}
