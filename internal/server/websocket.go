package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
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

	// Events buffered per subscriber before it is dropped as too slow
	sendBuffer = 64
)

// Event directions
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Event is one message pushed to /events subscribers as JSON.
type Event struct {
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"`
	Kind      string    `json:"kind"`
	USN       string    `json:"usn,omitempty"`
	Target    string    `json:"target,omitempty"` // NT, or ST for searches and responses
	Location  string    `json:"location,omitempty"`
	Remote    string    `json:"remote,omitempty"`
	Expires   time.Time `json:"expires,omitzero"`
}

// NewEvent summarizes msg.
func NewEvent(direction string, msg protocol.Message, now time.Time) Event {
	target := msg.NT()
	if k := msg.Kind(); k == protocol.KindMSearch || k == protocol.KindSearchResponse {
		target = msg.ST()
	}

	e := Event{
		Time:      now,
		Direction: direction,
		Kind:      msg.Kind().String(),
		USN:       protocol.URIString(msg.USN()),
		Target:    protocol.URIString(target),
		Location:  protocol.URIString(msg.Location()),
	}
	if addr := msg.RemoteAddr(); addr != nil {
		e.Remote = addr.String()
	}
	if k := msg.Kind(); k == protocol.KindAlive || k == protocol.KindUpdate || k == protocol.KindSearchResponse {
		e.Expires = msg.Expiration()
	}
	return e
}

func (s *Server) publish(direction string, msg protocol.Message) {
	if s.hub.len() == 0 {
		return
	}

	data, err := json.Marshal(NewEvent(direction, msg, s.cfg.Now()))
	if err != nil {
		s.log.Error("Failed to marshal event", zap.Error(err))
		return
	}
	s.hub.broadcast(data)
}

// handleEvents upgrades the request and streams events until the peer goes
// away or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.log.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
	}
	if !s.hub.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	logging.LogConnection(c.remote, "events_subscribed")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
		s.hub.remove(c)
		logging.LogConnection(c.remote, "events_unsubscribed")
	}()
}

// client is one /events subscriber.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug("Event write failed",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
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

// readPump discards client frames and notices when the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Subscriber closed unexpectedly",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// hub fans events out to subscribers. A subscriber whose buffer is full is
// dropped rather than blocking the discovery goroutines.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow event subscriber", zap.String("remote_addr", c.remote))
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
