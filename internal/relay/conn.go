package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxFrameSize   = 64 * 1024
	sendBufferSize = 32
)

const (
	frameMessage = "message"
	frameError   = "error"
)

// inbound is what a client sends.
type inbound struct {
	To   string          `json:"to"`
	Body json.RawMessage `json:"body"`
}

// outbound is what a recipient receives.
type outbound struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	From   string          `json:"from"`
	Body   json.RawMessage `json:"body"`
	SentAt time.Time       `json:"sentAt"`
}

func errorFrame(message string) []byte {
	b, _ := json.Marshal(struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{frameError, message})
	return b
}

// Conn is one live client. gorilla/websocket allows one concurrent reader and
// one concurrent writer, so all writes go through send and writePump.
type Conn struct {
	id          string
	name        string
	connectedAt time.Time

	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(h *Hub, name string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:          xid.New().String(),
		name:        name,
		connectedAt: h.now().UTC(),
		hub:         h,
		ws:          ws,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
	}
}

// enqueue queues a frame for writing. It reports false when the connection
// is closed or its buffer is full; a client that cannot keep up is treated as
// unreachable rather than allowed to stall its senders.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// close sends a close frame (best effort) and tears the socket down. Safe to
// call more than once and from any goroutine.
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// readPump reads frames until the socket fails or closes. A pong (or any
// frame) pushes the read deadline out by pongWait.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("relay read ended", slog.String("name", c.name), slog.String("error", err.Error()))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.route(c, data)
	}
}

// writePump owns all writes to the socket: queued frames and pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close(websocket.CloseInternalServerErr, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close(websocket.CloseInternalServerErr, "")
				return
			}
		}
	}
}
