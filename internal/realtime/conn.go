package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ShaheerQidwai/chat-app/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. A connection that cannot drain this
	// many frames is considered dead and gets closed.
	sendBufferSize = 64
)

// Conn is one websocket connection belonging to an authenticated user. A
// user may hold several at once (multiple tabs or devices).
type Conn struct {
	UserID   uuid.UUID
	Username string

	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// mu guards closed so a broadcast never races the channel close.
	mu     sync.Mutex
	closed bool
}

func newConn(hub *Hub, ws *websocket.Conn, userID uuid.UUID, username string) *Conn {
	return &Conn{
		UserID:   userID,
		Username: username,
		hub:      hub,
		ws:       ws,
		send:     make(chan []byte, sendBufferSize),
	}
}

// enqueue offers a frame to the connection without blocking. When the buffer
// is full the frame is dropped and the socket closed; the read pump then
// unwinds the usual disconnect path, and a client that slow recovers via
// missed-message replay on reconnect.
func (c *Conn) enqueue(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		metrics.EventsDropped.Inc()
		c.ws.Close()
	}
}

// closeSend shuts the outbound channel exactly once, ending the write pump.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads frames from the websocket and dispatches them to the
// engine. It owns the read side; there is at most one per connection.
// The caller handles hub unregistration when it returns.
func (c *Conn) readPump(engine *Engine) {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("user_id", c.UserID.String()).Msg("websocket read error")
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			log.Debug().Err(err).Str("user_id", c.UserID.String()).Msg("malformed frame")
			continue
		}

		engine.Dispatch(c, &evt)
	}
}

// writePump drains the send channel onto the websocket and keeps the
// connection alive with pings. It owns the write side.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
