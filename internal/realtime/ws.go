package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from separate frontend origins; auth is the token,
	// not the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades an authenticated HTTP request to a websocket and wires
// the connection into the hub. The auth middleware has already resolved the
// user from the bearer token or ?token= query parameter.
func (e *Engine) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConn(e.hub, ws, user.ID, user.Username)

	// The write pump must be draining before HandleConnect runs: replay
	// can enqueue more frames than the send buffer holds, and an
	// undrained buffer would close the socket mid-replay.
	go c.writePump()
	go func() {
		e.HandleConnect(c)
		c.readPump(e)
		e.HandleDisconnect(c)
	}()
}
