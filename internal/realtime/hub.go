package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/metrics"
)

// Hub tracks live connections: which sockets each user holds and which
// group rooms each socket has joined. All three maps are guarded by one
// mutex; presence persistence and broadcasts happen outside the lock.
type Hub struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[*Conn]struct{}
	rooms map[uuid.UUID]map[*Conn]struct{}
	joins map[*Conn]map[uuid.UUID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		users: make(map[uuid.UUID]map[*Conn]struct{}),
		rooms: make(map[uuid.UUID]map[*Conn]struct{}),
		joins: make(map[*Conn]map[uuid.UUID]struct{}),
	}
}

// Register adds a connection and reports whether it is the user's first,
// i.e. whether the user just came online.
func (h *Hub) Register(c *Conn) (cameOnline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.users[c.UserID]
	if conns == nil {
		conns = make(map[*Conn]struct{})
		h.users[c.UserID] = conns
	}
	if _, ok := conns[c]; ok {
		return false
	}
	conns[c] = struct{}{}

	metrics.ActiveConnections.Inc()
	if len(conns) == 1 {
		metrics.OnlineUsers.Inc()
		return true
	}
	return false
}

// Unregister removes a connection from the user map and every room it
// joined, closes its send channel, and reports whether the user just went
// offline. Safe to call more than once for the same connection.
func (h *Hub) Unregister(c *Conn) (wentOffline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.users[c.UserID]
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.users, c.UserID)
	}

	for roomID := range h.joins[c] {
		h.removeFromRoom(roomID, c)
	}
	delete(h.joins, c)

	c.closeSend()
	metrics.ActiveConnections.Dec()
	if len(conns) == 0 {
		metrics.OnlineUsers.Dec()
		return true
	}
	return false
}

// Join subscribes a connection to a group room. Idempotent.
func (h *Hub) Join(roomID uuid.UUID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[c.UserID][c]; !ok {
		return // already unregistered
	}

	room := h.rooms[roomID]
	if room == nil {
		room = make(map[*Conn]struct{})
		h.rooms[roomID] = room
	}
	room[c] = struct{}{}

	joined := h.joins[c]
	if joined == nil {
		joined = make(map[uuid.UUID]struct{})
		h.joins[c] = joined
	}
	joined[roomID] = struct{}{}
}

// Leave unsubscribes a connection from a group room.
func (h *Hub) Leave(roomID uuid.UUID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(roomID, c)
	delete(h.joins[c], roomID)
}

// removeFromRoom must be called with the lock held.
func (h *Hub) removeFromRoom(roomID uuid.UUID, c *Conn) {
	room := h.rooms[roomID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
}

// SendToUser delivers a frame to every connection the user holds. Returns
// the number of connections targeted.
func (h *Hub) SendToUser(userID uuid.UUID, frame []byte) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(frame)
	}
	return len(conns)
}

// SendToRoom delivers a frame to every connection joined to the room,
// except those belonging to exclude (pass uuid.Nil to send to all).
func (h *Hub) SendToRoom(roomID uuid.UUID, frame []byte, exclude uuid.UUID) int {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if c.UserID == exclude {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(frame)
	}
	return len(conns)
}

// Broadcast delivers a frame to every connection on this server.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	var conns []*Conn
	for _, userConns := range h.users {
		for c := range userConns {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.enqueue(frame)
	}
}

// IsOnline reports whether the user holds at least one open connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUserIDs returns the users with at least one open connection.
func (h *Hub) OnlineUserIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionCount returns the number of open connections for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
