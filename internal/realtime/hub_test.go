package realtime

import (
	"testing"

	"github.com/google/uuid"
)

func testConn(t *testing.T, hub *Hub, userID uuid.UUID) *Conn {
	t.Helper()
	return newConn(hub, nil, userID, "user-"+userID.String()[:8])
}

func drain(c *Conn) [][]byte {
	var frames [][]byte
	for {
		select {
		case frame := <-c.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestRegisterFirstAndLast(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	c1 := testConn(t, hub, userID)
	c2 := testConn(t, hub, userID)

	if !hub.Register(c1) {
		t.Fatal("first connection should report came online")
	}
	if hub.Register(c2) {
		t.Fatal("second connection should not report came online")
	}
	if !hub.IsOnline(userID) {
		t.Fatal("user should be online")
	}
	if hub.ConnectionCount(userID) != 2 {
		t.Fatalf("expected 2 connections, got %d", hub.ConnectionCount(userID))
	}

	if hub.Unregister(c1) {
		t.Fatal("user still has a connection, should not report offline")
	}
	if !hub.Unregister(c2) {
		t.Fatal("last unregister should report went offline")
	}
	if hub.IsOnline(userID) {
		t.Fatal("user should be offline")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	hub := NewHub()
	c := testConn(t, hub, uuid.New())

	hub.Register(c)
	if !hub.Unregister(c) {
		t.Fatal("expected went offline")
	}
	if hub.Unregister(c) {
		t.Fatal("second unregister must be a no-op")
	}
}

func TestRegisterSameConnTwice(t *testing.T) {
	hub := NewHub()
	c := testConn(t, hub, uuid.New())

	hub.Register(c)
	if hub.Register(c) {
		t.Fatal("re-registering same connection must not report came online")
	}
	if hub.ConnectionCount(c.UserID) != 1 {
		t.Fatalf("expected 1 connection, got %d", hub.ConnectionCount(c.UserID))
	}
}

func TestSendToUserHitsAllConnections(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()
	c1 := testConn(t, hub, userID)
	c2 := testConn(t, hub, userID)
	hub.Register(c1)
	hub.Register(c2)

	n := hub.SendToUser(userID, []byte("hi"))
	if n != 2 {
		t.Fatalf("expected 2 targets, got %d", n)
	}
	if len(drain(c1)) != 1 || len(drain(c2)) != 1 {
		t.Fatal("both connections should have received the frame")
	}
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	roomID := uuid.New()

	sender := testConn(t, hub, uuid.New())
	member := testConn(t, hub, uuid.New())
	outsider := testConn(t, hub, uuid.New())
	for _, c := range []*Conn{sender, member, outsider} {
		hub.Register(c)
	}
	hub.Join(roomID, sender)
	hub.Join(roomID, member)

	hub.SendToRoom(roomID, []byte("group"), sender.UserID)

	if len(drain(sender)) != 0 {
		t.Fatal("sender should be excluded")
	}
	if len(drain(member)) != 1 {
		t.Fatal("member should receive the frame")
	}
	if len(drain(outsider)) != 0 {
		t.Fatal("outsider never joined the room")
	}
}

func TestUnregisterLeavesRooms(t *testing.T) {
	hub := NewHub()
	roomID := uuid.New()

	c := testConn(t, hub, uuid.New())
	other := testConn(t, hub, uuid.New())
	hub.Register(c)
	hub.Register(other)
	hub.Join(roomID, c)
	hub.Join(roomID, other)

	hub.Unregister(c)

	n := hub.SendToRoom(roomID, []byte("x"), uuid.Nil)
	if n != 1 {
		t.Fatalf("expected only remaining member targeted, got %d", n)
	}
}

func TestEnqueueAfterCloseDoesNotPanic(t *testing.T) {
	hub := NewHub()
	c := testConn(t, hub, uuid.New())
	hub.Register(c)
	hub.Unregister(c)

	// Must neither panic nor block.
	c.enqueue([]byte("late"))
}

func TestBroadcastReachesEveryUser(t *testing.T) {
	hub := NewHub()
	a := testConn(t, hub, uuid.New())
	b := testConn(t, hub, uuid.New())
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast([]byte("all"))

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatal("every connection should receive a broadcast")
	}

	ids := hub.OnlineUserIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(ids))
	}
}
