package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// wsServer wires an engine's websocket endpoint behind a test server,
// injecting the user the way the auth middleware would.
func wsServer(t *testing.T, engine *Engine, user *models.User) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.UserContextKey, user)
		engine.ServeWS(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReplayLargerThanSendBuffer(t *testing.T) {
	engine, fake := testEngine(t)
	ctx := context.Background()
	alice := createUser(t, fake, "alice")
	bob := createUser(t, fake, "bob")

	// Far more unread messages than one connection buffers at a time.
	backlog := sendBufferSize * 3
	for i := 0; i < backlog; i++ {
		msg := &models.Message{SenderID: alice.ID, ReceiverID: bob.ID, Content: "missed"}
		if err := fake.CreateMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	srv := wsServer(t, engine, bob)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	// The whole backlog must arrive on this connection; a replay that
	// overruns the send buffer would close the socket partway through.
	received := 0
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for received < backlog {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("connection failed after %d of %d replayed messages: %v", received, backlog, err)
		}
		if event, _ := decodeFrame(t, frame); event == EventMessageReceive {
			received++
		}
	}
}
