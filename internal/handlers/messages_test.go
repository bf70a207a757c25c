package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/realtime"
	"github.com/ShaheerQidwai/chat-app/internal/store/storetest"
)

func testHandler(t *testing.T) (*Handler, *storetest.Store) {
	t.Helper()
	fake := storetest.New()
	engine := realtime.NewEngine(fake, nil, realtime.NewHub(), zerolog.Nop())
	auth := middleware.NewAuthMiddleware(fake, "test-secret")
	return NewHandler(fake, nil, engine, auth), fake
}

// request builds an authenticated request with chi URL params.
func request(t *testing.T, user *models.User, method, target string, params map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.UserContextKey, user)
	return req.WithContext(ctx)
}

func seedMessages(t *testing.T, fake *storetest.Store, from, to *models.User, n int, start time.Time) []models.Message {
	t.Helper()
	ctx := context.Background()
	conv, err := fake.FindOrCreateDirectConversation(ctx, from.ID, to.ID)
	if err != nil {
		t.Fatal(err)
	}

	msgs := make([]models.Message, n)
	for i := 0; i < n; i++ {
		msg := models.Message{
			ConversationID: conv.ID,
			SenderID:       from.ID,
			ReceiverID:     to.ID,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      start.Add(time.Duration(i) * time.Second),
		}
		if err := fake.CreateMessage(ctx, &msg); err != nil {
			t.Fatal(err)
		}
		msgs[i] = msg
	}
	return msgs
}

func TestGetHistoryPagination(t *testing.T) {
	h, fake := testHandler(t)
	alice, _ := fake.CreateUser(context.Background(), "alice", "")
	bob, _ := fake.CreateUser(context.Background(), "bob", "")

	// Whole-second timestamps so the RFC3339 cursor round-trips exactly.
	start := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	seedMessages(t, fake, alice, bob, 7, start)

	// First page: the 3 newest, returned oldest first.
	rec := httptest.NewRecorder()
	h.GetHistory(rec, request(t, bob, "GET", "/api/messages/"+alice.ID.String()+"?limit=3",
		map[string]string{"userID": alice.ID.String()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var page MessageHistoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 3 || !page.HasMore {
		t.Fatalf("expected 3 messages with more, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Content != "message 4" || page.Messages[2].Content != "message 6" {
		t.Fatalf("wrong page contents: %s .. %s", page.Messages[0].Content, page.Messages[2].Content)
	}

	// Walk back with before = oldest of the previous page.
	before := page.Messages[0].CreatedAt.Add(-time.Millisecond)
	rec = httptest.NewRecorder()
	target := "/api/messages/" + alice.ID.String() + "?limit=10&before=" + url.QueryEscape(before.Format(time.RFC3339))
	h.GetHistory(rec, request(t, bob, "GET", target, map[string]string{"userID": alice.ID.String()}))

	page = MessageHistoryResponse{}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.Messages) != 4 || page.HasMore {
		t.Fatalf("expected final 4 messages, got %d hasMore=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Content != "message 0" {
		t.Fatalf("expected oldest first, got %s", page.Messages[0].Content)
	}
}

func TestGetHistoryValidation(t *testing.T) {
	h, fake := testHandler(t)
	bob, _ := fake.CreateUser(context.Background(), "bob", "")

	cases := []struct {
		name   string
		target string
		param  string
	}{
		{"bad user id", "/api/messages/nope", "nope"},
		{"bad limit", "/api/messages/" + uuid.New().String() + "?limit=zero", uuid.New().String()},
		{"bad before", "/api/messages/" + uuid.New().String() + "?before=yesterday", uuid.New().String()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetHistory(rec, request(t, bob, "GET", tc.target, map[string]string{"userID": tc.param}))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetHistoryCapsLimit(t *testing.T) {
	h, fake := testHandler(t)
	alice, _ := fake.CreateUser(context.Background(), "alice", "")
	bob, _ := fake.CreateUser(context.Background(), "bob", "")
	seedMessages(t, fake, alice, bob, 3, time.Now().UTC().Add(-time.Hour))

	rec := httptest.NewRecorder()
	h.GetHistory(rec, request(t, bob, "GET",
		"/api/messages/"+alice.ID.String()+"?limit=10000",
		map[string]string{"userID": alice.ID.String()}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var page MessageHistoryResponse
	json.Unmarshal(rec.Body.Bytes(), &page)
	if len(page.Messages) != 3 || page.HasMore {
		t.Fatalf("expected all 3 messages, got %d", len(page.Messages))
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	h, fake := testHandler(t)
	alice, _ := fake.CreateUser(context.Background(), "alice", "")
	bob, _ := fake.CreateUser(context.Background(), "bob", "")
	msgs := seedMessages(t, fake, alice, bob, 1, time.Now().UTC())

	// Sender cannot mark their own message.
	rec := httptest.NewRecorder()
	h.MarkRead(rec, request(t, alice, "PATCH", "/api/messages/"+msgs[0].ID+"/read",
		map[string]string{"id": msgs[0].ID}))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for sender, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.MarkRead(rec, request(t, bob, "PATCH", "/api/messages/"+msgs[0].ID+"/read",
		map[string]string{"id": msgs[0].ID}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var msg models.Message
	json.Unmarshal(rec.Body.Bytes(), &msg)
	if !msg.Read || msg.ReadAt == nil {
		t.Fatal("message should be read with a timestamp")
	}
}
