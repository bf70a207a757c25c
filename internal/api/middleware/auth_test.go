package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ShaheerQidwai/chat-app/internal/store/storetest"
)

func authedHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFrom(r.Context()); !ok {
			t.Error("user missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthBearer(t *testing.T) {
	fake := storetest.New()
	user, err := fake.CreateUser(context.Background(), "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	auth := NewAuthMiddleware(fake, "test-secret")
	token, err := auth.IssueToken(user.ID, user.Username)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	auth.RequireAuth(authedHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	fake := storetest.New()
	user, _ := fake.CreateUser(context.Background(), "alice", "")

	auth := NewAuthMiddleware(fake, "test-secret")
	token, _ := auth.IssueToken(user.ID, user.Username)

	// Browsers cannot set headers on websocket dials.
	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	auth.RequireAuth(authedHandler(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	fake := storetest.New()
	user, _ := fake.CreateUser(context.Background(), "alice", "")

	auth := NewAuthMiddleware(fake, "test-secret")
	otherAuth := NewAuthMiddleware(fake, "different-secret")

	goodToken, _ := auth.IssueToken(user.ID, user.Username)
	forgedToken, _ := otherAuth.IssueToken(user.ID, user.Username)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	cases := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"missing token", func(r *http.Request) {}},
		{"malformed token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }},
		{"wrong secret", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+forgedToken) }},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+goodToken) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/users", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			auth.RequireAuth(next).ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequireAuthUnknownUser(t *testing.T) {
	fake := storetest.New()
	user, _ := fake.CreateUser(context.Background(), "alice", "")

	auth := NewAuthMiddleware(fake, "test-secret")
	token, _ := auth.IssueToken(user.ID, user.Username)

	// A token for a user that no longer resolves is rejected.
	emptyStore := storetest.New()
	authAgainstEmpty := NewAuthMiddleware(emptyStore, "test-secret")

	req := httptest.NewRequest("GET", "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authAgainstEmpty.RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
