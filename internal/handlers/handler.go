package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/realtime"
	"github.com/ShaheerQidwai/chat-app/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.DataStore
	redis  *store.RedisStore
	engine *realtime.Engine
	auth   *middleware.AuthMiddleware
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(dataStore store.DataStore, redis *store.RedisStore, engine *realtime.Engine, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{store: dataStore, redis: redis, engine: engine, auth: auth}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits a name to 100 characters, removing control
// characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Truncate on a rune boundary so multi-byte names stay valid UTF-8.
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
