package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// RegisterResponse carries the new user and their bearer token.
type RegisterResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a user and issues their token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := sanitizeName(req.Username)
	if username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return
	}
	if !isValidEmail(req.Email) {
		h.Error(w, http.StatusUnprocessableEntity, "invalid email format")
		return
	}

	user, err := h.store.CreateUser(r.Context(), username, req.Email)
	if err != nil {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}

	token, err := h.auth.IssueToken(user.ID, user.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusCreated, RegisterResponse{User: user, Token: token})
}

// UserListResponse represents the user list response.
type UserListResponse struct {
	Users []models.User `json:"users"`
}

// ListUsers returns every other user with live presence merged in. The hub
// is authoritative for this server's connections; the stored flag covers
// everyone else.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	users, err := h.store.ListUsersExcept(r.Context(), me.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	hub := h.engine.Hub()
	for i := range users {
		if hub.IsOnline(users[i].ID) {
			users[i].IsOnline = true
		}
	}

	h.JSON(w, http.StatusOK, UserListResponse{Users: users})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, me)
}
