package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
)

// ChatListResponse represents the conversation list response.
type ChatListResponse struct {
	Chats []models.Conversation `json:"chats"`
}

// ListChats returns the authenticated user's conversations, newest first.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chats, err := h.store.ListConversationsForUser(r.Context(), me.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, ChatListResponse{Chats: chats})
}

// CreateDirectChat returns the direct conversation with the given user,
// creating it on first contact. Calling it again returns the same
// conversation.
func (h *Handler) CreateDirectChat(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	otherID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}
	if otherID == me.ID {
		h.Error(w, http.StatusBadRequest, "cannot open a chat with yourself")
		return
	}

	other, err := h.store.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	chat, err := h.store.FindOrCreateDirectConversation(r.Context(), me.ID, otherID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to open chat")
		return
	}

	h.JSON(w, http.StatusOK, chat)
}
