package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/realtime"
	"github.com/ShaheerQidwai/chat-app/internal/store"
)

const defaultHistoryLimit = 50

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID  uuid.UUID           `json:"receiverId"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// SendMessage persists and fans out a direct message over HTTP. The
// websocket path is preferred; this exists for clients without a socket.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	payload := realtime.SendMessagePayload{ReceiverID: req.ReceiverID, Content: req.Content}
	for _, a := range req.Attachments {
		payload.Attachments = append(payload.Attachments, realtime.Attachment{URL: a.URL, Type: a.Type})
	}

	msg, err := h.engine.SendDirect(r.Context(), me, &payload)
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// MessageHistoryResponse represents a page of direct message history.
type MessageHistoryResponse struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// GetHistory returns the messages exchanged with another user, oldest
// first. Pagination walks backwards: pass before=<RFC3339> from the oldest
// message of the previous page.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
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

	before := time.Now().UTC()
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "before must be RFC3339")
			return
		}
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit > store.MaxHistoryLimit {
			limit = store.MaxHistoryLimit
		}
	}

	// Fetch one extra row to learn whether an older page exists.
	msgs, err := h.store.ListMessagesBetween(r.Context(), me.ID, otherID, before, limit+1)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	// Store order is newest first; clients render oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	h.JSON(w, http.StatusOK, MessageHistoryResponse{Messages: msgs, HasMore: hasMore})
}

// MarkRead marks a direct message read on behalf of its receiver.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	msg, err := h.engine.MarkRead(r.Context(), me.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// ReactRequest represents the reaction request body.
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// React appends a reaction to a direct message.
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ReactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.engine.React(r.Context(), me.ID, chi.URLParam(r, "id"), req.Emoji)
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// engineError maps engine validation errors onto HTTP statuses.
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, realtime.ErrEmptyContent),
		errors.Is(err, realtime.ErrSelfMessage),
		errors.Is(err, realtime.ErrInvalidReaction):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, realtime.ErrUnknownUser),
		errors.Is(err, realtime.ErrUnknownMessage),
		errors.Is(err, realtime.ErrUnknownGroup):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, realtime.ErrNotGroupMember):
		h.Error(w, http.StatusForbidden, err.Error())
	default:
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}
