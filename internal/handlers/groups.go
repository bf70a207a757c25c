package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ShaheerQidwai/chat-app/internal/api/middleware"
	"github.com/ShaheerQidwai/chat-app/internal/models"
	"github.com/ShaheerQidwai/chat-app/internal/realtime"
)

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"memberIds"`
}

// CreateGroup creates a group chat. The creator is always a member.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	for _, id := range req.MemberIDs {
		member, err := h.store.GetUserByID(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if member == nil {
			h.Error(w, http.StatusUnprocessableEntity, "unknown member: "+id.String())
			return
		}
	}

	group, err := h.store.CreateGroup(r.Context(), name, me.ID, req.MemberIDs)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	h.JSON(w, http.StatusCreated, group)
}

// GroupListResponse represents the group list response.
type GroupListResponse struct {
	Groups []models.Group `json:"groups"`
}

// ListGroups returns the groups the authenticated user belongs to.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	groups, err := h.store.ListGroupsForUser(r.Context(), me.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, GroupListResponse{Groups: groups})
}

// GroupMessagesResponse represents a group's message history.
type GroupMessagesResponse struct {
	Messages []models.GroupMessage `json:"messages"`
}

// GetGroupMessages returns a group's messages, oldest first. Members only.
func (h *Handler) GetGroupMessages(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid group ID format")
		return
	}

	group, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if group == nil {
		h.Error(w, http.StatusNotFound, "group not found")
		return
	}
	if !containsID(group.MemberIDs, me.ID) {
		h.Error(w, http.StatusForbidden, "not a member of this group")
		return
	}

	msgs, err := h.store.ListGroupMessages(r.Context(), groupID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, GroupMessagesResponse{Messages: msgs})
}

// SendGroupMessageRequest represents the group message request body.
type SendGroupMessageRequest struct {
	Content string `json:"content"`
}

// SendGroupMessage persists and fans out a group message over HTTP.
func (h *Handler) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := middleware.UserFrom(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	groupID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid group ID format")
		return
	}

	var req SendGroupMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.engine.SendGroup(r.Context(), me, &realtime.GroupMessagePayload{
		GroupID: groupID,
		Content: req.Content,
	})
	if err != nil {
		h.engineError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
