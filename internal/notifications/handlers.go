// internal/notifications/handlers.go

package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/imadgeboyega/linkup-backend/internal/auth"
	"github.com/imadgeboyega/linkup-backend/internal/common/utils"
)

// Handler exposes the notification HTTP surface
type Handler struct {
	service Service
}

// NewHandler creates a new notification handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// createRequest is the payload for recording a notification
type createRequest struct {
	RecipientID int64            `json:"recipientId" validate:"required"`
	Type        NotificationType `json:"type" validate:"required"`
	PostID      *int64           `json:"postId,omitempty"`
	CommentID   *int64           `json:"commentId,omitempty"`
	StoryID     *int64           `json:"storyId,omitempty"`
}

// Create records a notification for another user
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	notification, created, err := h.service.Create(r.Context(), &CreateInput{
		RecipientID: req.RecipientID,
		SenderID:    userID,
		Type:        req.Type,
		PostID:      req.PostID,
		CommentID:   req.CommentID,
		StoryID:     req.StoryID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidType):
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification type")
		case errors.Is(err, ErrSelfNotification):
			utils.RespondWithError(w, http.StatusBadRequest, "Cannot notify yourself")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create notification")
		}
		return
	}

	// A debounced duplicate returns the existing record with 200
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	utils.RespondWithJSON(w, status, map[string]interface{}{"notification": notification})
}

// List returns the caller's notifications, newest first
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	notifications, unread, err := h.service.List(r.Context(), userID, page, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load notifications")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"unreadCount":   unread,
		"pagination":    utils.NewPagination(page, limit, len(notifications)),
	})
}

// UnreadCount returns the caller's unread notification count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load unread count")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"unreadCount": count})
}

// MarkRead marks one notification read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.service.MarkRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark notification read")
		return
	}
	utils.RespondWithMessage(w, http.StatusOK, "Notification marked as read")
}

// MarkAllRead marks every notification read
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.service.MarkAllRead(r.Context(), userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark notifications read")
		return
	}
	utils.RespondWithMessage(w, http.StatusOK, "All notifications marked as read")
}

// Delete removes one notification
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.service.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Notification not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete notification")
		return
	}
	utils.RespondWithMessage(w, http.StatusOK, "Notification deleted")
}
