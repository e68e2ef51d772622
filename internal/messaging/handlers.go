// internal/messaging/handlers.go

package messaging

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/imadgeboyega/linkup-backend/internal/auth"
	"github.com/imadgeboyega/linkup-backend/internal/common/utils"
	"github.com/imadgeboyega/linkup-backend/internal/config"
)

// Handler exposes the messaging HTTP surface
type Handler struct {
	service  Service
	storage  Storage
	hub      *Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
}

// NewHandler creates a new messaging handler
func NewHandler(service Service, storage Storage, hub *Hub, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		storage: storage,
		hub:     hub,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// pageParams reads page/limit query parameters with clamped defaults
func pageParams(r *http.Request, defaultLimit int) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

// StartConversation finds or creates a direct conversation with the recipient.
// Returns 201 when a conversation was created, 200 when it already existed.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, created, err := h.service.StartConversation(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfMessage):
			utils.RespondWithError(w, http.StatusBadRequest, "Cannot start a conversation with yourself")
		case errors.Is(err, ErrRecipientNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Recipient not found")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to start conversation")
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondWithJSON(w, status, map[string]interface{}{"conversation": view})
}

// ListConversations returns the caller's conversations, most recent first
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, limit := pageParams(r, h.cfg.ConversationsPerPage)
	views, err := h.service.ListConversations(r.Context(), userID, page, limit)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": views,
		"pagination":    utils.NewPagination(page, limit, len(views)),
	})
}

// GetMessages returns one page of a conversation's messages and marks the
// page read for the caller
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	page, limit := pageParams(r, h.cfg.MessagesPerPage)
	messages, conversation, err := h.service.GetConversationMessages(r.Context(), conversationID, userID, page, limit)
	if err != nil {
		switch {
		// Non-participants get the same 404 as a missing conversation
		case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrConversationNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Conversation not found")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load messages")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"messages":     messages,
		"conversation": conversation,
		"pagination":   utils.NewPagination(page, limit, len(messages)),
	})
}

// SendMessage persists and delivers a new message
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SendMessage(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfMessage):
			utils.RespondWithError(w, http.StatusBadRequest, "Cannot message yourself")
		case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMessageTooLong), errors.Is(err, ErrMissingMedia):
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRecipientNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Recipient not found")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"message":        msg,
		"conversationId": msg.ConversationID,
	})
}

// MarkRead records a read receipt for a message
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	if err := h.service.MarkMessageRead(r.Context(), messageID, userID); err != nil {
		switch {
		case errors.Is(err, ErrMessageNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Message not found")
		case errors.Is(err, ErrNotParticipant):
			utils.RespondWithError(w, http.StatusForbidden, "Not a participant in this conversation")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to mark message read")
		}
		return
	}

	utils.RespondWithMessage(w, http.StatusOK, "Message marked as read")
}

// DeleteMessage removes a message for the caller or for everyone
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	messageID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	// Body is optional; absence means delete for the caller only
	var req DeleteMessageRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.DeleteFor == "" {
		req.DeleteFor = r.URL.Query().Get("deleteFor")
	}

	if err := h.service.DeleteMessage(r.Context(), messageID, userID, req.DeleteFor); err != nil {
		switch {
		case errors.Is(err, ErrMessageNotFound):
			utils.RespondWithError(w, http.StatusNotFound, "Message not found")
		case errors.Is(err, ErrNotParticipant):
			utils.RespondWithError(w, http.StatusForbidden, "Not a participant in this conversation")
		case errors.Is(err, ErrNotAuthorized):
			utils.RespondWithError(w, http.StatusForbidden, "Only the sender can delete a message for everyone")
		default:
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete message")
		}
		return
	}

	utils.RespondWithMessage(w, http.StatusOK, "Message deleted")
}

// UnreadCount returns the caller's total unread message count
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

// UploadMedia stores a message attachment and returns its descriptor for a
// follow-up send
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserIDFromContext(r.Context()); !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxMediaSize)
	if err := r.ParseMultipartForm(h.cfg.MaxMediaSize); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "File too large or malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	media, err := h.storage.Upload(r.Context(), file, header)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"media": media})
}

// ServeWS upgrades the connection and registers the client with the hub.
// Browsers cannot set headers on websocket requests, so the access token is
// also accepted as a query parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token == "" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
		return
	}

	claims, err := utils.ValidateJWT(token, h.cfg.JWTSecret)
	if err != nil || claims.Type != "access" {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	userID := claims.UserID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logClientError(userID, "upgrade", err)
		return
	}

	client := NewClient(h.hub, conn, userID)
	h.hub.register <- client
	client.Start()
}
