// internal/messaging/routes.go

package messaging

import (
	"github.com/gorilla/mux"

	"github.com/imadgeboyega/linkup-backend/internal/auth"
)

// RegisterRoutes registers all messaging routes
func RegisterRoutes(router *mux.Router, handler *Handler, middleware *auth.Middleware) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate)

	api.HandleFunc("/conversations", handler.ListConversations).Methods("GET")
	api.HandleFunc("/conversations", handler.StartConversation).Methods("POST")
	api.HandleFunc("/conversations/{id:[0-9]+}/messages", handler.GetMessages).Methods("GET")

	api.HandleFunc("/messages/send", handler.SendMessage).Methods("POST")
	api.HandleFunc("/messages/unread-count", handler.UnreadCount).Methods("GET")
	api.HandleFunc("/messages/upload", handler.UploadMedia).Methods("POST")
	api.HandleFunc("/messages/{id:[0-9]+}/read", handler.MarkRead).Methods("PUT")
	api.HandleFunc("/messages/{id:[0-9]+}", handler.DeleteMessage).Methods("DELETE")

	// Websocket endpoint authenticates via token, not middleware
	router.HandleFunc("/ws", handler.ServeWS).Methods("GET")
}
