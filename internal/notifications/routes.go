// internal/notifications/routes.go

package notifications

import (
	"github.com/gorilla/mux"

	"github.com/imadgeboyega/linkup-backend/internal/auth"
)

// RegisterRoutes registers all notification routes
func RegisterRoutes(router *mux.Router, handler *Handler, middleware *auth.Middleware) {
	api := router.PathPrefix("/api/notifications").Subrouter()
	api.Use(middleware.Authenticate)

	api.HandleFunc("", handler.List).Methods("GET")
	api.HandleFunc("", handler.Create).Methods("POST")
	api.HandleFunc("/unread-count", handler.UnreadCount).Methods("GET")
	api.HandleFunc("/read-all", handler.MarkAllRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}/read", handler.MarkRead).Methods("PUT")
	api.HandleFunc("/{id:[0-9]+}", handler.Delete).Methods("DELETE")
}
