package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter configures the API routes. When mediaDir is set, stored objects
// are served from it under /media/.
func NewRouter(handler *Handler, mediaDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handler.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(handler.identityMiddleware)
	api.HandleFunc("/videos", handler.ListVideos).Methods("GET")
	api.HandleFunc("/videos", handler.UploadVideo).Methods("POST")
	api.HandleFunc("/videos/{id}", handler.GetVideo).Methods("GET")
	api.HandleFunc("/videos/{id}", handler.DeleteVideo).Methods("DELETE")
	api.HandleFunc("/videos/{id}/stream", handler.StreamVideo).Methods("GET")
	api.HandleFunc("/videos/{id}/events", handler.VideoEvents).Methods("GET")
	api.HandleFunc("/videos/{id}/cancel", handler.CancelVideo).Methods("POST")
	api.HandleFunc("/events", handler.Events).Methods("GET")
	api.HandleFunc("/users", handler.ListUsers).Methods("GET")
	api.HandleFunc("/users/{id}/role", handler.ChangeRole).Methods("PUT")

	if mediaDir != "" {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))
	}
	return r
}

// WithCORS wraps the router for browser clients on allowedOrigins.
func WithCORS(router http.Handler, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-User-Id", "X-User-Role"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}
