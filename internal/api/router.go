package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the handlers under /api/v1. When staticDir is set the
// browser client is served from it.
func NewRouter(chatHandler *ChatHandler, modelHandler *ModelHandler, staticDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/state", chatHandler.GetState)
			r.Post("/stop", chatHandler.StopGeneration)
			r.Post("/toggle", chatHandler.Toggle)

			r.Post("/images", chatHandler.StageImages)
			r.Delete("/images/{index}", chatHandler.RemoveImage)

			r.Get("/conversations", chatHandler.ListConversations)
			r.Post("/conversations/new", chatHandler.NewConversation)
			r.Get("/conversations/{conversationID}", chatHandler.GetConversation)
			r.Post("/conversations/{conversationID}/load", chatHandler.LoadConversation)
			r.Delete("/conversations/{conversationID}", chatHandler.DeleteConversation)

			r.Get("/models", modelHandler.HandleListModels)
			r.Put("/models/selected", modelHandler.HandleSelectModel)

			r.Get("/local/models", modelHandler.HandleListLocalModels)
			r.Delete("/local/models", modelHandler.HandleRemoveLocalModel)
			r.Put("/local/mode", modelHandler.HandleSetLocalMode)
			r.Put("/local/active", modelHandler.HandleSelectLocalModel)
		})

		// Streaming and generation routes hold the connection open.
		r.Group(func(r chi.Router) {
			r.Get("/events", chatHandler.HandleEvents)
			r.Post("/messages", chatHandler.SendMessage)
			r.Post("/messages/retry", chatHandler.RetryMessage)
			r.Post("/local/models", modelHandler.HandleLoadLocalModel)
		})
	})

	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Handle("/*", http.StripPrefix("/", fileServer))
	}

	return r
}
