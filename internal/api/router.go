package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP router exposing the queue to UI observers.
func NewRouter(queueSvc QueueService, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	h := NewTaskHandler(queueSvc, logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", h.SubmitTask)
		r.Get("/tasks/{id}", h.GetTask)
		r.Get("/tasks/{id}/events", h.StreamTaskEvents)
		r.Delete("/tasks/{id}", h.CancelTask)
		r.Get("/queue/stats", h.GetStats)
		r.Get("/queue/estimate", h.GetEstimate)
	})

	return r
}
