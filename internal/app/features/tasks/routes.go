// internal/app/features/tasks/routes.go
package tasks

import (
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/tasks.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.ServeList)
	r.Post("/", h.HandleCreate)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	return r
}
