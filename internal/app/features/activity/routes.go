// internal/app/features/activity/routes.go
package activity

import (
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/activity.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.ServeList)
	return r
}
