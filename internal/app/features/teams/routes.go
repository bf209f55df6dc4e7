// internal/app/features/teams/routes.go
package teams

import (
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/teams. Every route requires a signed-in user.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Post("/create", h.HandleCreate)
	r.Post("/join", h.HandleJoin)
	r.Post("/leave", h.HandleLeave)
	r.Get("/my-team", h.ServeMyTeam)
	r.Post("/regenerate-code", h.HandleRegenerateCode)
	return r
}
