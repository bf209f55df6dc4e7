// internal/app/features/account/routes.go
package account

import (
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes is mounted under /api/auth.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.With(h.Limiter.PerIP).Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.With(auth.RequireSignedIn).Get("/profile", h.ServeProfile)
	r.With(auth.RequireSignedIn).Get("/history", h.ServeHistory)
	return r
}
