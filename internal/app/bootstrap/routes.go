// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	accountfeature "github.com/dalemusser/syncban/internal/app/features/account"
	activityfeature "github.com/dalemusser/syncban/internal/app/features/activity"
	healthfeature "github.com/dalemusser/syncban/internal/app/features/health"
	tasksfeature "github.com/dalemusser/syncban/internal/app/features/tasks"
	teamsfeature "github.com/dalemusser/syncban/internal/app/features/teams"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. SyncBan mounts the realtime endpoint, the JSON API
// feature routers, health, and metrics.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := current()
	if r == nil {
		return nil, errors.New("bootstrap: BuildHandler called before Startup")
	}
	return r.router(appCfg, deps, logger), nil
}

func (s *services) router(appCfg AppConfig, deps DBDeps, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(s.metrics.Middleware)
	r.Use(cors.Handler(corsOptions(appCfg)))

	// Global auth middleware: loads the bearer token's user into context.
	r.Use(s.tokens.LoadUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, s.conns, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Realtime endpoint. The token arrives in the first frame, not a header.
	r.Handle("/ws", s.conns)

	accountHandler := accountfeature.NewHandler(s.users, s.tokens, s.limiter, s.auditLog, s.audit, logger)
	r.Mount("/api/auth", accountfeature.Routes(accountHandler))

	teamsHandler := teamsfeature.NewHandler(s.users, s.teams, s.recorder, s.rooms, s.conns, s.auditLog, appCfg.InviteCodeTTL, logger)
	r.Mount("/api/teams", teamsfeature.Routes(teamsHandler))

	tasksHandler := tasksfeature.NewHandler(s.users, s.tasks, s.handlers, logger)
	r.Mount("/api/tasks", tasksfeature.Routes(tasksHandler))

	activityHandler := activityfeature.NewHandler(s.users, s.recorder, int64(appCfg.ActivityRetention), logger)
	r.Mount("/api/activity", activityfeature.Routes(activityHandler))

	return r
}

func corsOptions(appCfg AppConfig) cors.Options {
	origins := allowedOrigins(appCfg)
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
