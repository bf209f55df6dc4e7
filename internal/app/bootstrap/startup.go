// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/syncban/internal/app/realtime"
	activitystore "github.com/dalemusser/syncban/internal/app/store/activity"
	"github.com/dalemusser/syncban/internal/app/store/audit"
	taskstore "github.com/dalemusser/syncban/internal/app/store/tasks"
	teamstore "github.com/dalemusser/syncban/internal/app/store/teams"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/activitylog"
	"github.com/dalemusser/syncban/internal/app/system/auditlog"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"github.com/dalemusser/syncban/internal/app/system/ratelimit"
	"github.com/dalemusser/syncban/internal/app/system/tasks"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// services is everything Startup builds that BuildHandler and Shutdown use.
type services struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	users    *userstore.Store
	teams    *teamstore.Store
	tasks    *taskstore.Store
	activity *activitystore.Store
	audit    *audit.Store

	tokens   *auth.TokenManager
	limiter  *ratelimit.LoginLimiter
	auditLog *auditlog.Logger
	recorder *activitylog.Recorder

	rooms    *realtime.Registry
	handlers *realtime.Handlers
	conns    *realtime.Manager
	jobs     *workers.Runner
}

var (
	svcMu sync.Mutex
	svc   *services
)

func current() *services {
	svcMu.Lock()
	defer svcMu.Unlock()
	return svc
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It builds
// the stores, the realtime engine, and starts background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Short: appCfg.TimeoutShort, Medium: appCfg.TimeoutMedium})

	r, err := buildRuntime(appCfg, deps, logger)
	if err != nil {
		return err
	}
	r.jobs.Start()

	svcMu.Lock()
	svc = r
	svcMu.Unlock()

	logger.Info("startup complete",
		zap.Int("activity_retention", appCfg.ActivityRetention),
		zap.Strings("allowed_origins", allowedOrigins(appCfg)))
	return nil
}

func buildRuntime(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*services, error) {
	db := deps.MongoDatabase

	tokens, err := auth.NewTokenManager(appCfg.JWTSecret, appCfg.JWTExpiry, logger)
	if err != nil {
		logger.Error("token manager init failed", zap.Error(err))
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	auditStore := audit.New(db)
	r := &services{
		registry: reg,
		metrics:  m,
		users:    userstore.New(db),
		teams:    teamstore.New(db),
		tasks:    taskstore.New(db),
		activity: activitystore.New(db),
		audit:    auditStore,
		tokens:   tokens,
		limiter:  ratelimit.NewLoginLimiter(),
		auditLog: auditlog.New(auditStore, logger, auditlog.Config{
			Auth: appCfg.AuditLogAuth,
			Team: appCfg.AuditLogTeam,
		}),
	}

	r.recorder = activitylog.New(r.activity, logger, m, activitylog.Config{
		QueueSize: appCfg.ActivityQueueSize,
	})
	r.rooms = realtime.NewRegistry(logger, m)
	r.handlers = realtime.NewHandlers(r.tasks, r.users, r.recorder, r.rooms, logger)
	r.conns = realtime.NewManager(
		realtime.NewVerifier(tokens, r.users),
		r.rooms,
		r.handlers,
		logger,
		m,
		realtime.Config{
			SendBuffer:       appCfg.WSSendBuffer,
			MaxMessageBytes:  appCfg.WSMaxMessageBytes,
			HandshakeTimeout: appCfg.WSHandshakeTimeout,
			AllowedOrigins:   allowedOrigins(appCfg),
		},
	)

	jobs := []tasks.Job{
		tasks.ActivityRetentionJob(r.activity, logger, int64(appCfg.ActivityRetention), appCfg.ActivitySweepInterval),
		tasks.BoardCountsJob(db, m, appCfg.ActivitySweepInterval),
	}
	if appCfg.AuditRetention > 0 {
		jobs = append(jobs, tasks.AuditRetentionJob(r.audit, logger, appCfg.AuditRetention, time.Hour))
	}
	r.jobs = workers.NewRunner(logger, timeouts.Long(), jobs...)
	return r, nil
}
