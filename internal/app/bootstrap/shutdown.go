// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background work, closes live connections, drains the
// activity recorder, and disconnects MongoDB, in that order.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if r := current(); r != nil {
		r.stop(logger)
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}

func (r *services) stop(logger *zap.Logger) {
	r.jobs.Stop()

	n := r.conns.Count()
	r.conns.CloseAll()
	logger.Info("closed realtime connections", zap.Int("count", n))

	// Handlers already in flight may still record; Stop writes what is queued.
	r.recorder.Stop()
	r.limiter.Stop()
}
