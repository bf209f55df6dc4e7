// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	metricsstore "github.com/dalemusser/syncban/internal/app/store/metrics"
	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Job is a named unit of periodic background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// ActivityTrimmer is the slice of the activity store the retention job needs.
type ActivityTrimmer interface {
	Teams(ctx context.Context) ([]primitive.ObjectID, error)
	TrimTeam(ctx context.Context, teamID primitive.ObjectID, keep int64) (int64, error)
}

// ActivityRetentionJob keeps only the newest keep activity entries per team.
// A failure on one team is logged and the sweep moves on to the next.
func ActivityRetentionJob(store ActivityTrimmer, logger *zap.Logger, keep int64, interval time.Duration) Job {
	return Job{
		Name:     "activity-retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			teams, err := store.Teams(ctx)
			if err != nil {
				return err
			}
			var total int64
			for _, teamID := range teams {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n, err := store.TrimTeam(ctx, teamID, keep)
				if err != nil {
					logger.Warn("activity trim failed",
						zap.String("team_id", teamID.Hex()),
						zap.Error(err))
					continue
				}
				total += n
			}
			if total > 0 {
				logger.Info("trimmed activity entries",
					zap.Int64("count", total),
					zap.Int("teams", len(teams)),
					zap.Int64("keep", keep))
			}
			return nil
		},
	}
}

// AuditPurger deletes audit events older than a cutoff.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRetentionJob removes audit events older than maxAge on each run.
func AuditRetentionJob(store AuditPurger, logger *zap.Logger, maxAge, interval time.Duration) Job {
	return Job{
		Name:     "audit-retention",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := store.PurgeBefore(ctx, time.Now().UTC().Add(-maxAge))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged audit events", zap.Int64("count", n), zap.Duration("max_age", maxAge))
			}
			return nil
		},
	}
}

// BoardCountsJob refreshes the stored-document gauges.
func BoardCountsJob(db *mongo.Database, m *metrics.Metrics, interval time.Duration) Job {
	return Job{
		Name:     "board-counts",
		Interval: interval,
		Run: func(ctx context.Context) error {
			c := metricsstore.FetchBoardCounts(ctx, db)
			m.SetBoardTotal("users", c.Users)
			m.SetBoardTotal("teams", c.ActiveTeams)
			m.SetBoardTotal("tasks", c.Tasks)
			m.SetBoardTotal("activity", c.Activity)
			return nil
		},
	}
}
