// Package activitylog appends team activity entries off the request path.
//
// Record never blocks and never returns an error. Entries are written by a
// single worker in the order they were recorded; a failed write is retried
// once and then dropped with an error log.
package activitylog

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence the recorder writes to and reads from.
type Store interface {
	Create(ctx context.Context, e models.ActivityEntry) error
	ListByTeam(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.ActivityEntry, error)
}

// Config tunes the recorder. Zero values select the defaults.
type Config struct {
	QueueSize    int           // default 256
	WriteTimeout time.Duration // per attempt, default 5s
	RetryDelay   time.Duration // pause before the single retry, default 200ms
}

type Recorder struct {
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time

	mu      sync.RWMutex
	stopped bool
	queue   chan models.ActivityEntry
	done    chan struct{}
}

// New starts the write worker. Call Stop to drain and shut it down.
func New(store Store, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	r := &Recorder{
		store:   store,
		log:     logger,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		queue:   make(chan models.ActivityEntry, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry. CreatedAt is stamped now unless already set, so
// the stored order matches the order mutations were applied.
func (r *Recorder) Record(entryType string, actingUser, teamID primitive.ObjectID, fields models.ActivityFields) {
	r.Enqueue(models.ActivityEntry{
		Type:           entryType,
		ActingUser:     actingUser,
		TeamID:         teamID,
		ActivityFields: fields,
	})
}

// Enqueue is Record for a prebuilt entry.
func (r *Recorder) Enqueue(e models.ActivityEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.drop(e, "recorder stopped")
		return
	}
	select {
	case r.queue <- e:
		r.metrics.ActivityOutcome("queued")
		r.metrics.SetActivityQueueDepth(len(r.queue))
	default:
		r.drop(e, "queue full")
	}
}

// List returns at most limit entries for the team, newest first.
func (r *Recorder) List(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.ActivityEntry, error) {
	return r.store.ListByTeam(ctx, teamID, limit)
}

// Stop refuses new entries, writes everything already queued, and returns
// once the worker has exited. Safe to call more than once.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.metrics.SetActivityQueueDepth(len(r.queue))
		r.write(e)
	}
}

func (r *Recorder) write(e models.ActivityEntry) {
	err := r.attempt(e)
	if err == nil {
		r.metrics.ActivityOutcome("written")
		return
	}

	r.metrics.ActivityOutcome("retried")
	r.log.Warn("activity write failed, retrying",
		zap.String("type", e.Type),
		zap.String("team_id", e.TeamID.Hex()),
		zap.Error(err))
	time.Sleep(r.cfg.RetryDelay)

	if err := r.attempt(e); err != nil {
		r.drop(e, err.Error())
		return
	}
	r.metrics.ActivityOutcome("written")
}

func (r *Recorder) attempt(e models.ActivityEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()
	return r.store.Create(ctx, e)
}

func (r *Recorder) drop(e models.ActivityEntry, reason string) {
	r.metrics.ActivityOutcome("dropped")
	r.log.Error("activity entry dropped",
		zap.String("type", e.Type),
		zap.String("team_id", e.TeamID.Hex()),
		zap.String("user_id", e.ActingUser.Hex()),
		zap.String("reason", reason))
}
