// Package timeouts holds the deadlines applied to store calls made from
// HTTP handlers, realtime event handlers and startup code.
//
//   - Ping: health checks and the startup connectivity probe
//   - Short: single-document reads and lookups
//   - Medium: list queries, task writes and team membership changes
//   - Long: index builds and background jobs
//
// Values are process-wide and may be overridden once at startup with
// Configure; zero fields keep the current value.
package timeouts

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
	DefaultLong   = 30 * time.Second
)

type kind int

const (
	kindPing kind = iota
	kindShort
	kindMedium
	kindLong
	numKinds
)

var defaults = [numKinds]time.Duration{DefaultPing, DefaultShort, DefaultMedium, DefaultLong}

var current [numKinds]atomic.Int64

func init() { Reset() }

func get(k kind) time.Duration { return time.Duration(current[k].Load()) }

func Ping() time.Duration   { return get(kindPing) }
func Short() time.Duration  { return get(kindShort) }
func Medium() time.Duration { return get(kindMedium) }
func Long() time.Duration   { return get(kindLong) }

// Config mirrors the four classes. Zero fields are ignored by Configure.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

func (c Config) values() [numKinds]time.Duration {
	return [numKinds]time.Duration{c.Ping, c.Short, c.Medium, c.Long}
}

// Configure overrides every positive field of cfg.
func Configure(cfg Config) {
	for k, d := range cfg.values() {
		if d > 0 {
			current[k].Store(int64(d))
		}
	}
}

// Reset restores the defaults. Tests that call Configure should defer it.
func Reset() {
	for k, d := range defaults {
		current[k].Store(int64(d))
	}
}

// Current reports the values in effect.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Medium: Medium(), Long: Long()}
}

// WithTimeout derives a context bounded by timeout. The returned cancel logs
// a warning naming operation when the deadline was what ended the context.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "teams.join")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if log != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout))
		}
		cancel()
	}
}

// Detached is WithTimeout over a parent whose cancellation is ignored, for
// writes that must complete after the requesting socket has gone away.
func Detached(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	return WithTimeout(context.WithoutCancel(parent), timeout, log, operation)
}
