// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/syncban/internal/app/store/audit"
	"github.com/dalemusser/syncban/internal/app/system/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destination settings for a category.
const (
	DestAll = "all" // MongoDB + zap
	DestDB  = "db"  // MongoDB only
	DestLog = "log" // zap only
	DestOff = "off" // disabled
)

// Config holds audit logging configuration per category.
type Config struct {
	// Auth controls registration and login events.
	Auth string
	// Team controls team create/join/leave/regenerate events.
	Team string
}

// Logger logs audit events to MongoDB (via audit.Store) and zap.
// A store failure is logged and never returned to the caller.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.TeamID != nil {
		fields = append(fields, zap.String("team_id", event.TeamID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event according to the category's destination.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := DestAll
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryTeam:
		setting = l.config.Team
	}
	if setting == "" {
		setting = DestAll
	}
	if setting == DestOff {
		return
	}

	if setting == DestAll || setting == DestLog {
		l.logToZap(event)
	}
	if (setting == DestAll || setting == DestDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) fromRequest(r *http.Request, event audit.Event) audit.Event {
	if r != nil {
		event.IP = ratelimit.ClientIP(r)
		event.UserAgent = r.UserAgent()
	}
	return event
}

// --- Authentication Events ---

// UserRegistered logs a new account.
func (l *Logger) UserRegistered(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	if l == nil {
		return
	}
	l.Log(ctx, l.fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventUserRegistered,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// LoginSuccess logs a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, email string) {
	if l == nil {
		return
	}
	l.Log(ctx, l.fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UserID:    &userID,
		Success:   true,
		Details:   map[string]string{"email": email},
	}))
}

// LoginFailed logs a failed login. eventType is one of the
// audit.EventLoginFailed* constants; userID is nil when the email is unknown.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, eventType string, userID *primitive.ObjectID, email, reason string) {
	if l == nil {
		return
	}
	l.Log(ctx, l.fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
		Details:       map[string]string{"email": email},
	}))
}

// --- Team Events ---

func (l *Logger) team(ctx context.Context, r *http.Request, eventType string, userID, teamID primitive.ObjectID, details map[string]string) {
	if l == nil {
		return
	}
	l.Log(ctx, l.fromRequest(r, audit.Event{
		Category:  audit.CategoryTeam,
		EventType: eventType,
		UserID:    &userID,
		TeamID:    &teamID,
		Success:   true,
		Details:   details,
	}))
}

// TeamCreated logs a new team.
func (l *Logger) TeamCreated(ctx context.Context, r *http.Request, userID, teamID primitive.ObjectID, name string) {
	l.team(ctx, r, audit.EventTeamCreated, userID, teamID, map[string]string{"name": name})
}

// TeamJoined logs a user joining a team by code.
func (l *Logger) TeamJoined(ctx context.Context, r *http.Request, userID, teamID primitive.ObjectID) {
	l.team(ctx, r, audit.EventTeamJoined, userID, teamID, nil)
}

// TeamLeft logs a user leaving their team.
func (l *Logger) TeamLeft(ctx context.Context, r *http.Request, userID, teamID primitive.ObjectID) {
	l.team(ctx, r, audit.EventTeamLeft, userID, teamID, nil)
}

// TeamCodeRegenerated logs a creator rotating the invite code.
func (l *Logger) TeamCodeRegenerated(ctx context.Context, r *http.Request, userID, teamID primitive.ObjectID) {
	l.team(ctx, r, audit.EventTeamCodeRegenerated, userID, teamID, nil)
}

// TeamJoinFailed logs an attempt with an unknown, expired, or inactive code.
func (l *Logger) TeamJoinFailed(ctx context.Context, r *http.Request, userID primitive.ObjectID, reason string) {
	if l == nil {
		return
	}
	l.Log(ctx, l.fromRequest(r, audit.Event{
		Category:      audit.CategoryTeam,
		EventType:     audit.EventTeamJoinFailed,
		UserID:        &userID,
		Success:       false,
		FailureReason: reason,
	}))
}
