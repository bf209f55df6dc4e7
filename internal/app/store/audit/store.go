// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CategoryAuth = "auth"
	CategoryTeam = "team"
)

const (
	EventUserRegistered           = "user_registered"
	EventLoginSuccess             = "login_success"
	EventLoginFailedUserNotFound  = "login_failed_user_not_found"
	EventLoginFailedWrongPassword = "login_failed_wrong_password"
	EventLoginFailedRateLimit     = "login_failed_rate_limit"
)

const (
	EventTeamCreated         = "team_created"
	EventTeamJoined          = "team_joined"
	EventTeamJoinFailed      = "team_join_failed"
	EventTeamLeft            = "team_left"
	EventTeamCodeRegenerated = "team_code_regenerated"
)

// DefaultLimit caps Query when the filter sets no limit.
const DefaultLimit = 100

// Event is one security-relevant action: a sign-in attempt or a change to
// team membership. UserID is nil for attempts against unknown emails.
type Event struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time           `bson:"timestamp" json:"timestamp"`
	Category  string              `bson:"category" json:"category"`
	EventType string              `bson:"event_type" json:"eventType"`
	UserID    *primitive.ObjectID `bson:"user_id,omitempty" json:"-"`
	TeamID    *primitive.ObjectID `bson:"team_id,omitempty" json:"teamId,omitempty"`

	IP        string `bson:"ip" json:"ip"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	Success       bool              `bson:"success" json:"success"`
	FailureReason string            `bson:"failure_reason,omitempty" json:"failureReason,omitempty"`
	Details       map[string]string `bson:"details,omitempty" json:"-"`
}

// QueryFilter narrows Query and Count. Zero fields match everything.
type QueryFilter struct {
	TeamID    *primitive.ObjectID
	UserID    *primitive.ObjectID
	Category  string
	EventType string
	Since     time.Time
	Until     time.Time
	Limit     int64
	Offset    int64
}

func (f QueryFilter) match() bson.D {
	var m bson.D
	if f.TeamID != nil {
		m = append(m, bson.E{Key: "team_id", Value: *f.TeamID})
	}
	if f.UserID != nil {
		m = append(m, bson.E{Key: "user_id", Value: *f.UserID})
	}
	if f.Category != "" {
		m = append(m, bson.E{Key: "category", Value: f.Category})
	}
	if f.EventType != "" {
		m = append(m, bson.E{Key: "event_type", Value: f.EventType})
	}
	var window bson.D
	if !f.Since.IsZero() {
		window = append(window, bson.E{Key: "$gte", Value: f.Since})
	}
	if !f.Until.IsZero() {
		window = append(window, bson.E{Key: "$lte", Value: f.Until})
	}
	if window != nil {
		m = append(m, bson.E{Key: "timestamp", Value: window})
	}
	if m == nil {
		return bson.D{}
	}
	return m
}

// Store reads and writes the audit_events collection.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Indexes serve the per-user history view, team lookups and the age purge.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_audit_time"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_time"),
		},
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_team_time"),
		},
	}
}

// Log inserts ev, filling ID and Timestamp when unset.
func (s *Store) Log(ctx context.Context, ev Event) error {
	if ev.ID.IsZero() {
		ev.ID = primitive.NewObjectID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, ev)
	return err
}

// Query returns matching events, newest first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	cur, err := s.c.Find(ctx, f.match(), options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(f.Offset).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Event{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, f.match())
}

// ForUser returns the newest limit events recorded against userID.
func (s *Store) ForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{UserID: &userID, Limit: limit})
}

// PurgeBefore deletes every event older than cutoff and reports how many
// were removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.D{{Key: "timestamp", Value: bson.D{{Key: "$lt", Value: cutoff}}}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
