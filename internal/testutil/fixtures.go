package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user with the given username and email.
// teamID may be nil for a user who has not joined a team.
func (f *Fixtures) CreateUser(ctx context.Context, username, email string, teamID *primitive.ObjectID) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		Email:        email,
		PasswordHash: "x",
		CurrentTeam:  teamID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateTeam inserts an active team owned by creator with a fresh invite code.
func (f *Fixtures) CreateTeam(ctx context.Context, name, code string, creator primitive.ObjectID) models.Team {
	f.t.Helper()

	now := time.Now().UTC()
	team := models.Team{
		ID:            primitive.NewObjectID(),
		Name:          name,
		Code:          code,
		CodeExpiresAt: now.Add(24 * time.Hour),
		IsActive:      true,
		CreatedBy:     creator,
		Members:       []primitive.ObjectID{creator},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := f.db.Collection("teams").InsertOne(ctx, team); err != nil {
		f.t.Fatalf("failed to create test team: %v", err)
	}
	return team
}

// CreateTask inserts a task in the given team.
func (f *Fixtures) CreateTask(ctx context.Context, teamID, createdBy primitive.ObjectID, title, status string) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Status:    status,
		Priority:  models.PriorityMedium,
		TeamID:    teamID,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("tasks").InsertOne(ctx, task); err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}
	return task
}
