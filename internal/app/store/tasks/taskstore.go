package taskstore

import (
	"context"
	"errors"

	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when the task does not exist or belongs to a
// different team. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("task not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

// Patch lists the fields an update may change. Nil fields are left alone.
// An AssignedTo pointing at "" clears the assignee.
type Patch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssignedTo  *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.AssignedTo == nil
}

// Indexes lists the indexes the tasks collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_tasks_team_created"),
		},
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, Indexes())
	return err
}

// Create inserts t into the team named by t.TeamID. ID, CreatedBy,
// LastModifiedBy and both timestamps are taken from mc.
func (s *Store) Create(ctx context.Context, t models.Task, mc models.MutationContext) (models.Task, error) {
	t.ID = primitive.NewObjectID()
	t.CreatedBy = mc.Actor
	actor := mc.Actor
	t.LastModifiedBy = &actor
	t.CreatedAt = mc.At
	t.UpdatedAt = mc.At

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// GetForTeam loads a task only if it belongs to teamID.
func (s *Store) GetForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error) {
	var t models.Task
	err := s.c.FindOne(ctx, bson.M{"_id": id, "team_id": teamID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	return t, err
}

// Update applies p to the task and returns the stored result. The filter
// includes teamID so a task from another team is never touched.
func (s *Store) Update(ctx context.Context, teamID, id primitive.ObjectID, p Patch, mc models.MutationContext) (models.Task, error) {
	set := bson.M{
		"updated_at":       mc.At,
		"last_modified_by": mc.Actor,
	}
	update := bson.M{"$set": set}

	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Priority != nil {
		set["priority"] = *p.Priority
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			update["$unset"] = bson.M{"assigned_to": ""}
		} else {
			set["assigned_to"] = *p.AssignedTo
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Task
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id, "team_id": teamID}, update, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	return out, err
}

// DeleteForTeam removes the task and returns what was deleted.
func (s *Store) DeleteForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error) {
	var out models.Task
	err := s.c.FindOneAndDelete(ctx, bson.M{"_id": id, "team_id": teamID}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Task{}, ErrNotFound
	}
	return out, err
}

// ListByTeam returns every task of the team, newest first.
func (s *Store) ListByTeam(ctx context.Context, teamID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"team_id": teamID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Task, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
