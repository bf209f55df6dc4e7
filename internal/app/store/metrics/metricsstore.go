package metricsstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of stored-document totals exported as gauges.
type Counts struct {
	Users       int64
	ActiveTeams int64
	Tasks       int64
	Activity    int64
}

// FetchBoardCounts returns the high-level document counts.
// Tolerant: on error it returns 0 for that counter.
func FetchBoardCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	if n, err := db.Collection("users").EstimatedDocumentCount(ctx); err == nil {
		out.Users = n
	}
	if n, err := db.Collection("teams").CountDocuments(ctx, bson.M{"is_active": true}); err == nil {
		out.ActiveTeams = n
	}
	if n, err := db.Collection("tasks").EstimatedDocumentCount(ctx); err == nil {
		out.Tasks = n
	}
	if n, err := db.Collection("activity_entries").EstimatedDocumentCount(ctx); err == nil {
		out.Activity = n
	}

	return out
}
