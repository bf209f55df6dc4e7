// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/syncban/internal/domain/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// collectionSpec pairs a collection with its optional $jsonSchema validator.
type collectionSpec struct {
	name   string
	schema bson.M
}

func specs() []collectionSpec {
	return []collectionSpec{
		{"users", usersSchema()},
		{"teams", teamsSchema()},
		{"tasks", tasksSchema()},
		{"activity_entries", activitySchema()},
		{"audit_events", nil},
	}
}

// EnsureAll creates any missing collection and attaches its validator.
// Servers that reject collMod validators (some DocumentDB versions) are
// logged and skipped. All failures are joined into one error.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		// Fall through to CreateCollection and tolerate NamespaceExists.
		zap.L().Warn("listCollections failed", zap.Error(err))
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var errs []error
	for _, c := range specs() {
		if err := ensure(ctx, db, c, have[c.name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func ensure(ctx context.Context, db *mongo.Database, c collectionSpec, exists bool) error {
	log := zap.L().With(zap.String("collection", c.name))
	if !exists {
		switch err := db.CreateCollection(ctx, c.name); {
		case err == nil:
			log.Info("created collection")
		case commandErrorIs(err, 48, "already exists", "namespace exists"):
		default:
			log.Warn("createCollection failed", zap.Error(err))
			return err
		}
	}
	if c.schema == nil {
		return nil
	}

	cmd := bson.D{
		{Key: "collMod", Value: c.name},
		{Key: "validator", Value: c.schema},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	err := db.RunCommand(ctx, cmd).Err()
	switch {
	case err == nil:
		log.Info("validator ensured")
		return nil
	case commandErrorIs(err, 59, "no such command"), commandErrorIs(err, 115, "not implemented", "not supported"):
		log.Info("validator skipped (unsupported)")
		return nil
	default:
		return err
	}
}

// commandErrorIs reports whether err is a server error with the given code,
// or whose message contains one of phrases.
func commandErrorIs(err error, code int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == code {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

/* ------------------------- JSON-Schema docs ---------------------- */

func enum(values []string) bson.A {
	out := make(bson.A, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"username", "email", "password_hash"},
			"properties": bson.M{
				"username":      bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"email":         bson.M{"bsonType": "string", "minLength": 3},
				"password_hash": bson.M{"bsonType": "string", "minLength": 1},
				"current_team":  bson.M{"bsonType": bson.A{"objectId", "null"}},
			},
		},
	}
}

func teamsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "code", "is_active", "created_by", "members"},
			"properties": bson.M{
				"name":            bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"code":            bson.M{"bsonType": "string", "pattern": "^[A-Z0-9]{6}$"},
				"code_expires_at": bson.M{"bsonType": "date"},
				"is_active":       bson.M{"bsonType": "bool"},
				"created_by":      bson.M{"bsonType": "objectId"},
				"members":         bson.M{"bsonType": "array", "items": bson.M{"bsonType": "objectId"}},
			},
		},
	}
}

func tasksSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"title", "status", "priority", "team_id", "created_by"},
			"properties": bson.M{
				"title":            bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"description":      bson.M{"bsonType": "string"},
				"status":           bson.M{"enum": enum(models.AllStatuses)},
				"priority":         bson.M{"enum": enum(models.AllPriorities)},
				"assigned_to":      bson.M{"bsonType": "string"},
				"team_id":          bson.M{"bsonType": "objectId"},
				"created_by":       bson.M{"bsonType": "objectId"},
				"last_modified_by": bson.M{"bsonType": "objectId"},
			},
		},
	}
}

func activitySchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"type", "acting_user", "team_id", "created_at"},
			"properties": bson.M{
				"type":        bson.M{"enum": enum(models.AllActivityTypes)},
				"acting_user": bson.M{"bsonType": "objectId"},
				"team_id":     bson.M{"bsonType": "objectId"},
				"created_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}
