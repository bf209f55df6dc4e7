package teamstore

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/normalize"
	"github.com/dalemusser/syncban/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CodeLength is the number of characters in an invite code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeAttempts bounds retries when a generated code collides with an existing one.
const codeAttempts = 5

var (
	// ErrNotFound is returned when no team matches, or when an invite code
	// is unknown, expired, or belongs to an inactive team.
	ErrNotFound = errors.New("team not found")
	// ErrCodeExhausted is returned when no unique invite code could be generated.
	ErrCodeExhausted = errors.New("could not generate a unique team code")
	errNameNeeded    = errors.New("team name is required")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("teams")}
}

// Indexes lists the indexes the teams collection needs.
func Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetName("uniq_teams_code").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "members", Value: 1}},
			Options: options.Index().SetName("idx_teams_members"),
		},
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, Indexes())
	return err
}

// NewCode returns a random invite code of CodeLength characters from A-Z0-9.
func NewCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Create inserts a new active team with creator as its only member and a
// fresh invite code valid for codeTTL.
func (s *Store) Create(ctx context.Context, name string, creator primitive.ObjectID, codeTTL time.Duration) (models.Team, error) {
	name = normalize.Name(name)
	if name == "" {
		return models.Team{}, errNameNeeded
	}

	now := time.Now().UTC()
	t := models.Team{
		ID:            primitive.NewObjectID(),
		Name:          name,
		CodeExpiresAt: now.Add(codeTTL),
		IsActive:      true,
		CreatedBy:     creator,
		Members:       []primitive.ObjectID{creator},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := NewCode()
		if err != nil {
			return models.Team{}, err
		}
		t.Code = code
		_, err = s.c.InsertOne(ctx, t)
		if err == nil {
			return t, nil
		}
		if !wafflemongo.IsDup(err) {
			return models.Team{}, err
		}
	}
	return models.Team{}, ErrCodeExhausted
}

// GetByID loads a team by ObjectID. Returns ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Team, error) {
	var t models.Team
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, ErrNotFound
	}
	return t, err
}

// GetActiveByCode finds an active team whose code matches (case-insensitive)
// and has not expired at now.
func (s *Store) GetActiveByCode(ctx context.Context, code string, now time.Time) (models.Team, error) {
	var t models.Team
	filter := bson.M{
		"code":            normalize.Code(code),
		"is_active":       true,
		"code_expires_at": bson.M{"$gt": now},
	}
	err := s.c.FindOne(ctx, filter).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, ErrNotFound
	}
	return t, err
}

// AddMember adds userID to the team's members if not already present.
func (s *Store) AddMember(ctx context.Context, id, userID primitive.ObjectID) (models.Team, error) {
	update := bson.M{
		"$addToSet": bson.M{"members": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	return s.findOneAndUpdate(ctx, id, update)
}

// RemoveMember removes userID from the team. When no members remain the
// team is deactivated, which also invalidates its invite code.
func (s *Store) RemoveMember(ctx context.Context, id, userID primitive.ObjectID) (models.Team, error) {
	update := bson.M{
		"$pull": bson.M{"members": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	t, err := s.findOneAndUpdate(ctx, id, update)
	if err != nil {
		return models.Team{}, err
	}
	if len(t.Members) > 0 {
		return t, nil
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "members": bson.M{"$size": 0}},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return models.Team{}, err
	}
	if res.ModifiedCount > 0 {
		t.IsActive = false
	}
	return t, nil
}

// RegenerateCode replaces the team's invite code and extends its expiry to now+codeTTL.
func (s *Store) RegenerateCode(ctx context.Context, id primitive.ObjectID, codeTTL time.Duration) (models.Team, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := NewCode()
		if err != nil {
			return models.Team{}, err
		}
		now := time.Now().UTC()
		t, err := s.findOneAndUpdate(ctx, id, bson.M{"$set": bson.M{
			"code":            code,
			"code_expires_at": now.Add(codeTTL),
			"updated_at":      now,
		}})
		if err == nil {
			return t, nil
		}
		if !wafflemongo.IsDup(err) {
			return models.Team{}, err
		}
	}
	return models.Team{}, ErrCodeExhausted
}

func (s *Store) findOneAndUpdate(ctx context.Context, id primitive.ObjectID, update bson.M) (models.Team, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var t models.Team
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Team{}, ErrNotFound
	}
	return t, err
}
