package userstore_test

import (
	"errors"
	"testing"

	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/domain/models"
	"github.com/dalemusser/syncban/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	created, err := store.Create(ctx, models.User{
		Username:     "  Ada  ",
		Email:        "  Ada@Example.COM ",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Email != "ada@example.com" {
		t.Errorf("Email: got %q, want %q", created.Email, "ada@example.com")
	}
	if created.Username != "Ada" {
		t.Errorf("Username: got %q, want %q", created.Username, "Ada")
	}

	byEmail, err := store.GetByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Errorf("GetByEmail returned %v, want %v", byEmail.ID, created.ID)
	}

	byID, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byID.PasswordHash != "hash" {
		t.Errorf("PasswordHash not persisted")
	}
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	if _, err := store.Create(ctx, models.User{Username: "a", Email: "dup@example.com"}); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	_, err := store.Create(ctx, models.User{Username: "b", Email: "DUP@example.com"})
	if !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := store.GetByID(ctx, primitive.NewObjectID())
	if !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetCurrentTeam(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "bo", "bo@example.com", nil)
	teamID := primitive.NewObjectID()

	if err := store.SetCurrentTeam(ctx, u.ID, &teamID); err != nil {
		t.Fatalf("SetCurrentTeam failed: %v", err)
	}
	got, _ := store.GetByID(ctx, u.ID)
	if got.CurrentTeam == nil || *got.CurrentTeam != teamID {
		t.Fatalf("CurrentTeam: got %v, want %v", got.CurrentTeam, teamID)
	}

	if err := store.SetCurrentTeam(ctx, u.ID, nil); err != nil {
		t.Fatalf("SetCurrentTeam(nil) failed: %v", err)
	}
	got, _ = store.GetByID(ctx, u.ID)
	if got.CurrentTeam != nil {
		t.Errorf("expected CurrentTeam cleared, got %v", got.CurrentTeam)
	}

	if err := store.SetCurrentTeam(ctx, primitive.NewObjectID(), nil); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestStore_NamesByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a := fx.CreateUser(ctx, "alice", "alice@example.com", nil)
	b := fx.CreateUser(ctx, "bob", "bob@example.com", nil)

	names, err := store.NamesByID(ctx, []primitive.ObjectID{a.ID, b.ID, primitive.NewObjectID()})
	if err != nil {
		t.Fatalf("NamesByID failed: %v", err)
	}
	if len(names) != 2 || names[a.ID] != "alice" || names[b.ID] != "bob" {
		t.Errorf("unexpected names: %v", names)
	}
}
