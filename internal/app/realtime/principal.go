package realtime

import (
	"context"
	"errors"
	"strings"

	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal is the identity bound to one connection for its lifetime.
// TeamID is nil when the user had no current team at connect time.
type Principal struct {
	UserID primitive.ObjectID
	TeamID *primitive.ObjectID
}

// Team returns the bound team or ErrNoTeam.
func (p Principal) Team() (primitive.ObjectID, error) {
	if p.TeamID == nil || p.TeamID.IsZero() {
		return primitive.NilObjectID, ErrNoTeam
	}
	return *p.TeamID, nil
}

// TokenVerifier checks a bearer token and returns the user id it names.
type TokenVerifier interface {
	Verify(token string) (primitive.ObjectID, error)
}

// UserLookup loads the user record a token refers to.
type UserLookup interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

// Verifier turns a connect-time credential into a Principal.
type Verifier struct {
	tokens TokenVerifier
	users  UserLookup
}

func NewVerifier(tokens TokenVerifier, users UserLookup) *Verifier {
	return &Verifier{tokens: tokens, users: users}
}

// Verify validates the token and reads the user's current team from the
// user record, not from the token.
func (v *Verifier) Verify(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	userID, err := v.tokens.Verify(token)
	if err != nil {
		return Principal{}, &Error{Code: CodeUnauthenticated, Message: ErrUnauthenticated.Message, Err: err}
	}

	u, err := v.users.GetByID(ctx, userID)
	if errors.Is(err, userstore.ErrNotFound) {
		return Principal{}, ErrPrincipalNotFound
	}
	if err != nil {
		return Principal{}, transient("Error loading user", err)
	}

	p := Principal{UserID: u.ID}
	if u.CurrentTeam != nil && !u.CurrentTeam.IsZero() {
		team := *u.CurrentTeam
		p.TeamID = &team
	}
	return p, nil
}
