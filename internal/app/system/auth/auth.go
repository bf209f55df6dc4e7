package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	// ErrInvalidToken covers every reason a token cannot be trusted:
	// malformed, bad signature, wrong algorithm, expired, or no subject.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSecret is returned when a TokenManager is built without a signing secret.
	ErrNoSecret = errors.New("jwt secret is empty")
)

// Claims are the JWT claims issued at login. Only the subject (user ID) is
// trusted; team membership is always read from the store.
type Claims struct {
	jwt.RegisteredClaims
}

/*─────────────────────────────────────────────────────────────────────────────*
| TokenManager                                                               |
*─────────────────────────────────────────────────────────────────────────────*/

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager builds a TokenManager. A secret shorter than 32 bytes is
// accepted with a warning.
func NewTokenManager(secret string, expiry time.Duration, logger *zap.Logger) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if len(secret) < 32 && logger != nil {
		logger.Warn("jwt secret is short; 32+ chars recommended",
			zap.Int("length", len(secret)))
	}
	return &TokenManager{secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

// Expiry returns the lifetime of issued tokens.
func (m *TokenManager) Expiry() time.Duration { return m.expiry }

// Issue signs a token whose subject is the user's hex ID.
func (m *TokenManager) Issue(userID primitive.ObjectID) (string, error) {
	if userID.IsZero() {
		return "", errors.New("user id required")
	}
	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.Hex(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks the token's signature and expiry and returns the user ID it names.
func (m *TokenManager) Verify(token string) (primitive.ObjectID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return primitive.NilObjectID, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return primitive.NilObjectID, ErrInvalidToken
	}
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(claims.Subject))
	if err != nil {
		return primitive.NilObjectID, ErrInvalidToken
	}
	return id, nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// AuthUser is what the bearer middleware injects into r.Context().
type AuthUser struct {
	ID primitive.ObjectID
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*AuthUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*AuthUser)
	return u, ok
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// LoadUser injects the user into context when the request carries a valid
// bearer token. Invalid or missing tokens are not an error here.
func (m *TokenManager) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := BearerToken(r); tok != "" {
			if id, err := m.Verify(tok); err == nil {
				r = r.WithContext(WithUser(r.Context(), &AuthUser{ID: id}))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects requests without a user in context (set by
// LoadUser) with 401 and a JSON message body.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not authorized"}`))
	})
}
