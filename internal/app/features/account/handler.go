// internal/app/features/account/handler.go
package account

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/syncban/internal/app/store/audit"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auditlog"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/inputval"
	"github.com/dalemusser/syncban/internal/app/system/limits"
	"github.com/dalemusser/syncban/internal/app/system/normalize"
	"github.com/dalemusser/syncban/internal/app/system/ratelimit"
	"github.com/dalemusser/syncban/internal/app/system/respond"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HistoryReader returns a user's newest audit events.
type HistoryReader interface {
	ForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]audit.Event, error)
}

// Handler serves registration, login, the signed-in user's profile and
// their sign-in history.
type Handler struct {
	Users    *userstore.Store
	Tokens   *auth.TokenManager
	Limiter  *ratelimit.LoginLimiter
	AuditLog *auditlog.Logger
	History  HistoryReader
	Log      *zap.Logger

	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
}

func NewHandler(users *userstore.Store, tokens *auth.TokenManager, limiter *ratelimit.LoginLimiter, al *auditlog.Logger, history HistoryReader, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    users,
		Tokens:   tokens,
		Limiter:  limiter,
		AuditLog: al,
		History:  history,
		Log:      logger,
	}
}

type registerInput struct {
	Username string `json:"username" validate:"required,max=50" label:"Username"`
	Email    string `json:"email" validate:"required,email" label:"Email"`
	Password string `json:"password" validate:"required,min=6,max=72" label:"Password"`
}

type loginInput struct {
	Email    string `json:"email" validate:"required" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
}

// HandleRegister handles POST /api/auth/register.
//
// 201 {"message":"User registered"}; 400 on invalid input or a taken email.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in registerInput
	if err := respond.Decode(w, r, limits.MaxAuthBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		respond.Message(w, http.StatusBadRequest, res.First())
		return
	}

	cost := h.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		h.Log.Error("bcrypt hash failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error registering user")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.register")
	defer cancel()

	u, err := h.Users.Create(ctx, models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		respond.Message(w, http.StatusBadRequest, "Email already exists")
		return
	}
	if err != nil {
		h.Log.Error("create user failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error registering user")
		return
	}

	h.AuditLog.UserRegistered(ctx, r, u.ID, u.Email)
	h.Log.Info("user registered", zap.String("user_id", u.ID.Hex()))
	respond.Message(w, http.StatusCreated, "User registered")
}

// HandleLogin handles POST /api/auth/login.
//
// 200 {"token":"..."}; 401 on unknown email or wrong password; 429 when
// rate limited.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := respond.Decode(w, r, limits.MaxAuthBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		respond.Message(w, http.StatusBadRequest, res.First())
		return
	}
	email := normalize.Email(in.Email)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.login")
	defer cancel()

	if h.Limiter != nil {
		if ok, reason := h.Limiter.Check(r, email); !ok {
			h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedRateLimit, nil, email, reason)
			respond.Message(w, http.StatusTooManyRequests, reason)
			return
		}
	}

	u, err := h.Users.GetByEmail(ctx, email)
	if errors.Is(err, userstore.ErrNotFound) {
		h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedUserNotFound, nil, email, "unknown email")
		respond.Message(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.Log.Error("load user failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error logging in")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		h.AuditLog.LoginFailed(ctx, r, audit.EventLoginFailedWrongPassword, &u.ID, email, "wrong password")
		respond.Message(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.Tokens.Issue(u.ID)
	if err != nil {
		h.Log.Error("issue token failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error logging in")
		return
	}
	if h.Limiter != nil {
		h.Limiter.ResetEmail(email)
	}
	h.AuditLog.LoginSuccess(ctx, r, u.ID, email)
	respond.JSON(w, http.StatusOK, map[string]string{"token": token})
}

// ServeProfile handles GET /api/auth/profile for the signed-in user.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	cu, ok := auth.CurrentUser(r)
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.profile")
	defer cancel()

	u, err := h.Users.GetByID(ctx, cu.ID)
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Message(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.Log.Error("load profile failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error fetching profile")
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

// ServeHistory handles GET /api/auth/history: the signed-in user's most
// recent sign-ins, failed attempts and team membership changes.
func (h *Handler) ServeHistory(w http.ResponseWriter, r *http.Request) {
	cu, ok := auth.CurrentUser(r)
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "account.history")
	defer cancel()

	events, err := h.History.ForUser(ctx, cu.ID, limits.HistoryPageSize)
	if err != nil {
		h.Log.Error("load history failed", zap.String("user_id", cu.ID.Hex()), zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error fetching history")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"events": events})
}
