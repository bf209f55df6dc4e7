// internal/app/features/activity/handler.go
package activity

import (
	"context"
	"errors"
	"net/http"

	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/respond"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Lister returns a team's newest activity entries, newest first.
type Lister interface {
	List(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.ActivityEntry, error)
}

// Handler owns the team activity feed.
type Handler struct {
	Users    *userstore.Store
	Activity Lister
	Limit    int64
	Log      *zap.Logger
}

// NewHandler creates a new activity Handler. limit is the number of entries
// a read returns.
func NewHandler(users *userstore.Store, activity Lister, limit int64, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    users,
		Activity: activity,
		Limit:    limit,
		Log:      logger,
	}
}

type userRef struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
}

type entryView struct {
	models.ActivityEntry
	User userRef `json:"user"`
}

// ServeList handles GET /api/activity.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "activity.list")
	defer cancel()

	u, err := h.Users.GetByID(ctx, cu.ID)
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Message(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	if err != nil {
		h.Log.Error("load user failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error fetching activities")
		return
	}
	if u.CurrentTeam == nil {
		respond.Message(w, http.StatusNotFound, "You are not in any team")
		return
	}

	entries, err := h.Activity.List(ctx, *u.CurrentTeam, h.Limit)
	if err != nil {
		h.Log.Error("list activity failed", zap.Error(err), zap.String("team_id", u.CurrentTeam.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error fetching activities")
		return
	}

	ids := make([]primitive.ObjectID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ActingUser)
	}
	names, err := h.Users.NamesByID(ctx, ids)
	if err != nil {
		h.Log.Warn("resolve activity names failed", zap.Error(err))
		names = nil
	}

	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{ActivityEntry: e, User: userRef{ID: e.ActingUser, Username: names[e.ActingUser]}})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"activities": out})
}
