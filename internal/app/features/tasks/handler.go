// internal/app/features/tasks/handler.go
package tasks

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/syncban/internal/app/realtime"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/limits"
	"github.com/dalemusser/syncban/internal/app/system/respond"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Lister reads a team's board.
type Lister interface {
	ListByTeam(ctx context.Context, teamID primitive.ObjectID) ([]models.Task, error)
}

// Mutator applies task writes. The realtime handlers satisfy it, so a write
// made over HTTP reaches the team's live connections the same way a socket
// event does.
type Mutator interface {
	Create(ctx context.Context, p realtime.Principal, in realtime.CreatePayload) (models.Task, error)
	Update(ctx context.Context, p realtime.Principal, in realtime.UpdatePayload) (models.Task, error)
	Delete(ctx context.Context, p realtime.Principal, in realtime.DeletePayload) error
}

type Handler struct {
	Users   *userstore.Store
	Tasks   Lister
	Mutator Mutator
	Log     *zap.Logger
}

func NewHandler(users *userstore.Store, tasks Lister, mutator Mutator, logger *zap.Logger) *Handler {
	return &Handler{
		Users:   users,
		Tasks:   tasks,
		Mutator: mutator,
		Log:     logger,
	}
}

// ServeList handles GET /api/tasks.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "tasks.list")
	defer cancel()

	p, ok := h.principal(ctx, w, r)
	if !ok {
		return
	}
	if p.TeamID == nil {
		respond.Message(w, http.StatusBadRequest, "You must be in a team to view tasks")
		return
	}

	list, err := h.Tasks.ListByTeam(ctx, *p.TeamID)
	if err != nil {
		h.Log.Error("list tasks failed", zap.Error(err), zap.String("team_id", p.TeamID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error fetching tasks")
		return
	}
	if list == nil {
		list = []models.Task{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"message": "Tasks retrieved successfully",
		"tasks":   list,
		"teamId":  p.TeamID,
	})
}

// HandleCreate handles POST /api/tasks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in realtime.CreatePayload
	if err := respond.Decode(w, r, limits.MaxTaskBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, ok := h.principal(r.Context(), w, r)
	if !ok {
		return
	}
	task, err := h.Mutator.Create(r.Context(), p, in)
	if err != nil {
		h.fail(w, p, "create", err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]any{"message": "Task created successfully", "task": task})
}

// HandleUpdate handles PUT /api/tasks/{id}. Only the fields present in the
// body are changed.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in realtime.UpdatePayload
	if err := respond.Decode(w, r, limits.MaxTaskBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.TaskID = chi.URLParam(r, "id")
	in.LegacyID = ""

	p, ok := h.principal(r.Context(), w, r)
	if !ok {
		return
	}
	task, err := h.Mutator.Update(r.Context(), p, in)
	if err != nil {
		h.fail(w, p, "update", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"message": "Task updated successfully", "task": task})
}

// HandleDelete handles DELETE /api/tasks/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(r.Context(), w, r)
	if !ok {
		return
	}
	if err := h.Mutator.Delete(r.Context(), p, realtime.DeletePayload{TaskID: chi.URLParam(r, "id")}); err != nil {
		h.fail(w, p, "delete", err)
		return
	}
	respond.Message(w, http.StatusOK, "Task deleted successfully")
}

// principal reads the caller's current team fresh from the store, unlike a
// realtime connection which keeps the team it had at connect time.
func (h *Handler) principal(ctx context.Context, w http.ResponseWriter, r *http.Request) (realtime.Principal, bool) {
	cu, _ := auth.CurrentUser(r)
	u, err := h.Users.GetByID(ctx, cu.ID)
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Message(w, http.StatusUnauthorized, "Not authorized")
		return realtime.Principal{}, false
	}
	if err != nil {
		h.Log.Error("load user failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error loading user")
		return realtime.Principal{}, false
	}
	return realtime.Principal{UserID: u.ID, TeamID: u.CurrentTeam}, true
}

func (h *Handler) fail(w http.ResponseWriter, p realtime.Principal, op string, err error) {
	var re *realtime.Error
	if !errors.As(err, &re) {
		h.Log.Error("task "+op+" failed", zap.Error(err), zap.String("user_id", p.UserID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error processing task")
		return
	}
	switch re.Code {
	case realtime.CodeNoTeam:
		respond.Message(w, http.StatusBadRequest, "You must be in a team to "+op+" tasks")
	case realtime.CodeNotFound:
		respond.Message(w, http.StatusNotFound, re.Message)
	case realtime.CodeInvalidValue:
		respond.Message(w, http.StatusBadRequest, re.Message)
	default:
		h.Log.Error("task "+op+" failed", zap.Error(err), zap.String("user_id", p.UserID.Hex()))
		respond.Message(w, http.StatusInternalServerError, re.Message)
	}
}
