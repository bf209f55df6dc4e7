// internal/app/features/teams/handler.go
package teams

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/syncban/internal/app/realtime"
	teamstore "github.com/dalemusser/syncban/internal/app/store/teams"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auditlog"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/inputval"
	"github.com/dalemusser/syncban/internal/app/system/limits"
	"github.com/dalemusser/syncban/internal/app/system/respond"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ActivitySink records member:joined and member:left.
type ActivitySink interface {
	Record(entryType string, actingUser, teamID primitive.ObjectID, fields models.ActivityFields)
}

// Rooms tells live connections about membership changes.
type Rooms interface {
	Broadcast(teamID primitive.ObjectID, event string, payload any) int
}

// Connections drops a user's live connections so they rebind on reconnect.
type Connections interface {
	DropUser(userID primitive.ObjectID) int
}

type Handler struct {
	Users    *userstore.Store
	Teams    *teamstore.Store
	Activity ActivitySink
	Rooms    Rooms
	Conns    Connections
	AuditLog *auditlog.Logger
	CodeTTL  time.Duration
	Log      *zap.Logger
}

func NewHandler(users *userstore.Store, teams *teamstore.Store, activity ActivitySink, rooms Rooms, conns Connections, al *auditlog.Logger, codeTTL time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		Users:    users,
		Teams:    teams,
		Activity: activity,
		Rooms:    rooms,
		Conns:    conns,
		AuditLog: al,
		CodeTTL:  codeTTL,
		Log:      logger,
	}
}

type createInput struct {
	Name string `json:"name" validate:"required,max=100" label:"Team name"`
}

type joinInput struct {
	Code string `json:"code" validate:"required,teamcode" label:"Team code"`
}

type memberView struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
}

type teamView struct {
	models.Team
	MemberCount int          `json:"memberCount"`
	MemberList  []memberView `json:"memberList,omitempty"`
}

// HandleCreate handles POST /api/teams/create.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	var in createInput
	if err := respond.Decode(w, r, limits.MaxTeamBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		respond.Message(w, http.StatusBadRequest, res.First())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "teams.create")
	defer cancel()

	u, ok := h.loadUser(ctx, w, cu.ID)
	if !ok {
		return
	}
	if u.CurrentTeam != nil {
		respond.Message(w, http.StatusBadRequest, "You are already in a team. Leave current team first.")
		return
	}

	team, err := h.Teams.Create(ctx, in.Name, u.ID, h.CodeTTL)
	if err != nil {
		h.Log.Error("create team failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error creating team")
		return
	}
	if err := h.Users.SetCurrentTeam(ctx, u.ID, &team.ID); err != nil {
		h.Log.Error("bind creator failed", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error creating team")
		return
	}

	h.memberChanged(models.ActivityMemberJoined, realtime.EventMemberJoined, u, team.ID)
	h.AuditLog.TeamCreated(ctx, r, u.ID, team.ID, team.Name)
	h.Log.Info("team created", zap.String("team_id", team.ID.Hex()), zap.String("user_id", u.ID.Hex()))

	respond.JSON(w, http.StatusCreated, map[string]any{
		"message": "Team created successfully",
		"team":    teamView{Team: team, MemberCount: len(team.Members)},
	})
}

// HandleJoin handles POST /api/teams/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	var in joinInput
	if err := respond.Decode(w, r, limits.MaxTeamBody, &in); err != nil {
		respond.Message(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		respond.Message(w, http.StatusBadRequest, res.First())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "teams.join")
	defer cancel()

	u, ok := h.loadUser(ctx, w, cu.ID)
	if !ok {
		return
	}
	if u.CurrentTeam != nil {
		respond.Message(w, http.StatusBadRequest, "You are already in a team. Leave current team first.")
		return
	}

	team, err := h.Teams.GetActiveByCode(ctx, in.Code, time.Now().UTC())
	if errors.Is(err, teamstore.ErrNotFound) {
		h.AuditLog.TeamJoinFailed(ctx, r, u.ID, "invalid or expired code")
		respond.Message(w, http.StatusNotFound, "Invalid or expired team code")
		return
	}
	if err != nil {
		h.Log.Error("lookup team code failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error joining team")
		return
	}

	team, err = h.Teams.AddMember(ctx, team.ID, u.ID)
	if err != nil {
		h.Log.Error("add member failed", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error joining team")
		return
	}
	if err := h.Users.SetCurrentTeam(ctx, u.ID, &team.ID); err != nil {
		h.Log.Error("bind member failed", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error joining team")
		return
	}

	h.memberChanged(models.ActivityMemberJoined, realtime.EventMemberJoined, u, team.ID)
	h.AuditLog.TeamJoined(ctx, r, u.ID, team.ID)
	h.Log.Info("team joined", zap.String("team_id", team.ID.Hex()), zap.String("user_id", u.ID.Hex()))

	respond.JSON(w, http.StatusOK, map[string]any{
		"message": "Successfully joined team",
		"team": map[string]any{
			"id":          team.ID,
			"name":        team.Name,
			"memberCount": len(team.Members),
		},
	})
}

// HandleLeave handles POST /api/teams/leave. The last member to leave
// deactivates the team.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "teams.leave")
	defer cancel()

	u, ok := h.loadUser(ctx, w, cu.ID)
	if !ok {
		return
	}
	if u.CurrentTeam == nil {
		respond.Message(w, http.StatusBadRequest, "You are not in any team")
		return
	}
	teamID := *u.CurrentTeam

	_, err := h.Teams.RemoveMember(ctx, teamID, u.ID)
	if err != nil && !errors.Is(err, teamstore.ErrNotFound) {
		h.Log.Error("remove member failed", zap.Error(err), zap.String("team_id", teamID.Hex()))
		respond.Message(w, http.StatusInternalServerError, "Error leaving team")
		return
	}
	if err := h.Users.SetCurrentTeam(ctx, u.ID, nil); err != nil {
		h.Log.Error("unbind member failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error leaving team")
		return
	}

	h.memberChanged(models.ActivityMemberLeft, realtime.EventMemberLeft, u, teamID)
	h.AuditLog.TeamLeft(ctx, r, u.ID, teamID)
	h.Log.Info("team left", zap.String("team_id", teamID.Hex()), zap.String("user_id", u.ID.Hex()))

	respond.Message(w, http.StatusOK, "Successfully left team")
}

// ServeMyTeam handles GET /api/teams/my-team.
func (h *Handler) ServeMyTeam(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "teams.mine")
	defer cancel()

	u, ok := h.loadUser(ctx, w, cu.ID)
	if !ok {
		return
	}
	if u.CurrentTeam == nil {
		respond.Message(w, http.StatusNotFound, "You are not in any team")
		return
	}
	team, err := h.Teams.GetByID(ctx, *u.CurrentTeam)
	if errors.Is(err, teamstore.ErrNotFound) {
		respond.Message(w, http.StatusNotFound, "Team not found")
		return
	}
	if err != nil {
		h.Log.Error("load team failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error fetching team")
		return
	}

	names, err := h.Users.NamesByID(ctx, team.Members)
	if err != nil {
		h.Log.Error("load member names failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error fetching team")
		return
	}
	view := teamView{Team: team, MemberCount: len(team.Members), MemberList: make([]memberView, 0, len(team.Members))}
	for _, id := range team.Members {
		view.MemberList = append(view.MemberList, memberView{ID: id, Username: names[id]})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"team": view})
}

// HandleRegenerateCode handles POST /api/teams/regenerate-code. Only the
// team's creator may regenerate.
func (h *Handler) HandleRegenerateCode(w http.ResponseWriter, r *http.Request) {
	cu, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "teams.regenerate")
	defer cancel()

	u, ok := h.loadUser(ctx, w, cu.ID)
	if !ok {
		return
	}
	if u.CurrentTeam == nil {
		respond.Message(w, http.StatusBadRequest, "You are not in any team")
		return
	}
	team, err := h.Teams.GetByID(ctx, *u.CurrentTeam)
	if errors.Is(err, teamstore.ErrNotFound) {
		respond.Message(w, http.StatusNotFound, "Team not found")
		return
	}
	if err != nil {
		h.Log.Error("load team failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error regenerating code")
		return
	}
	if team.CreatedBy != u.ID {
		respond.Message(w, http.StatusForbidden, "Only team creator can regenerate code")
		return
	}

	team, err = h.Teams.RegenerateCode(ctx, team.ID, h.CodeTTL)
	if err != nil {
		h.Log.Error("regenerate code failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error regenerating code")
		return
	}
	h.AuditLog.TeamCodeRegenerated(ctx, r, u.ID, team.ID)

	respond.JSON(w, http.StatusOK, map[string]any{
		"message":   "Team code regenerated",
		"code":      team.Code,
		"expiresAt": team.CodeExpiresAt,
	})
}

func (h *Handler) loadUser(ctx context.Context, w http.ResponseWriter, id primitive.ObjectID) (models.User, bool) {
	u, err := h.Users.GetByID(ctx, id)
	if errors.Is(err, userstore.ErrNotFound) {
		respond.Message(w, http.StatusUnauthorized, "Not authorized")
		return models.User{}, false
	}
	if err != nil {
		h.Log.Error("load user failed", zap.Error(err))
		respond.Message(w, http.StatusInternalServerError, "Error loading user")
		return models.User{}, false
	}
	return u, true
}

// memberChanged records the activity, tells the room, and drops the user's
// live connections so the client reconnects bound to its new team.
func (h *Handler) memberChanged(entryType, event string, u models.User, teamID primitive.ObjectID) {
	if h.Activity != nil {
		h.Activity.Record(entryType, u.ID, teamID, models.ActivityFields{MemberName: u.Username})
	}
	if h.Conns != nil {
		h.Conns.DropUser(u.ID)
	}
	if h.Rooms != nil {
		h.Rooms.Broadcast(teamID, event, realtime.MemberPayload{
			UserID:   u.ID.Hex(),
			Username: u.Username,
			TeamID:   teamID.Hex(),
		})
	}
}
