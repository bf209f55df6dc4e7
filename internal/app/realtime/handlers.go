package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	taskstore "github.com/dalemusser/syncban/internal/app/store/tasks"
	"github.com/dalemusser/syncban/internal/app/system/htmlsanitize"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TaskStore is the subset of the task store the handlers write through.
// Every lookup is scoped to a team; a task of another team is reported as
// taskstore.ErrNotFound.
type TaskStore interface {
	Create(ctx context.Context, t models.Task, mc models.MutationContext) (models.Task, error)
	GetForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error)
	Update(ctx context.Context, teamID, id primitive.ObjectID, p taskstore.Patch, mc models.MutationContext) (models.Task, error)
	DeleteForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error)
}

// UserNames resolves user ids to display names for activity entries.
type UserNames interface {
	NamesByID(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error)
}

// ActivitySink accepts activity entries without blocking.
type ActivitySink interface {
	Record(entryType string, actingUser, teamID primitive.ObjectID, fields models.ActivityFields)
}

// Broadcaster fans a payload out to a team's room.
type Broadcaster interface {
	Broadcast(teamID primitive.ObjectID, event string, payload any) int
}

// Handlers applies task mutations for bound connections.
//
// Each mutation of an existing task holds that task's lock from the load
// through the broadcast, so peers see broadcasts in apply order.
type Handlers struct {
	tasks    TaskStore
	names    UserNames
	activity ActivitySink
	rooms    Broadcaster
	log      *zap.Logger
	locks    *taskLocks
	now      func() time.Time
}

func NewHandlers(tasks TaskStore, names UserNames, activity ActivitySink, rooms Broadcaster, logger *zap.Logger) *Handlers {
	return &Handlers{
		tasks:    tasks,
		names:    names,
		activity: activity,
		rooms:    rooms,
		log:      logger,
		locks:    newTaskLocks(),
		now:      time.Now,
	}
}

// Handle decodes one inbound event and runs the matching handler.
func (h *Handlers) Handle(ctx context.Context, p Principal, event string, data json.RawMessage) error {
	switch event {
	case EventTaskCreate:
		var in CreatePayload
		if err := decodeData(data, &in); err != nil {
			return err
		}
		_, err := h.Create(ctx, p, in)
		return err
	case EventTaskUpdate:
		var in UpdatePayload
		if err := decodeData(data, &in); err != nil {
			return err
		}
		_, err := h.Update(ctx, p, in)
		return err
	case EventTaskMove:
		var in MovePayload
		if err := decodeData(data, &in); err != nil {
			return err
		}
		_, err := h.Move(ctx, p, in)
		return err
	case EventTaskAssign:
		var in AssignPayload
		if err := decodeData(data, &in); err != nil {
			return err
		}
		_, err := h.Assign(ctx, p, in)
		return err
	case EventTaskDelete:
		var in DeletePayload
		if err := decodeData(data, &in); err != nil {
			return err
		}
		return h.Delete(ctx, p, in)
	default:
		return invalid("Unknown event")
	}
}

// Create inserts a task into the principal's team. Priority defaults to
// Medium and status to ToDo.
func (h *Handlers) Create(ctx context.Context, p Principal, in CreatePayload) (models.Task, error) {
	teamID, err := p.Team()
	if err != nil {
		return models.Task{}, err
	}

	t := models.Task{
		Title:       htmlsanitize.PlainText(in.Title),
		Description: htmlsanitize.PlainText(in.Description),
		Priority:    strings.TrimSpace(in.Priority),
		Status:      strings.TrimSpace(in.Status),
		AssignedTo:  strings.TrimSpace(in.AssignedTo),
		TeamID:      teamID,
	}
	if t.Title == "" {
		return models.Task{}, invalid("Title is required")
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	} else if !models.IsValidPriority(t.Priority) {
		return models.Task{}, invalid("Invalid priority")
	}
	if t.Status == "" {
		t.Status = models.StatusToDo
	} else if !models.IsValidStatus(t.Status) {
		return models.Task{}, invalid("Invalid status")
	}

	ctx, cancel := timeouts.Detached(ctx, timeouts.Medium(), h.log, "realtime.create")
	defer cancel()

	created, err := h.tasks.Create(ctx, t, h.mutation(p))
	if err != nil {
		return models.Task{}, transient("Error creating task", err)
	}

	h.record(models.ActivityTaskCreated, p, teamID, models.ActivityFields{
		TaskID:    &created.ID,
		TaskTitle: created.Title,
	})
	h.rooms.Broadcast(teamID, EventTaskCreated, created)

	h.log.Info("task created",
		zap.String("task_id", created.ID.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", p.UserID.Hex()))
	return created, nil
}

// Update applies a partial edit. The activity entry is task:moved when the
// status changed, task:assigned when only the assignee changed, and
// task:updated otherwise.
func (h *Handlers) Update(ctx context.Context, p Principal, in UpdatePayload) (models.Task, error) {
	teamID, err := p.Team()
	if err != nil {
		return models.Task{}, err
	}
	id, err := parseTaskID(in.id())
	if err != nil {
		return models.Task{}, err
	}

	var patch taskstore.Patch
	if in.Title != nil {
		title := htmlsanitize.PlainText(*in.Title)
		if title == "" {
			return models.Task{}, invalid("Title is required")
		}
		patch.Title = &title
	}
	if in.Description != nil {
		desc := htmlsanitize.PlainText(*in.Description)
		patch.Description = &desc
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if !models.IsValidStatus(status) {
			return models.Task{}, invalid("Invalid status")
		}
		patch.Status = &status
	}
	if in.Priority != nil {
		priority := strings.TrimSpace(*in.Priority)
		if !models.IsValidPriority(priority) {
			return models.Task{}, invalid("Invalid priority")
		}
		patch.Priority = &priority
	}
	if in.AssignedTo != nil {
		assignee := strings.TrimSpace(*in.AssignedTo)
		patch.AssignedTo = &assignee
	}
	if patch.Empty() {
		return models.Task{}, invalid("Nothing to update")
	}

	unlock := h.locks.lock(id)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Medium(), h.log, "realtime.update")
	defer cancel()

	before, after, err := h.apply(ctx, teamID, id, patch, h.mutation(p))
	if err != nil {
		return models.Task{}, err
	}

	fields := models.ActivityFields{TaskID: &after.ID, TaskTitle: after.Title}
	entryType := models.ActivityTaskUpdated
	statusChanged := before.Status != after.Status
	assigneeChanged := before.AssignedTo != after.AssignedTo
	otherChanged := before.Title != after.Title ||
		before.Description != after.Description ||
		before.Priority != after.Priority
	switch {
	case statusChanged:
		entryType = models.ActivityTaskMoved
		fields.FromStatus = before.Status
		fields.ToStatus = after.Status
	case assigneeChanged && !otherChanged:
		entryType = models.ActivityTaskAssigned
		fields.AssignedToUser = h.displayName(ctx, after.AssignedTo)
	}
	h.record(entryType, p, teamID, fields)
	h.rooms.Broadcast(teamID, EventTaskUpdated, after)

	h.log.Info("task updated",
		zap.String("task_id", id.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", p.UserID.Hex()))
	return after, nil
}

// Move changes a task's column. NewIndex is passed through to peers for
// ordering within the column; it is not persisted.
func (h *Handlers) Move(ctx context.Context, p Principal, in MovePayload) (models.Task, error) {
	teamID, err := p.Team()
	if err != nil {
		return models.Task{}, err
	}
	id, err := parseTaskID(in.TaskID)
	if err != nil {
		return models.Task{}, err
	}
	status := strings.TrimSpace(in.NewStatus)
	if !models.IsValidStatus(status) {
		return models.Task{}, invalid("Invalid status")
	}
	if in.NewIndex != nil && *in.NewIndex < 0 {
		return models.Task{}, invalid("Invalid index")
	}

	unlock := h.locks.lock(id)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Medium(), h.log, "realtime.move")
	defer cancel()

	before, after, err := h.apply(ctx, teamID, id, taskstore.Patch{Status: &status}, h.mutation(p))
	if err != nil {
		return models.Task{}, err
	}

	h.record(models.ActivityTaskMoved, p, teamID, models.ActivityFields{
		TaskID:     &after.ID,
		TaskTitle:  after.Title,
		FromStatus: before.Status,
		ToStatus:   after.Status,
	})
	h.rooms.Broadcast(teamID, EventTaskMoved, MovedPayload{
		Task:      after,
		NewStatus: status,
		NewIndex:  in.NewIndex,
	})

	h.log.Info("task moved",
		zap.String("task_id", id.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("status", status),
		zap.String("user_id", p.UserID.Hex()))
	return after, nil
}

// Assign sets the assignee. An empty assignedTo clears it.
func (h *Handlers) Assign(ctx context.Context, p Principal, in AssignPayload) (models.Task, error) {
	teamID, err := p.Team()
	if err != nil {
		return models.Task{}, err
	}
	id, err := parseTaskID(in.TaskID)
	if err != nil {
		return models.Task{}, err
	}
	if in.AssignedTo == nil {
		return models.Task{}, invalid("assignedTo is required")
	}
	assignee := strings.TrimSpace(*in.AssignedTo)

	unlock := h.locks.lock(id)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Medium(), h.log, "realtime.assign")
	defer cancel()

	_, after, err := h.apply(ctx, teamID, id, taskstore.Patch{AssignedTo: &assignee}, h.mutation(p))
	if err != nil {
		return models.Task{}, err
	}

	h.record(models.ActivityTaskAssigned, p, teamID, models.ActivityFields{
		TaskID:         &after.ID,
		TaskTitle:      after.Title,
		AssignedToUser: h.displayName(ctx, after.AssignedTo),
	})
	h.rooms.Broadcast(teamID, EventTaskUpdated, after)

	h.log.Info("task assigned",
		zap.String("task_id", id.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", p.UserID.Hex()))
	return after, nil
}

// Delete removes a task and broadcasts its bare id.
func (h *Handlers) Delete(ctx context.Context, p Principal, in DeletePayload) error {
	teamID, err := p.Team()
	if err != nil {
		return err
	}
	id, err := parseTaskID(in.TaskID)
	if err != nil {
		return err
	}

	unlock := h.locks.lock(id)
	defer unlock()

	ctx, cancel := timeouts.Detached(ctx, timeouts.Medium(), h.log, "realtime.delete")
	defer cancel()

	deleted, err := h.tasks.DeleteForTeam(ctx, teamID, id)
	if errors.Is(err, taskstore.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return transient("Error deleting task", err)
	}

	h.record(models.ActivityTaskDeleted, p, teamID, models.ActivityFields{
		TaskID:    &deleted.ID,
		TaskTitle: deleted.Title,
	})
	h.rooms.Broadcast(teamID, EventTaskDeleted, id.Hex())

	h.log.Info("task deleted",
		zap.String("task_id", id.Hex()),
		zap.String("team_id", teamID.Hex()),
		zap.String("user_id", p.UserID.Hex()))
	return nil
}

// apply loads the task under the caller's team and writes the patch. The
// caller holds the task lock.
func (h *Handlers) apply(ctx context.Context, teamID, id primitive.ObjectID, patch taskstore.Patch, mc models.MutationContext) (models.Task, models.Task, error) {
	before, err := h.tasks.GetForTeam(ctx, teamID, id)
	if errors.Is(err, taskstore.ErrNotFound) {
		return models.Task{}, models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, models.Task{}, transient("Error loading task", err)
	}

	after, err := h.tasks.Update(ctx, teamID, id, patch, mc)
	if errors.Is(err, taskstore.ErrNotFound) {
		return models.Task{}, models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, models.Task{}, transient("Error updating task", err)
	}
	return before, after, nil
}

func (h *Handlers) mutation(p Principal) models.MutationContext {
	return models.MutationContext{Actor: p.UserID, At: h.now().UTC()}
}

func (h *Handlers) record(entryType string, p Principal, teamID primitive.ObjectID, fields models.ActivityFields) {
	if h.activity == nil {
		return
	}
	h.activity.Record(entryType, p.UserID, teamID, fields)
}

// displayName resolves an assignee stored as a user id to that user's
// name. Anything else is shown as stored.
func (h *Handlers) displayName(ctx context.Context, assignee string) string {
	if assignee == "" || h.names == nil {
		return assignee
	}
	id, err := primitive.ObjectIDFromHex(assignee)
	if err != nil {
		return assignee
	}
	names, err := h.names.NamesByID(ctx, []primitive.ObjectID{id})
	if err != nil {
		h.log.Warn("assignee lookup failed", zap.String("assignee", assignee), zap.Error(err))
		return assignee
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return assignee
}

// parseTaskID maps a malformed id to ErrNotFound: no task can have it.
func parseTaskID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return id, nil
}
