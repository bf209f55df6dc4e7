package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	taskstore "github.com/dalemusser/syncban/internal/app/store/tasks"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memTasks mimics taskstore.Store: every lookup is scoped by team and a
// done context fails the call the way the driver does.
//
// When hold is set, Create signals entered and then waits on hold.
type memTasks struct {
	mu     sync.Mutex
	tasks  map[primitive.ObjectID]models.Task
	writes int
	err    error

	entered chan struct{}
	hold    chan struct{}
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[primitive.ObjectID]models.Task)}
}

func (s *memTasks) put(t models.Task) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	s.tasks[t.ID] = t
	return t
}

func (s *memTasks) get(id primitive.ObjectID) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *memTasks) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *memTasks) Create(ctx context.Context, t models.Task, mc models.MutationContext) (models.Task, error) {
	if s.hold != nil {
		s.entered <- struct{}{}
		<-s.hold
	}
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Task{}, s.err
	}
	s.writes++
	t.ID = primitive.NewObjectID()
	t.CreatedBy = mc.Actor
	actor := mc.Actor
	t.LastModifiedBy = &actor
	t.CreatedAt = mc.At
	t.UpdatedAt = mc.At
	s.tasks[t.ID] = t
	return t, nil
}

func (s *memTasks) GetForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Task{}, s.err
	}
	t, ok := s.tasks[id]
	if !ok || t.TeamID != teamID {
		return models.Task{}, taskstore.ErrNotFound
	}
	return t, nil
}

func (s *memTasks) Update(ctx context.Context, teamID, id primitive.ObjectID, p taskstore.Patch, mc models.MutationContext) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Task{}, s.err
	}
	t, ok := s.tasks[id]
	if !ok || t.TeamID != teamID {
		return models.Task{}, taskstore.ErrNotFound
	}
	s.writes++
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	actor := mc.Actor
	t.LastModifiedBy = &actor
	t.UpdatedAt = mc.At
	s.tasks[id] = t
	return t, nil
}

func (s *memTasks) DeleteForTeam(ctx context.Context, teamID, id primitive.ObjectID) (models.Task, error) {
	if err := ctx.Err(); err != nil {
		return models.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Task{}, s.err
	}
	t, ok := s.tasks[id]
	if !ok || t.TeamID != teamID {
		return models.Task{}, taskstore.ErrNotFound
	}
	s.writes++
	delete(s.tasks, id)
	return t, nil
}

// memActivity keeps entries in insertion order; the newest is last.
type memActivity struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
}

func (s *memActivity) Create(_ context.Context, e models.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memActivity) ListByTeam(_ context.Context, teamID primitive.ObjectID, limit int64) ([]models.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActivityEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if int64(len(out)) == limit {
			break
		}
		if s.entries[i].TeamID == teamID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// syncActivity records straight into a slice.
type syncActivity struct {
	mu      sync.Mutex
	entries []models.ActivityEntry
}

func (s *syncActivity) Record(entryType string, actingUser, teamID primitive.ObjectID, fields models.ActivityFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, models.ActivityEntry{
		Type:           entryType,
		ActingUser:     actingUser,
		TeamID:         teamID,
		ActivityFields: fields,
	})
}

func (s *syncActivity) all() []models.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityEntry(nil), s.entries...)
}

type fakeNames map[primitive.ObjectID]string

func (f fakeNames) NamesByID(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	out := make(map[primitive.ObjectID]string, len(ids))
	for _, id := range ids {
		if n, ok := f[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

// fakePeer collects frames. A full peer refuses every frame; a gone peer
// reports itself closing.
type fakePeer struct {
	id string

	mu     sync.Mutex
	frames []Frame
	full   bool
	gone   bool
	closed int
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone {
		return Closed
	}
	if p.full {
		return Full
	}
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		return Full
	}
	p.frames = append(p.frames, f)
	return Sent
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
}

func (p *fakePeer) received() []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Frame(nil), p.frames...)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) count(event string) int {
	n := 0
	for _, f := range p.received() {
		if f.Event == event {
			n++
		}
	}
	return n
}

type fakeTokens map[string]primitive.ObjectID

func (f fakeTokens) Verify(token string) (primitive.ObjectID, error) {
	id, ok := f[token]
	if !ok {
		return primitive.NilObjectID, errors.New("bad token")
	}
	return id, nil
}

type fakeUsers map[primitive.ObjectID]models.User

func (f fakeUsers) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return u, nil
}

func bound(teamID primitive.ObjectID) Principal {
	t := teamID
	return Principal{UserID: primitive.NewObjectID(), TeamID: &t}
}

func strp(s string) *string { return &s }

func requireCode(t *testing.T, err error, want Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := CodeOf(err); got != want {
		t.Fatalf("expected code %s, got %s (%v)", want, got, err)
	}
}
