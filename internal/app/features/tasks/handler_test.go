package tasks_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/syncban/internal/app/features/tasks"
	"github.com/dalemusser/syncban/internal/app/realtime"
	taskstore "github.com/dalemusser/syncban/internal/app/store/tasks"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/domain/models"
	"github.com/dalemusser/syncban/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeRooms struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRooms) Broadcast(teamID primitive.ObjectID, event string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return 1
}

type env struct {
	fx     *testutil.Fixtures
	tokens *auth.TokenManager
	rooms  *fakeRooms
	router http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)

	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	users := userstore.New(db)
	store := taskstore.New(db)
	rooms := &fakeRooms{}
	mut := realtime.NewHandlers(store, users, nil, rooms, zap.NewNop())
	h := tasks.NewHandler(users, store, mut, zap.NewNop())

	r := chi.NewRouter()
	r.Use(tokens.LoadUser)
	r.Mount("/api/tasks", tasks.Routes(h))
	return &env{fx: testutil.NewFixtures(t, db), tokens: tokens, rooms: rooms, router: r}
}

func (e *env) token(t *testing.T, id primitive.ObjectID) string {
	t.Helper()
	tok, err := e.tokens.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type listBody struct {
	Tasks []models.Task `json:"tasks"`
}

func TestList_NewestFirstAndTeamScoped(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	teamA := primitive.NewObjectID()
	teamB := primitive.NewObjectID()
	ann := e.fx.CreateUser(ctx, "ann", "ann@example.com", &teamA)
	first := e.fx.CreateTask(ctx, teamA, ann.ID, "first", models.StatusToDo)
	second := e.fx.CreateTask(ctx, teamA, ann.ID, "second", models.StatusDone)
	e.fx.CreateTask(ctx, teamB, ann.ID, "other team", models.StatusToDo)

	rec := e.do("GET", "/api/tasks", "", e.token(t, ann.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(body.Tasks))
	}
	if body.Tasks[0].ID != second.ID || body.Tasks[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", body.Tasks[0].Title, body.Tasks[1].Title)
	}
}

func TestList_NoTeam(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	solo := e.fx.CreateUser(ctx, "solo", "solo@example.com", nil)
	if rec := e.do("GET", "/api/tasks", "", e.token(t, solo.ID)); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := e.do("POST", "/api/tasks", `{"title":"x"}`, e.token(t, solo.ID)); rec.Code != http.StatusBadRequest {
		t.Errorf("create: expected 400, got %d", rec.Code)
	}
	if len(e.rooms.events) != 0 {
		t.Errorf("expected no broadcasts, got %v", e.rooms.events)
	}
}

func TestCreateUpdateDelete_Broadcasts(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	team := primitive.NewObjectID()
	ann := e.fx.CreateUser(ctx, "ann", "ann@example.com", &team)
	tok := e.token(t, ann.ID)

	rec := e.do("POST", "/api/tasks", `{"title":"  <b>Design doc</b> "}`, tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Task models.Task `json:"task"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Task.Title != "Design doc" || created.Task.Status != models.StatusToDo || created.Task.Priority != models.PriorityMedium {
		t.Errorf("unexpected task %+v", created.Task)
	}

	rec = e.do("PUT", "/api/tasks/"+created.Task.ID.Hex(), `{"priority":"High"}`, tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated struct {
		Task models.Task `json:"task"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Task.Priority != models.PriorityHigh || updated.Task.Title != "Design doc" {
		t.Errorf("unexpected update result %+v", updated.Task)
	}

	if rec := e.do("PUT", "/api/tasks/"+created.Task.ID.Hex(), `{"status":"Later"}`, tok); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status: expected 400, got %d", rec.Code)
	}

	if rec := e.do("DELETE", "/api/tasks/"+created.Task.ID.Hex(), "", tok); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if rec := e.do("DELETE", "/api/tasks/"+created.Task.ID.Hex(), "", tok); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}

	want := []string{realtime.EventTaskCreated, realtime.EventTaskUpdated, realtime.EventTaskDeleted}
	if len(e.rooms.events) != len(want) {
		t.Fatalf("expected broadcasts %v, got %v", want, e.rooms.events)
	}
	for i := range want {
		if e.rooms.events[i] != want[i] {
			t.Errorf("broadcast %d: expected %s, got %s", i, want[i], e.rooms.events[i])
		}
	}
}

func TestUpdate_OtherTeamIsNotFound(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	teamA := primitive.NewObjectID()
	teamB := primitive.NewObjectID()
	owner := e.fx.CreateUser(ctx, "own", "own@example.com", &teamA)
	task := e.fx.CreateTask(ctx, teamA, owner.ID, "secret", models.StatusToDo)
	intruder := e.fx.CreateUser(ctx, "eve", "eve@example.com", &teamB)

	tok := e.token(t, intruder.ID)
	for _, path := range []string{"/api/tasks/" + task.ID.Hex(), "/api/tasks/not-an-id"} {
		if rec := e.do("PUT", path, `{"title":"mine"}`, tok); rec.Code != http.StatusNotFound {
			t.Errorf("PUT %s: expected 404, got %d", path, rec.Code)
		}
		if rec := e.do("DELETE", path, "", tok); rec.Code != http.StatusNotFound {
			t.Errorf("DELETE %s: expected 404, got %d", path, rec.Code)
		}
	}
	if len(e.rooms.events) != 0 {
		t.Errorf("expected no broadcasts, got %v", e.rooms.events)
	}
}

func TestRoutes_RequireSignIn(t *testing.T) {
	e := newEnv(t)
	if rec := e.do("GET", "/api/tasks", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
