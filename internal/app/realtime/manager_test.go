package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/dalemusser/syncban/internal/domain/models"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type wsEnv struct {
	srv     *httptest.Server
	mgr     *Manager
	rooms   *Registry
	tasks   *memTasks
	metrics *metrics.Metrics

	teamID primitive.ObjectID
	member models.User
	mate   models.User
	solo   models.User
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	env := &wsEnv{
		teamID:  primitive.NewObjectID(),
		tasks:   newMemTasks(),
		rooms:   NewRegistry(zap.NewNop(), m),
		metrics: m,
	}
	team := env.teamID
	env.member = models.User{ID: primitive.NewObjectID(), Username: "ann", CurrentTeam: &team}
	env.mate = models.User{ID: primitive.NewObjectID(), Username: "max", CurrentTeam: &team}
	env.solo = models.User{ID: primitive.NewObjectID(), Username: "sol"}

	verifier := NewVerifier(
		fakeTokens{"member": env.member.ID, "mate": env.mate.ID, "solo": env.solo.ID},
		fakeUsers{env.member.ID: env.member, env.mate.ID: env.mate, env.solo.ID: env.solo},
	)
	handlers := NewHandlers(env.tasks, fakeNames{}, &syncActivity{}, env.rooms, zap.NewNop())
	env.mgr = NewManager(verifier, env.rooms, handlers, zap.NewNop(), m, Config{
		HandshakeTimeout: 2 * time.Second,
		AllowedOrigins:   []string{"*"},
	})
	env.srv = httptest.NewServer(env.mgr)
	t.Cleanup(func() {
		env.mgr.CloseAll()
		env.srv.Close()
	})
	return env
}

func (e *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := EncodeFrame(event, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func (e *wsEnv) connect(t *testing.T, token string) (*websocket.Conn, ConnectedPayload) {
	t.Helper()
	ws := e.dial(t)
	writeFrame(t, ws, EventConnect, ConnectPayload{Token: token})
	f := readFrame(t, ws)
	if f.Event != EventConnected {
		t.Fatalf("expected connected, got %s %s", f.Event, f.Data)
	}
	var c ConnectedPayload
	if err := json.Unmarshal(f.Data, &c); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	return ws, c
}

// connOf returns the server side of the user's single live connection.
func (e *wsEnv) connOf(t *testing.T, userID primitive.ObjectID) *Conn {
	t.Helper()
	e.mgr.mu.Lock()
	defer e.mgr.mu.Unlock()
	for _, c := range e.mgr.conns {
		if c.principal.UserID == userID {
			return c
		}
	}
	t.Fatalf("no connection for %s", userID.Hex())
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManager_ConnectBindsToTeam(t *testing.T) {
	env := newWSEnv(t)
	_, c := env.connect(t, "member")

	if c.UserID != env.member.ID.Hex() {
		t.Errorf("unexpected user id %s", c.UserID)
	}
	if c.TeamID == nil || *c.TeamID != env.teamID.Hex() {
		t.Errorf("expected team %s, got %v", env.teamID.Hex(), c.TeamID)
	}
	if c.ConnectionID == "" {
		t.Error("missing connection id")
	}
	waitFor(t, "room join", func() bool { return env.rooms.Members(env.teamID) == 1 })
}

func TestManager_RejectsBadToken(t *testing.T) {
	env := newWSEnv(t)
	ws := env.dial(t)
	writeFrame(t, ws, EventConnect, ConnectPayload{Token: "forged"})

	f := readFrame(t, ws)
	if f.Event != EventError {
		t.Fatalf("expected error frame, got %s", f.Event)
	}
	var e ErrorPayload
	if err := json.Unmarshal(f.Data, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Message != "Authentication error" || e.Code != CodeUnauthenticated {
		t.Errorf("unexpected error payload: %+v", e)
	}

	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected connection to be closed")
	}
	if env.mgr.Count() != 0 {
		t.Errorf("rejected connection was tracked")
	}
}

func TestManager_RejectsNonConnectFirstFrame(t *testing.T) {
	env := newWSEnv(t)
	ws := env.dial(t)
	writeFrame(t, ws, EventTaskCreate, CreatePayload{Title: "sneaky"})

	f := readFrame(t, ws)
	if f.Event != EventError {
		t.Fatalf("expected error frame, got %s", f.Event)
	}
	if n := env.tasks.writeCount(); n != 0 {
		t.Errorf("unauthenticated frame reached the store: %d writes", n)
	}
}

func TestManager_MutationReachesOriginatorAndPeers(t *testing.T) {
	env := newWSEnv(t)
	origin, _ := env.connect(t, "member")
	peer, _ := env.connect(t, "member")
	solo, _ := env.connect(t, "solo")
	waitFor(t, "room joins", func() bool { return env.rooms.Members(env.teamID) == 2 })

	writeFrame(t, origin, EventTaskCreate, CreatePayload{Title: "Live"})

	for name, ws := range map[string]*websocket.Conn{"origin": origin, "peer": peer} {
		f := readFrame(t, ws)
		if f.Event != EventTaskCreated {
			t.Fatalf("%s: expected task:created, got %s", name, f.Event)
		}
		var task models.Task
		if err := json.Unmarshal(f.Data, &task); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if task.Title != "Live" || task.CreatedBy != env.member.ID {
			t.Errorf("%s: unexpected task %+v", name, task)
		}
	}

	// The solo connection has no team: its own mutation fails and it saw nothing.
	writeFrame(t, solo, EventTaskCreate, CreatePayload{Title: "Nope"})
	f := readFrame(t, solo)
	if f.Event != EventError {
		t.Fatalf("expected error, got %s", f.Event)
	}
	var e ErrorPayload
	_ = json.Unmarshal(f.Data, &e)
	if e.Code != CodeNoTeam || e.Message != "You are not in any team" {
		t.Errorf("unexpected error payload: %+v", e)
	}
}

func TestManager_ErrorsStayWithOriginator(t *testing.T) {
	env := newWSEnv(t)
	origin, _ := env.connect(t, "member")
	peer, _ := env.connect(t, "member")
	waitFor(t, "room joins", func() bool { return env.rooms.Members(env.teamID) == 2 })

	writeFrame(t, origin, EventTaskDelete, primitive.NewObjectID().Hex())
	f := readFrame(t, origin)
	if f.Event != EventError {
		t.Fatalf("expected error, got %s", f.Event)
	}

	// The peer's next frame must be the create below, not the error.
	writeFrame(t, origin, EventTaskCreate, CreatePayload{Title: "after"})
	if f := readFrame(t, peer); f.Event != EventTaskCreated {
		t.Errorf("peer got %s before task:created", f.Event)
	}
}

func TestManager_DisconnectLeavesRoom(t *testing.T) {
	env := newWSEnv(t)
	ws, _ := env.connect(t, "member")
	waitFor(t, "room join", func() bool { return env.rooms.Members(env.teamID) == 1 })

	ws.Close()
	waitFor(t, "room leave", func() bool { return env.rooms.Members(env.teamID) == 0 })
	waitFor(t, "untrack", func() bool { return env.mgr.Count() == 0 })
}

func TestManager_DropUserClosesConnections(t *testing.T) {
	env := newWSEnv(t)
	ws, _ := env.connect(t, "member")
	env.connect(t, "solo")
	waitFor(t, "tracking", func() bool { return env.mgr.Count() == 2 })

	if n := env.mgr.DropUser(env.member.ID); n != 1 {
		t.Errorf("expected 1 dropped, got %d", n)
	}
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	waitFor(t, "cleanup", func() bool { return env.mgr.Count() == 1 && env.rooms.Members(env.teamID) == 0 })
}

func TestManager_UnknownEventKeepsConnectionOpen(t *testing.T) {
	env := newWSEnv(t)
	ws, _ := env.connect(t, "member")

	writeFrame(t, ws, "task:explode", map[string]string{})
	f := readFrame(t, ws)
	if f.Event != EventError {
		t.Fatalf("expected error, got %s", f.Event)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, ws); f.Event != EventError {
		t.Fatalf("expected error for malformed frame, got %s", f.Event)
	}

	writeFrame(t, ws, EventTaskCreate, CreatePayload{Title: "still here"})
	if f := readFrame(t, ws); f.Event != EventTaskCreated {
		t.Errorf("expected task:created, got %s", f.Event)
	}
}

func TestManager_OriginClosedMidHandler(t *testing.T) {
	env := newWSEnv(t)
	env.tasks.entered = make(chan struct{})
	env.tasks.hold = make(chan struct{})

	origin, _ := env.connect(t, "member")
	peer, _ := env.connect(t, "mate")
	waitFor(t, "room joins", func() bool { return env.rooms.Members(env.teamID) == 2 })
	originConn := env.connOf(t, env.member.ID)

	writeFrame(t, origin, EventTaskCreate, CreatePayload{Title: "Orphaned"})
	select {
	case <-env.tasks.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("create never reached the store")
	}

	// The socket goes away while the write is in flight.
	if n := env.mgr.DropUser(env.member.ID); n != 1 {
		t.Fatalf("expected 1 dropped, got %d", n)
	}
	close(env.tasks.hold)

	f := readFrame(t, peer)
	if f.Event != EventTaskCreated {
		t.Fatalf("peer: expected task:created, got %s", f.Event)
	}
	if n := env.tasks.writeCount(); n != 1 {
		t.Errorf("expected 1 store write, got %d", n)
	}
	if n := len(originConn.send); n != 0 {
		t.Errorf("expected nothing queued to the closed connection, got %d", n)
	}
	if got := testutil.ToFloat64(env.metrics.SlowConsumerDrops); got != 0 {
		t.Errorf("closed originator counted as slow consumer: %v", got)
	}
	waitFor(t, "cleanup", func() bool { return env.rooms.Members(env.teamID) == 1 && env.mgr.Count() == 1 })
}

// stallUsers blocks every lookup until its context ends.
type stallUsers struct{}

func (stallUsers) GetByID(ctx context.Context, _ primitive.ObjectID) (models.User, error) {
	<-ctx.Done()
	return models.User{}, ctx.Err()
}

func TestManager_HandshakeLookupIsBounded(t *testing.T) {
	timeouts.Configure(timeouts.Config{Short: 50 * time.Millisecond})
	defer timeouts.Reset()

	rooms := NewRegistry(zap.NewNop(), nil)
	verifier := NewVerifier(fakeTokens{"member": primitive.NewObjectID()}, stallUsers{})
	handlers := NewHandlers(newMemTasks(), fakeNames{}, &syncActivity{}, rooms, zap.NewNop())
	mgr := NewManager(verifier, rooms, handlers, zap.NewNop(), nil, Config{
		HandshakeTimeout: 2 * time.Second,
		AllowedOrigins:   []string{"*"},
	})
	srv := httptest.NewServer(mgr)
	defer srv.Close()
	defer mgr.CloseAll()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	writeFrame(t, ws, EventConnect, ConnectPayload{Token: "member"})

	f := readFrame(t, ws)
	if f.Event != EventError {
		t.Fatalf("expected error frame, got %s", f.Event)
	}
	var e ErrorPayload
	if err := json.Unmarshal(f.Data, &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Code != CodeTransient {
		t.Errorf("expected %s, got %+v", CodeTransient, e)
	}
	if mgr.Count() != 0 {
		t.Error("unverified connection was tracked")
	}
}
