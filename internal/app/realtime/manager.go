// Package realtime is the websocket sync engine for team boards.
//
// A client connects to /ws and sends {"event":"connect","data":{"token":...}}
// as its first frame. The token is verified and the user's current team is
// read once; the connection then joins that team's room and every task
// mutation it sends is applied and broadcast to the whole room.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/limits"
	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Authenticator resolves a connect-time token to a Principal.
type Authenticator interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// EventHandler applies one inbound event for a principal.
type EventHandler interface {
	Handle(ctx context.Context, p Principal, event string, data json.RawMessage) error
}

// Config tunes connection handling. Zero values select the defaults.
type Config struct {
	SendBuffer       int           // frames queued per connection, default 64
	MaxMessageBytes  int64         // inbound frame limit, default 64 KiB
	HandshakeTimeout time.Duration // time allowed for the connect frame, default 10s
	PingInterval     time.Duration // default 30s
	PongWait         time.Duration // read deadline, default 60s
	WriteWait        time.Duration // default 10s
	AllowedOrigins   []string      // "*" allows any origin; empty means same origin only
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = limits.MaxFrameBytes
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// Manager accepts websocket connections and owns their lifecycle.
type Manager struct {
	cfg      Config
	verifier Authenticator
	rooms    *Registry
	handlers EventHandler
	log      *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

func NewManager(verifier Authenticator, rooms *Registry, handlers EventHandler, logger *zap.Logger, m *metrics.Metrics, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	mgr := &Manager{
		cfg:      cfg,
		verifier: verifier,
		rooms:    rooms,
		handlers: handlers,
		log:      logger,
		metrics:  m,
		conns:    make(map[string]*Conn),
	}
	mgr.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return mgr
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		mgr:    m,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, m.cfg.SendBuffer),
	}
	c.log = m.log.With(zap.String("conn_id", c.id))
	m.run(c)
}

func (m *Manager) run(c *Conn) {
	p, err := c.handshake()
	if err != nil {
		m.metrics.Handshake(false)
		c.log.Info("connection rejected", zap.String("code", string(CodeOf(err))), zap.Error(err))
		c.reject(err)
		return
	}
	c.principal = p
	c.log = c.log.With(zap.String("user_id", p.UserID.Hex()))

	if !m.track(c) {
		c.reject(&Error{Code: CodeTransient, Message: "Server shutting down"})
		return
	}
	m.metrics.Handshake(true)
	m.metrics.ConnOpened()
	defer m.cleanup(c)

	connected := ConnectedPayload{ConnectionID: c.id, UserID: p.UserID.Hex()}
	if teamID, err := p.Team(); err == nil {
		hex := teamID.Hex()
		connected.TeamID = &hex
		c.log = c.log.With(zap.String("team_id", hex))
		m.rooms.Join(teamID, c)
	}
	c.sendEvent(EventConnected, connected)
	c.log.Info("connection accepted", zap.Bool("bound", connected.TeamID != nil))

	go c.writeLoop()
	c.readLoop()
}

// cleanup runs on the read goroutine as soon as the socket is gone, so a
// closed connection is never left in a room.
func (m *Manager) cleanup(c *Conn) {
	c.Close()
	m.rooms.Leave(c)
	m.untrack(c)
	m.metrics.ConnClosed()
	c.log.Info("connection closed")
}

func (m *Manager) dispatch(c *Conn, frame Frame) {
	start := time.Now()
	err := m.handlers.Handle(c.ctx, c.principal, frame.Event, frame.Data)
	result := "ok"
	if err != nil {
		result = string(CodeOf(err))
		c.log.Warn("event failed",
			zap.String("event", frame.Event),
			zap.String("code", result),
			zap.Error(err))
		c.sendError(err)
	}
	m.metrics.Event(frame.Event, result, time.Since(start))
}

func (m *Manager) track(c *Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.conns[c.id] = c
	return true
}

func (m *Manager) untrack(c *Conn) {
	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()
}

// Count returns the number of authenticated live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// DropUser closes every connection of the user so its client reconnects
// and binds to the user's current team. It returns how many were closed.
func (m *Manager) DropUser(userID primitive.ObjectID) int {
	m.mu.Lock()
	var victims []*Conn
	for _, c := range m.conns {
		if c.principal.UserID == userID {
			victims = append(victims, c)
		}
	}
	m.mu.Unlock()

	for _, c := range victims {
		c.Close()
	}
	if len(victims) > 0 {
		m.log.Info("dropped user connections",
			zap.String("user_id", userID.Hex()),
			zap.Int("count", len(victims)))
	}
	return len(victims)
}

// CloseAll refuses new connections and closes the live ones.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(m.cfg.WriteWait))
		c.Close()
	}
}
