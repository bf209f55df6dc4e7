package realtime

import (
	"sync"

	"github.com/dalemusser/syncban/internal/app/system/metrics"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SendResult reports what happened to a frame handed to a Peer.
type SendResult int

const (
	Sent   SendResult = iota // queued for delivery
	Full                     // the peer's buffer is full
	Closed                   // the peer is already closing
)

// Peer is one live connection as seen by the registry.
//
// Send must not block. Close must not block either and may be called more
// than once.
type Peer interface {
	ID() string
	Send(frame []byte) SendResult
	Close()
}

// Backing stores room membership. The registry serializes every call, so
// implementations need no locking of their own.
type Backing interface {
	Add(room string, p Peer)
	Remove(peerID string) (room string, ok bool)
	RoomOf(peerID string) (room string, ok bool)
	Members(room string) []Peer
	Rooms() int
}

// Registry maps teams to the connections bound to them.
type Registry struct {
	mu      sync.RWMutex
	rooms   Backing
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry returns a registry backed by an in-process map.
func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	return NewRegistryWithBacking(NewMemoryBacking(), logger, m)
}

func NewRegistryWithBacking(b Backing, logger *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{rooms: b, log: logger, metrics: m}
}

func roomKey(teamID primitive.ObjectID) string {
	return "team:" + teamID.Hex()
}

// Join adds p to the team's room. A peer already in another room is moved.
func (r *Registry) Join(teamID primitive.ObjectID, p Peer) {
	room := roomKey(teamID)

	r.mu.Lock()
	if cur, ok := r.rooms.RoomOf(p.ID()); ok {
		if cur == room {
			r.mu.Unlock()
			return
		}
		r.rooms.Remove(p.ID())
	}
	r.rooms.Add(room, p)
	n := r.rooms.Rooms()
	r.mu.Unlock()

	r.metrics.SetRooms(n)
	r.log.Debug("joined room", zap.String("conn_id", p.ID()), zap.String("room", room))
}

// Leave removes p from whatever room holds it. It reports whether p was a
// member.
func (r *Registry) Leave(p Peer) bool {
	r.mu.Lock()
	room, ok := r.rooms.Remove(p.ID())
	n := r.rooms.Rooms()
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.metrics.SetRooms(n)
	r.log.Debug("left room", zap.String("conn_id", p.ID()), zap.String("room", room))
	return true
}

// Members returns the number of peers bound to the team.
func (r *Registry) Members(teamID primitive.ObjectID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms.Members(roomKey(teamID)))
}

// Broadcast sends one frame to every member of the team's room, the
// originator included, and returns how many peers accepted it. A peer whose
// buffer is full is closed; the rest still receive the frame. Peers already
// closing are skipped until cleanup removes them from the room.
func (r *Registry) Broadcast(teamID primitive.ObjectID, event string, payload any) int {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		r.log.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return 0
	}

	var slow []Peer
	delivered := 0

	r.mu.RLock()
	for _, p := range r.rooms.Members(roomKey(teamID)) {
		switch p.Send(frame) {
		case Sent:
			delivered++
		case Full:
			slow = append(slow, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range slow {
		r.log.Warn("dropping slow consumer",
			zap.String("conn_id", p.ID()),
			zap.String("team_id", teamID.Hex()),
			zap.String("event", event))
		p.Close()
	}
	r.metrics.Broadcast(delivered, len(slow))
	return delivered
}

// memoryBacking is the default single-process Backing.
type memoryBacking struct {
	rooms  map[string]map[string]Peer
	byPeer map[string]string
}

func NewMemoryBacking() Backing {
	return &memoryBacking{
		rooms:  make(map[string]map[string]Peer),
		byPeer: make(map[string]string),
	}
}

func (b *memoryBacking) Add(room string, p Peer) {
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]Peer)
		b.rooms[room] = members
	}
	members[p.ID()] = p
	b.byPeer[p.ID()] = room
}

func (b *memoryBacking) Remove(peerID string) (string, bool) {
	room, ok := b.byPeer[peerID]
	if !ok {
		return "", false
	}
	delete(b.byPeer, peerID)
	if members, ok := b.rooms[room]; ok {
		delete(members, peerID)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	return room, true
}

func (b *memoryBacking) RoomOf(peerID string) (string, bool) {
	room, ok := b.byPeer[peerID]
	return room, ok
}

func (b *memoryBacking) Members(room string) []Peer {
	members := b.rooms[room]
	out := make([]Peer, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	return out
}

func (b *memoryBacking) Rooms() int {
	return len(b.rooms)
}
