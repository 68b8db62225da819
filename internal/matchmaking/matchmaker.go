package matchmaking

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

// Matchmaker is the single coordination point for the registry and the room
// store. Every exported method runs to completion under one mutex, so popping a
// pair, creating its room and indexing it is atomic with respect to concurrent
// Register and Unregister calls.
//
// A user is always in exactly one of: the queue, a room slot, or neither
// (between operations it is never in both).
type Matchmaker struct {
	mu       sync.Mutex
	registry *Registry
	store    *Store

	ids             IDGenerator
	observer        Observer
	log             *zap.Logger
	checkInvariants bool
}

type Option func(*Matchmaker)

func WithLogger(log *zap.Logger) Option {
	return func(m *Matchmaker) { m.log = log }
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(m *Matchmaker) { m.ids = ids }
}

func WithObserver(o Observer) Option {
	return func(m *Matchmaker) { m.observer = o }
}

// WithInvariantChecks verifies queue/room consistency after every operation,
// logging and repairing any violation.
func WithInvariantChecks() Option {
	return func(m *Matchmaker) { m.checkInvariants = true }
}

func New(opts ...Option) *Matchmaker {
	m := &Matchmaker{
		ids:      UUIDs{},
		observer: NopObserver{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewRegistry()
	m.store = NewStore(m.ids, m.observer, m.log)
	return m
}

// Register adds a freshly connected user, queues it with a waiting
// notification and tries to match it. Registering a known id is a no-op.
func (m *Matchmaker) Register(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finish()

	if !m.registry.Add(u) {
		m.log.Warn("connection already registered", zap.String("connection_id", u.ID))
		return
	}
	m.log.Info("user registered",
		zap.String("connection_id", u.ID),
		zap.String("display_name", u.DisplayName))
	m.observer.UserConnected(u)

	m.enqueue(u)
	m.drain()
}

// Unregister forgets a disconnected user. If it was in a room, the room is
// dissolved and the partner goes back to the queue.
func (m *Matchmaker) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finish()

	if u := m.registry.Remove(id); u != nil {
		m.log.Info("user unregistered", zap.String("connection_id", id))
		m.observer.UserDisconnected(id)
	}

	roomID, _, ok := m.store.FindRoomByConnection(id)
	if !ok {
		return
	}
	survivor := m.store.RemoveOccupant(roomID, id)
	if survivor == nil {
		return
	}
	// Strict pairing: the half-vacated room is not refilled.
	m.store.RemoveOccupant(roomID, survivor.ID)
	m.log.Info("partner left, requeueing",
		zap.String("room_id", roomID),
		zap.String("connection_id", survivor.ID))
	m.enqueue(survivor)
	m.drain()
}

// EndCall handles an explicit hang-up from senderID in roomID. The partner is
// told the call ended; both of them are queued again. Requests for a room the
// sender is not in are dropped.
func (m *Matchmaker) EndCall(roomID, senderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finish()

	current, _, ok := m.store.FindRoomByConnection(senderID)
	if !ok || current != roomID {
		m.log.Debug("end-call dropped: sender not in room",
			zap.String("room_id", roomID),
			zap.String("connection_id", senderID))
		return
	}

	a, b := m.store.TeardownRoom(roomID, senderID)
	m.log.Info("call ended", zap.String("room_id", roomID), zap.String("connection_id", senderID))

	// The partner who did not hang up keeps the earlier place in line.
	if a != nil && a.ID == senderID {
		a, b = b, a
	}
	for _, u := range []*User{a, b} {
		if u != nil && m.registry.Lookup(u.ID) == u {
			m.enqueue(u)
		}
	}
	m.drain()
}

// Drain pairs queued users into rooms and returns how many rooms it created.
// Calling it again without new arrivals creates nothing.
func (m *Matchmaker) Drain() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.finish()
	return m.drain()
}

func (m *Matchmaker) RelayOffer(roomID, senderID string, p *models.OfferPayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.RelayOffer(roomID, senderID, p)
}

func (m *Matchmaker) RelayAnswer(roomID, senderID string, p *models.AnswerPayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.RelayAnswer(roomID, senderID, p)
}

func (m *Matchmaker) RelayIceCandidate(roomID, senderID string, p *models.IceCandidatePayload) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.RelayIceCandidate(roomID, senderID, p)
}

// FindRoom returns the room connID currently sits in.
func (m *Matchmaker) FindRoom(connID string) (roomID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, _, ok = m.store.FindRoomByConnection(connID)
	return roomID, ok
}

// Queued returns the waiting connection ids in FIFO order.
func (m *Matchmaker) Queued() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Queue()
}

func (m *Matchmaker) Stats() models.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Stats{
		Online: m.registry.UserCount(),
		Queued: m.registry.QueueLen(),
		Rooms:  m.store.RoomCount(),
	}
}

// Violations lists broken queue/room invariants. It is empty unless there is a bug.
func (m *Matchmaker) Violations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations()
}

func (m *Matchmaker) enqueue(u *User) {
	if m.registry.Enqueue(u.ID) {
		u.emit(models.SignalTypeWaiting, nil)
	}
}

func (m *Matchmaker) drain() int {
	created := 0
	for m.registry.QueueLen() >= 2 {
		idA, _ := m.registry.Pop()
		idB, _ := m.registry.Pop()
		a, b := m.matchable(idA), m.matchable(idB)

		switch {
		case a != nil && b != nil && a != b:
			m.store.CreateRoom(a, b)
			created++
		case a != nil:
			m.registry.EnqueueFront(a.ID)
		case b != nil:
			m.registry.EnqueueFront(b.ID)
		}
	}
	return created
}

// matchable resolves a popped id to a user that may be put in a room. Stale ids
// and users already seated somewhere yield nil.
func (m *Matchmaker) matchable(id string) *User {
	u := m.registry.Lookup(id)
	if u == nil {
		m.log.Debug("skipping stale queue entry", zap.String("connection_id", id))
		return nil
	}
	if roomID, _, seated := m.store.FindRoomByConnection(id); seated {
		m.log.Error("queued user is already in a room",
			zap.String("connection_id", id),
			zap.String("room_id", roomID))
		return nil
	}
	return u
}

func (m *Matchmaker) finish() {
	m.observer.QueueChanged(m.registry.QueueLen())
	if !m.checkInvariants {
		return
	}
	for _, v := range m.violations() {
		m.log.Error("matchmaker invariant violated", zap.String("violation", v))
	}
	// Room state is the most recent truth: drop queue entries for seated users.
	for _, id := range m.registry.Queue() {
		if _, _, seated := m.store.FindRoomByConnection(id); seated {
			m.registry.Dequeue(id)
		}
	}
}

func (m *Matchmaker) violations() []string {
	var out []string
	for _, id := range m.registry.Queue() {
		if roomID, _, seated := m.store.FindRoomByConnection(id); seated {
			out = append(out, fmt.Sprintf("%s is queued and seated in %s", id, roomID))
		}
	}
	seen := make(map[string]string)
	for roomID, room := range m.store.rooms {
		if room.empty() {
			out = append(out, fmt.Sprintf("room %s has no occupants", roomID))
		}
		for _, u := range []*User{room.SlotA, room.SlotB} {
			if u == nil {
				continue
			}
			if other, dup := seen[u.ID]; dup {
				out = append(out, fmt.Sprintf("%s is seated in %s and %s", u.ID, other, roomID))
			}
			seen[u.ID] = roomID
			if m.store.index[u.ID] != roomID {
				out = append(out, fmt.Sprintf("%s in %s is not indexed to it", u.ID, roomID))
			}
		}
	}
	return out
}
