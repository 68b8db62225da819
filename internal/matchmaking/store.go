package matchmaking

import (
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

// Room pairs two participants. A room exists only while at least one slot is
// occupied.
type Room struct {
	ID    string
	SlotA *User
	SlotB *User
}

// Other returns the occupant a message from senderID is addressed to: SlotB when
// the sender sits in SlotA, SlotA otherwise. The result may be nil.
func (r *Room) Other(senderID string) *User {
	if r.SlotA != nil && r.SlotA.ID == senderID {
		return r.SlotB
	}
	return r.SlotA
}

// Occupant returns the user with the given id if it sits in either slot.
func (r *Room) Occupant(id string) *User {
	switch {
	case r.SlotA != nil && r.SlotA.ID == id:
		return r.SlotA
	case r.SlotB != nil && r.SlotB.ID == id:
		return r.SlotB
	}
	return nil
}

func (r *Room) empty() bool {
	return r.SlotA == nil && r.SlotB == nil
}

// Store owns the rooms and the connection-id index used to find them. It also
// relays signaling between the two slots of a room. Like Registry it relies on
// the Matchmaker for serialization.
type Store struct {
	rooms    map[string]*Room
	index    map[string]string // connection id -> room id
	ids      IDGenerator
	observer Observer
	log      *zap.Logger
}

func NewStore(ids IDGenerator, observer Observer, log *zap.Logger) *Store {
	if ids == nil {
		ids = UUIDs{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		rooms:    make(map[string]*Room),
		index:    make(map[string]string),
		ids:      ids,
		observer: observer,
		log:      log,
	}
}

func (s *Store) newRoomID(a, b *User) string {
	for {
		id := s.ids.NewRoomID(a, b)
		if _, taken := s.rooms[id]; !taken {
			return id
		}
		s.log.Warn("room id collision, regenerating", zap.String("room_id", id))
	}
}

// CreateRoom stores a room holding a and b, indexes both and tells each of them
// the room is ready for offer negotiation.
func (s *Store) CreateRoom(a, b *User) *Room {
	room := &Room{
		ID:    s.newRoomID(a, b),
		SlotA: a,
		SlotB: b,
	}
	s.rooms[room.ID] = room
	s.index[a.ID] = room.ID
	s.index[b.ID] = room.ID

	s.log.Info("room created",
		zap.String("room_id", room.ID),
		zap.String("slot_a", a.ID),
		zap.String("slot_b", b.ID))
	s.observer.RoomOpened(room.ID, a, b)

	ready := models.RoomReady{RoomID: room.ID}
	a.emit(models.SignalTypeRoomReady, ready)
	b.emit(models.SignalTypeRoomReady, ready)
	return room
}

// RemoveOccupant clears connID's slot without notifying anyone. The room is
// deleted once both slots are empty. It returns the other occupant, if any.
func (s *Store) RemoveOccupant(roomID, connID string) *User {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}

	switch {
	case room.SlotA != nil && room.SlotA.ID == connID:
		room.SlotA = nil
	case room.SlotB != nil && room.SlotB.ID == connID:
		room.SlotB = nil
	default:
		return nil
	}
	s.unindex(connID, roomID)

	if room.empty() {
		s.delete(room)
		return nil
	}
	if room.SlotA != nil {
		return room.SlotA
	}
	return room.SlotB
}

// TeardownRoom ends a call: every occupant other than initiatorID gets
// call-ended, then the room is deleted whatever its occupancy. It returns the
// former occupants. Unknown rooms are ignored, since both peers hanging up at
// once is routine.
func (s *Store) TeardownRoom(roomID, initiatorID string) (a, b *User) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	a, b = room.SlotA, room.SlotB

	for _, u := range []*User{a, b} {
		if u != nil && u.ID != initiatorID {
			u.emit(models.SignalTypeCallEnded, nil)
		}
	}

	if a != nil {
		s.unindex(a.ID, roomID)
	}
	if b != nil {
		s.unindex(b.ID, roomID)
	}
	room.SlotA, room.SlotB = nil, nil
	s.delete(room)
	return a, b
}

// FindRoomByConnection returns the room connID sits in and its partner, who may
// be nil for a half-vacated room.
func (s *Store) FindRoomByConnection(connID string) (roomID string, other *User, ok bool) {
	roomID, ok = s.index[connID]
	if !ok {
		return "", nil, false
	}
	room, ok := s.rooms[roomID]
	if !ok {
		// Stale index entry; prefer the room map.
		delete(s.index, connID)
		return "", nil, false
	}
	return roomID, room.Other(connID), true
}

// Room returns the room with the given id, or nil.
func (s *Store) Room(roomID string) *Room {
	return s.rooms[roomID]
}

func (s *Store) RoomCount() int { return len(s.rooms) }

func (s *Store) RelayOffer(roomID, senderID string, p *models.OfferPayload) bool {
	return s.relay(roomID, senderID, models.SignalTypeOffer, func(*User) any {
		return models.RelayedOffer{SDP: p.SDP, RoomID: roomID}
	})
}

// RelayAnswer forwards an answer. The sender's registered display name is used
// when the client leaves it out.
func (s *Store) RelayAnswer(roomID, senderID string, p *models.AnswerPayload) bool {
	return s.relay(roomID, senderID, models.SignalTypeAnswer, func(sender *User) any {
		name := p.DisplayName
		if name == "" {
			name = sender.DisplayName
		}
		return models.RelayedAnswer{SDP: p.SDP, RoomID: roomID, DisplayName: name}
	})
}

func (s *Store) RelayIceCandidate(roomID, senderID string, p *models.IceCandidatePayload) bool {
	return s.relay(roomID, senderID, models.SignalTypeCandidate, func(*User) any {
		return models.RelayedCandidate{Candidate: p.Candidate, Type: p.Type}
	})
}

// relay delivers a payload to the occupant opposite senderID. Missing rooms,
// senders outside the room and empty target slots are all silent drops.
func (s *Store) relay(roomID, senderID string, event models.SignalType, build func(sender *User) any) bool {
	log := s.log.With(
		zap.String("room_id", roomID),
		zap.String("connection_id", senderID),
		zap.String("event", string(event)))

	room, ok := s.rooms[roomID]
	if !ok {
		log.Debug("relay dropped: room not found")
		s.observer.Relayed(event, false)
		return false
	}
	sender := room.Occupant(senderID)
	if sender == nil || s.index[senderID] != roomID {
		log.Debug("relay dropped: sender not in room")
		s.observer.Relayed(event, false)
		return false
	}
	target := room.Other(senderID)
	if target == nil {
		log.Debug("relay dropped: no recipient")
		s.observer.Relayed(event, false)
		return false
	}

	target.emit(event, build(sender))
	s.observer.Relayed(event, true)
	return true
}

func (s *Store) unindex(connID, roomID string) {
	if s.index[connID] == roomID {
		delete(s.index, connID)
	}
}

func (s *Store) delete(room *Room) {
	delete(s.rooms, room.ID)
	s.log.Info("room deleted", zap.String("room_id", room.ID))
	s.observer.RoomClosed(room.ID)
}
