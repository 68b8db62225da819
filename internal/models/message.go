package models

import "encoding/json"

// SignalType names an event on the signaling websocket.
type SignalType string

const (
	// Server to client
	SignalTypeWaiting   SignalType = "waiting"
	SignalTypeRoomReady SignalType = "room-ready"
	SignalTypeCallEnded SignalType = "call-ended"
	SignalTypeError     SignalType = "error"

	// Both directions
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "add-ice-candidate"

	// Client to server
	SignalTypeEndCall SignalType = "end-call"
)

// Envelope is the frame every inbound websocket message arrives in.
type Envelope struct {
	Type    SignalType      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the frame pushed to a client.
type Outbound struct {
	Type    SignalType `json:"type"`
	Payload any        `json:"payload,omitempty"`
}

// Inbound is one of the validated client events: *OfferPayload, *AnswerPayload,
// *IceCandidatePayload or *EndCallPayload.
type Inbound interface {
	Event() SignalType
	Room() string
}

// OfferPayload carries an RTCSessionDescription of type "offer".
type OfferPayload struct {
	SDP    json.RawMessage `json:"sdp" validate:"required"`
	RoomID string          `json:"roomId" validate:"required,max=128"`
}

// AnswerPayload carries an RTCSessionDescription of type "answer".
type AnswerPayload struct {
	SDP         json.RawMessage `json:"sdp" validate:"required"`
	RoomID      string          `json:"roomId" validate:"required,max=128"`
	DisplayName string          `json:"displayName,omitempty" validate:"max=64"`
}

// IceCandidatePayload carries an RTCIceCandidateInit. Type tells the receiver which of
// its peer connections the candidate belongs to.
type IceCandidatePayload struct {
	Candidate json.RawMessage `json:"candidate" validate:"required"`
	RoomID    string          `json:"roomId" validate:"required,max=128"`
	Type      string          `json:"type" validate:"required,oneof=sender receiver"`
}

type EndCallPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

func (*OfferPayload) Event() SignalType        { return SignalTypeOffer }
func (*AnswerPayload) Event() SignalType       { return SignalTypeAnswer }
func (*IceCandidatePayload) Event() SignalType { return SignalTypeCandidate }
func (*EndCallPayload) Event() SignalType      { return SignalTypeEndCall }

func (p *OfferPayload) Room() string        { return p.RoomID }
func (p *AnswerPayload) Room() string       { return p.RoomID }
func (p *IceCandidatePayload) Room() string { return p.RoomID }
func (p *EndCallPayload) Room() string      { return p.RoomID }

// RoomReady tells both members of a new room to start offer negotiation.
type RoomReady struct {
	RoomID string `json:"roomId"`
}

type RelayedOffer struct {
	SDP    json.RawMessage `json:"sdp"`
	RoomID string          `json:"roomId"`
}

type RelayedAnswer struct {
	SDP         json.RawMessage `json:"sdp"`
	RoomID      string          `json:"roomId"`
	DisplayName string          `json:"displayName,omitempty"`
}

type RelayedCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	Type      string          `json:"type"`
}

type ErrorPayload struct {
	Event SignalType `json:"event,omitempty"`
	Error string     `json:"error"`
}
