package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

var (
	// ErrMalformed marks an inbound frame that failed decoding or validation.
	ErrMalformed = errors.New("malformed signaling message")

	// ErrUnknownType marks an inbound frame whose type the server does not accept.
	ErrUnknownType = errors.New("unknown signaling message type")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeInbound parses a raw websocket frame into one of the Inbound variants.
// Errors wrap ErrMalformed or ErrUnknownType.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	var msg Inbound
	switch env.Type {
	case SignalTypeOffer:
		msg = &OfferPayload{}
	case SignalTypeAnswer:
		msg = &AnswerPayload{}
	case SignalTypeCandidate:
		msg = &IceCandidatePayload{}
	case SignalTypeEndCall:
		msg = &EndCallPayload{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%q", env.Type)
	}

	if len(env.Payload) == 0 {
		return nil, errors.Wrapf(ErrMalformed, "%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: %v", env.Type, err)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: %v", env.Type, err)
	}

	var err error
	switch m := msg.(type) {
	case *OfferPayload:
		err = checkSessionDescription(m.SDP, webrtc.SDPTypeOffer)
	case *AnswerPayload:
		err = checkSessionDescription(m.SDP, webrtc.SDPTypeAnswer)
	case *IceCandidatePayload:
		err = checkCandidate(m.Candidate)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s: %v", env.Type, err)
	}
	return msg, nil
}

// checkSessionDescription makes sure raw is an RTCSessionDescription of the wanted
// type whose SDP body parses.
func checkSessionDescription(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return errors.Wrap(err, "sdp")
	}
	if desc.Type != want {
		return errors.Errorf("sdp: expected type %s, got %s", want, desc.Type)
	}
	if desc.SDP == "" {
		return errors.New("sdp: empty session description")
	}
	if _, err := desc.Unmarshal(); err != nil {
		return errors.Wrap(err, "sdp")
	}
	return nil
}

// checkCandidate accepts any RTCIceCandidateInit object; an empty candidate string is
// the end-of-candidates marker and is relayed like any other.
func checkCandidate(raw json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New("candidate: null")
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return errors.Wrap(err, "candidate")
	}
	return nil
}
