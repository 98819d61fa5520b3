package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/match"
)

// Message types on the relay socket
const (
	TypeWelcome = "welcome" // server -> client, once after approval
	TypeEvent   = "event"   // server -> client, one replicated change
	TypeContact = "contact" // client -> server, a reported contact
)

// Close reasons sent to clients
const (
	ReasonRejected    = "connection rejected"
	ReasonHostEnded   = "host ended session"
	ReasonSlowClient  = "client too slow"
	ReasonServerError = "server error"
)

// Envelope wraps every message after the handshake payload
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Welcome is sent once a connection is approved
type Welcome struct {
	ConnectionID model.ConnectionID `json:"connection_id"`
	Spawn        model.SpawnPoint   `json:"spawn"`
	ServerTime   time.Time          `json:"server_time"`
	Snapshot     match.Snapshot     `json:"snapshot"`
}

// Contact reports that the sender touched another participant
type Contact struct {
	TargetID model.ConnectionID `json:"target_id"`
}

// EventMessage is the wire form of a match event
type EventMessage struct {
	Type         model.EventType    `json:"type"`
	Timestamp    time.Time          `json:"timestamp"`
	ConnectionID model.ConnectionID `json:"connection_id,omitempty"`
	AuthID       model.AuthID       `json:"auth_id,omitempty"`
	Username     string             `json:"username,omitempty"`
	Payload      json.RawMessage    `json:"payload,omitempty"`
}

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// EncodeEvent converts a match event to its wire form
func EncodeEvent(evt model.Event) (EventMessage, error) {
	msg := EventMessage{
		Type:         evt.Type,
		Timestamp:    evt.Timestamp,
		ConnectionID: evt.ConnectionID,
		AuthID:       evt.AuthID,
		Username:     evt.Username,
	}
	if evt.Payload != nil {
		raw, err := json.Marshal(evt.Payload)
		if err != nil {
			return EventMessage{}, fmt.Errorf("encode %s payload: %w", evt.Type, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// DecodeEvent restores a match event with its typed payload
func DecodeEvent(msg EventMessage) (model.Event, error) {
	evt := model.Event{
		Type:         msg.Type,
		Timestamp:    msg.Timestamp,
		ConnectionID: msg.ConnectionID,
		AuthID:       msg.AuthID,
		Username:     msg.Username,
	}
	if len(msg.Payload) == 0 {
		return evt, nil
	}

	var err error
	switch msg.Type {
	case model.EventParticipantJoined:
		evt.Payload, err = decodePayload[model.ParticipantJoinedPayload](msg.Payload)
	case model.EventTagStatusChanged:
		evt.Payload, err = decodePayload[model.TagStatusChangedPayload](msg.Payload)
	case model.EventTaggedTimeChanged:
		evt.Payload, err = decodePayload[model.TaggedTimeChangedPayload](msg.Payload)
	case model.EventTimerChanged:
		evt.Payload, err = decodePayload[model.TimerChangedPayload](msg.Payload)
	case model.EventPhaseChanged:
		evt.Payload, err = decodePayload[model.PhaseChangedPayload](msg.Payload)
	case model.EventStandingChanged:
		evt.Payload, err = decodePayload[model.StandingChangePayload](msg.Payload)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return evt, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	err := json.Unmarshal(raw, &out)
	return out, err
}
