package stream

import (
	"encoding/json"
	stderrors "errors"

	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
)

// MessageType is the subtype of a stream message.
type MessageType string

// Message subtypes.
const (
	TypeInitial   MessageType = "initial"
	TypeUpdate    MessageType = "update"
	TypeHeartbeat MessageType = "heartbeat"
)

// Message is one decoded stream payload.
type Message struct {
	Type           MessageType     `json:"type"`
	Events         json.RawMessage `json:"events,omitempty"`
	WarningMarkers json.RawMessage `json:"warningMarkers,omitempty"`
}

// Delta is the typed content of an update message.
type Delta struct {
	Events   []events.Event
	Warnings []events.Event
}

// Empty reports whether the delta carries no records.
func (d Delta) Empty() bool {
	return len(d.Events) == 0 && len(d.Warnings) == 0
}

// Decode parses a raw message. Event records without a type default to
// protest and warning markers are always typed as warnings. Individual bad
// records are dropped and reported through skipped; a payload that is not a
// message at all returns a ParseError.
func Decode(raw []byte) (msg Message, delta Delta, skipped error, err error) {
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, Delta{}, nil, errors.NewParseError("json", "stream message", err)
	}
	if msg.Type != TypeUpdate {
		return msg, Delta{}, nil, nil
	}

	evs, evErr := events.DecodeList(msg.Events, events.CategoryProtest, "")
	if evs == nil && evErr != nil {
		return msg, Delta{}, nil, evErr
	}
	warnings, wErr := events.DecodeList(msg.WarningMarkers, "", events.CategoryWarning)
	if warnings == nil && wErr != nil {
		return msg, Delta{}, nil, wErr
	}
	return msg, Delta{Events: evs, Warnings: warnings}, stderrors.Join(evErr, wErr), nil
}
