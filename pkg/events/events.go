// Package events carries what happens during a prompt (start, every content
// increment, continuations, the final text, errors) to whoever listens.
//
// Code producing events publishes them to the sinks attached to its context
// (see WithEventSinks). The usual sink is a WatermillSink feeding an
// EventRouter, whose handlers (for instance PrinterFunc) run on their own
// goroutine.
package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeStart        EventType = "start"
	EventTypePartial      EventType = "partial"
	EventTypeContinuation EventType = "continuation"
	EventTypeFinal        EventType = "final"
	EventTypeError        EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

// EventMetadata identifies the prompt an event belongs to.
type EventMetadata struct {
	ID             uuid.UUID `json:"event_id" yaml:"event_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	ParentID       string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Model          string    `json:"model,omitempty" yaml:"model,omitempty"`
	// Pass counts the requests made for one prompt, starting at 1.
	Pass int `json:"pass,omitempty" yaml:"pass,omitempty"`
}

func (m EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", m.ID.String())
	if m.ConversationID != "" {
		e.Str("conversation_id", m.ConversationID)
	}
	if m.MessageID != "" {
		e.Str("message_id", m.MessageID)
	}
	if m.Model != "" {
		e.Str("model", m.Model)
	}
	if m.Pass > 0 {
		e.Int("pass", m.Pass)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type" yaml:"type"`
	Metadata_ EventMetadata `json:"meta" yaml:"meta"`
}

func (e *EventImpl) Type() EventType         { return e.Type_ }
func (e *EventImpl) Metadata() EventMetadata { return e.Metadata_ }

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func newImpl(t EventType, meta EventMetadata) EventImpl {
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	return EventImpl{Type_: t, Metadata_: meta}
}

type EventStart struct {
	EventImpl `yaml:",inline"`
	Prompt    string `json:"prompt" yaml:"prompt"`
}

func NewStartEvent(meta EventMetadata, prompt string) *EventStart {
	return &EventStart{EventImpl: newImpl(EventTypeStart, meta), Prompt: prompt}
}

// EventPartial carries one content increment. Completion is everything
// received for the prompt so far.
type EventPartial struct {
	EventImpl  `yaml:",inline"`
	Delta      string `json:"delta" yaml:"delta"`
	Completion string `json:"completion" yaml:"completion"`
}

func NewPartialEvent(meta EventMetadata, delta, completion string) *EventPartial {
	return &EventPartial{EventImpl: newImpl(EventTypePartial, meta), Delta: delta, Completion: completion}
}

// EventContinuation is published when a cut-off answer is being continued.
type EventContinuation struct {
	EventImpl `yaml:",inline"`
}

func NewContinuationEvent(meta EventMetadata) *EventContinuation {
	return &EventContinuation{EventImpl: newImpl(EventTypeContinuation, meta)}
}

type EventFinal struct {
	EventImpl `yaml:",inline"`
	Text      string `json:"text" yaml:"text"`
}

func NewFinalEvent(meta EventMetadata, text string) *EventFinal {
	return &EventFinal{EventImpl: newImpl(EventTypeFinal, meta), Text: text}
}

type EventError struct {
	EventImpl   `yaml:",inline"`
	ErrorString string `json:"error" yaml:"error"`
}

func NewErrorEvent(meta EventMetadata, err error) *EventError {
	return &EventError{EventImpl: newImpl(EventTypeError, meta), ErrorString: err.Error()}
}

// NewEventFromJSON decodes an event serialized by a WatermillSink.
func NewEventFromJSON(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "decoding event header")
	}

	var ev Event
	switch hdr.Type {
	case EventTypeStart:
		ev = &EventStart{}
	case EventTypePartial:
		ev = &EventPartial{}
	case EventTypeContinuation:
		ev = &EventContinuation{}
	case EventTypeFinal:
		ev = &EventFinal{}
	case EventTypeError:
		ev = &EventError{}
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, errors.Wrapf(err, "decoding %s event", hdr.Type)
	}
	return ev, nil
}
