package stream

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog"
)

// DataPrefix marks the payload lines of the backend's event stream.
const DataPrefix = "data: "

const (
	roleAssistant       = "assistant"
	finishTypeMaxTokens = "max_tokens"
)

// Delta is one assistant message update decoded from the event stream.
//
// Content is whatever the server sent for this update. Coming out of the
// decoder it is cumulative for the current server turn; the Differ turns it
// into the newly appended suffix.
type Delta struct {
	Content        string `json:"content"`
	MessageID      string `json:"message_id"`
	ParentID       string `json:"parent_id"`
	ConversationID string `json:"conversation_id"`
	// CutOff is set when the server stopped the message because it hit its token limit.
	CutOff bool `json:"cut_off,omitempty"`
}

func (d Delta) String() string {
	return d.Content
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", d.MessageID)
	e.Str("parent_id", d.ParentID)
	e.Str("conversation_id", d.ConversationID)
	e.Int("content_length", len(d.Content))
	if d.CutOff {
		e.Bool("cut_off", true)
	}
}

var _ zerolog.LogObjectMarshaler = Delta{}

type streamEvent struct {
	Message        *streamMessage `json:"message"`
	ConversationID string         `json:"conversation_id"`
}

type streamMessage struct {
	ID     string `json:"id"`
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	Content struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
	} `json:"content"`
	Metadata struct {
		ParentID      string `json:"parent_id"`
		FinishDetails *struct {
			Type string `json:"type"`
		} `json:"finish_details"`
	} `json:"metadata"`
}

// DecodeLine turns a single event-stream line into a Delta.
//
// Lines without the data prefix (comments, keep-alives, event names), payloads
// that are not valid JSON ("[DONE]", partial frames) and messages not authored
// by the assistant all return false.
func DecodeLine(line []byte) (Delta, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return Delta{}, false
	}
	payload := line[len(DataPrefix):]

	var ev streamEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Delta{}, false
	}
	msg := ev.Message
	if msg == nil || msg.Author.Role != roleAssistant {
		return Delta{}, false
	}
	if len(msg.Content.Parts) == 0 {
		return Delta{}, false
	}
	var content string
	if err := json.Unmarshal(msg.Content.Parts[0], &content); err != nil {
		return Delta{}, false
	}

	return Delta{
		Content:        content,
		MessageID:      msg.ID,
		ParentID:       msg.Metadata.ParentID,
		ConversationID: ev.ConversationID,
		CutOff:         msg.Metadata.FinishDetails != nil && msg.Metadata.FinishDetails.Type == finishTypeMaxTokens,
	}, true
}
