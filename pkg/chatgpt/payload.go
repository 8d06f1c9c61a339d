package chatgpt

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ActionNext     = "next"
	ActionContinue = "continue"

	continuationTimezoneOffsetMin = -300
)

type conversationMode struct {
	Kind string `json:"kind"`
}

type author struct {
	Role string `json:"role"`
}

type messageContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

type outgoingMessage struct {
	Author   author                 `json:"author"`
	Content  messageContent         `json:"content"`
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Payload is the body of a conversation request.
type Payload struct {
	// the backend nests the mode one level deeper than its name suggests
	ConversationMode           map[string]conversationMode `json:"conversation_mode"`
	ConversationID             *string                     `json:"conversation_id"`
	Action                     string                      `json:"action"`
	ArkoseToken                *string                     `json:"arkose_token"`
	ForceParagen               bool                        `json:"force_paragen"`
	HistoryAndTrainingDisabled bool                        `json:"history_and_training_disabled"`
	Messages                   []outgoingMessage           `json:"messages,omitempty"`
	Model                      string                      `json:"model"`
	ParentMessageID            string                      `json:"parent_message_id"`
	TimezoneOffsetMin          *int                        `json:"timezone_offset_min,omitempty"`
}

func (p *Payload) MarshalZerologObject(e *zerolog.Event) {
	e.Str("action", p.Action)
	e.Str("model", p.Model)
	e.Str("parent_message_id", p.ParentMessageID)
	if p.ConversationID != nil {
		e.Str("conversation_id", *p.ConversationID)
	}
	e.Bool("has_arkose_token", p.ArkoseToken != nil)
	e.Int("messages", len(p.Messages))
}

// buildPayload assembles the request for the conversation's current state.
// An empty arkoseToken is sent as null. Continuations carry no message.
func (conv *Conversation) buildPayload(action, text, arkoseToken string) *Payload {
	p := &Payload{
		ConversationMode: map[string]conversationMode{
			"conversation_mode": {Kind: "primary_assistant"},
		},
		Action:          action,
		Model:           conv.Model.Slug,
		ParentMessageID: conv.ParentID,
	}
	if conv.ID != "" {
		id := conv.ID
		p.ConversationID = &id
	}
	if arkoseToken != "" {
		p.ArkoseToken = &arkoseToken
	}
	if p.ParentMessageID == "" {
		p.ParentMessageID = uuid.NewString()
	}

	switch action {
	case ActionContinue:
		offset := continuationTimezoneOffsetMin
		p.TimezoneOffsetMin = &offset
	default:
		p.Messages = []outgoingMessage{{
			Author:   author{Role: "user"},
			Content:  messageContent{ContentType: "text", Parts: []string{text}},
			ID:       uuid.NewString(),
			Metadata: map[string]interface{}{},
		}}
	}
	return p
}
