package chatgpt

import (
	"errors"
	"fmt"
)

var (
	ErrTokenNotProvided      = errors.New("token not provided: pass the __Secure-next-auth.session-token cookie value as the session token")
	ErrInvalidSessionToken   = errors.New("invalid session token provided")
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrUnexpectedJSONFormat  = errors.New("unexpected JSON format")
	ErrNoResponseChunks      = errors.New("no response chunks received")
	ErrSessionClosed         = errors.New("session is closed")
	ErrPromptInProgress      = errors.New("another prompt is in progress on this conversation")
)

// InvalidConversationIDError is returned when the backend refuses to load a conversation.
type InvalidConversationIDError struct {
	ID string
}

func (e *InvalidConversationIDError) Error() string {
	return fmt.Sprintf("%q is not a valid conversation id", e.ID)
}

func (e *InvalidConversationIDError) Is(target error) bool { return target == ErrInvalidConversationID }

// UnexpectedJSONFormatError names the field that was missing from JSON.
type UnexpectedJSONFormatError struct {
	Field string
	JSON  string
}

func (e *UnexpectedJSONFormatError) Error() string {
	return fmt.Sprintf("expected field %q in\n%s", e.Field, e.JSON)
}

func (e *UnexpectedJSONFormatError) Is(target error) bool { return target == ErrUnexpectedJSONFormat }

// NoResponseChunksError carries everything the server sent when no assistant
// message could be decoded from it.
type NoResponseChunksError struct {
	ServerResponse string
}

func (e *NoResponseChunksError) Error() string {
	return fmt.Sprintf("expected chunks of data from the server but instead got:\n%s", e.ServerResponse)
}

func (e *NoResponseChunksError) Is(target error) bool { return target == ErrNoResponseChunks }
