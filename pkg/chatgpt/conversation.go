package chatgpt

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/buger/jsonparser"
	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Markers the backend puts in otherwise unstructured error responses.
const (
	markerCantLoad     = "Can't load conversation"
	markerInvalid      = "Invalid conversation"
	markerTokenExpired = "Your authentication token has expired"
)

// Conversation is one thread of messages. ID is empty until the backend
// assigned one; ParentID is the message the next turn is attached to.
//
// A conversation runs one prompt at a time.
type Conversation struct {
	ID       string
	ParentID string
	Model    models.Model

	client   *Client
	inFlight atomic.Bool
}

func (conv *Conversation) MarshalZerologObject(e *zerolog.Event) {
	e.Str("conversation_id", conv.ID)
	e.Str("parent_id", conv.ParentID)
	e.Str("model", conv.Model.Name)
}

// Configure reloads ParentID and Model from the backend. It does nothing for
// a conversation without ID.
func (conv *Conversation) Configure(ctx context.Context) error {
	if conv.ID == "" {
		return nil
	}
	if err := conv.client.checkOpen(); err != nil {
		return err
	}

	url := conv.client.settings.Endpoints.ConversationURL(conv.ID)
	req, err := conv.client.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := conv.client.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetching conversation")
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading conversation")
	}

	text := string(body)
	if strings.Contains(text, markerCantLoad) || strings.Contains(text, markerInvalid) {
		return &InvalidConversationIDError{ID: conv.ID}
	}

	mapping, dataType, _, err := jsonparser.Get(body, "mapping")
	if err != nil || dataType != jsonparser.Object {
		if strings.Contains(text, markerTokenExpired) {
			return ErrInvalidSessionToken
		}
		return &UnexpectedJSONFormatError{Field: "mapping", JSON: text}
	}

	parentID, model, err := walkMapping(mapping)
	if err != nil {
		return err
	}
	if parentID == "" {
		return &UnexpectedJSONFormatError{Field: "mapping", JSON: text}
	}
	if model == nil {
		return &UnexpectedJSONFormatError{Field: "model_slug", JSON: string(mapping)}
	}

	conv.ParentID = parentID
	conv.Model = *model
	log.Debug().Object("conversation", conv).Msg("Configured conversation")
	return nil
}

// walkMapping goes through the message tree in document order. It returns
// the last node id and the model of the last assistant message whose slug
// is known.
func walkMapping(mapping []byte) (string, *models.Model, error) {
	var lastID string
	var model *models.Model
	err := jsonparser.ObjectEach(mapping, func(key []byte, node []byte, dataType jsonparser.ValueType, _ int) error {
		lastID = string(key)
		if dataType != jsonparser.Object {
			return nil
		}
		role, err := jsonparser.GetString(node, "message", "author", "role")
		if err != nil || role != "assistant" {
			return nil
		}
		slug, err := jsonparser.GetString(node, "message", "metadata", "model_slug")
		if err != nil {
			return nil
		}
		if m, err := models.FromSlug(slug); err == nil {
			model = &m
		}
		return nil
	})
	if err != nil {
		return "", nil, &UnexpectedJSONFormatError{Field: "mapping", JSON: string(mapping)}
	}
	return lastID, model, nil
}

// Delete removes the conversation on the backend and resets it to a fresh
// state. It does nothing for a conversation without ID.
func (conv *Conversation) Delete(ctx context.Context) error {
	if conv.ID == "" {
		return nil
	}
	if _, err := conv.client.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}
	conv.ID = ""
	conv.ParentID = ""
	return nil
}

// arkoseToken returns a token when the model or the client asks for one.
func (conv *Conversation) arkoseToken(ctx context.Context) (string, error) {
	if !conv.Model.NeedsArkoseToken && !conv.client.forceArkose {
		return "", nil
	}
	token, err := conv.client.tokens.GenerateToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "generating arkose token")
	}
	return token, nil
}

// chatRequirementsToken asks for the sentinel token sent along with
// conversation requests. Failures only mean the header is left out.
func (conv *Conversation) chatRequirementsToken(ctx context.Context) string {
	c := conv.client
	if !c.settings.ChatRequirements {
		return ""
	}
	e := c.settings.Endpoints
	resp, err := c.doJSON(ctx, http.MethodPost, e.Resolve(e.ChatRequirements), nil)
	if err != nil {
		log.Debug().Err(err).Msg("No chat requirements token")
		return ""
	}
	token, _ := resp["token"].(string)
	return token
}
