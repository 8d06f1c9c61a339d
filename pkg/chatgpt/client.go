// Package chatgpt is a client for the ChatGPT web backend.
//
//	err := chatgpt.Run(ctx, func(ctx context.Context, c *chatgpt.Client) error {
//		conv := c.NewConversation()
//		s := conv.Prompt(ctx, "Hello")
//		defer s.Close()
//		for s.Next() {
//			fmt.Print(s.Current().Content)
//		}
//		return s.Err()
//	}, chatgpt.WithSessionToken(token))
package chatgpt

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-go-golems/regpt/pkg/arkose"
	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultListLimit is the page size used by ListConversations when none is given.
const DefaultListLimit = 28

// ExitHook runs when the client is closed, before the network session is released.
type ExitHook func(ctx context.Context, c *Client) error

// Client holds one authenticated session with the backend. It is not safe
// for concurrent prompts without external synchronization.
type Client struct {
	settings   *settings.Settings
	httpClient HTTPClient
	tokens     arkose.TokenProvider
	exitHook   ExitHook

	sessionToken string
	authToken    string
	userAgent    string
	forceArkose  bool

	mu     sync.Mutex
	closed bool
}

type Option func(*Client)

func WithSettings(s *settings.Settings) Option {
	return func(c *Client) {
		if s != nil {
			c.settings = s
		}
	}
}

func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithSessionToken(token string) Option {
	return func(c *Client) {
		c.sessionToken = token
	}
}

// WithAuthToken skips the session token exchange.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithExitHook(hook ExitHook) Option {
	return func(c *Client) {
		c.exitHook = hook
	}
}

func WithTokenProvider(p arkose.TokenProvider) Option {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithForceArkoseToken sends an anti-bot token with every request, not only
// for models requiring one.
func WithForceArkoseToken(force bool) Option {
	return func(c *Client) {
		c.forceArkose = force
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient returns a client that is not yet opened. Values missing from the
// options are taken from the settings (settings.Default when none are given).
func NewClient(options ...Option) *Client {
	c := &Client{}
	for _, o := range options {
		o(c)
	}

	if c.settings == nil {
		c.settings = settings.Default()
	}
	s := c.settings
	if c.sessionToken == "" {
		c.sessionToken = s.SessionToken
	}
	if c.authToken == "" {
		c.authToken = s.AuthToken
	}
	if c.userAgent == "" {
		c.userAgent = s.UserAgent
	}
	c.forceArkose = c.forceArkose || s.ForceArkoseToken
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: s.Timeout}
	}
	if c.tokens == nil {
		c.tokens = arkose.NewDefaultProvider(
			c.httpClient,
			s.Endpoints.Resolve(s.Endpoints.BackupToken),
			NewBinaryManager(s, c.httpClient),
		)
	}
	return c
}

// NewBinaryManager returns the manager for the native token binary configured in s.
func NewBinaryManager(s *settings.Settings, client HTTPClient) *arkose.BinaryManager {
	return arkose.NewBinaryManager(
		arkose.WithBinaryHTTPClient(client),
		arkose.WithReleasesURL(s.Endpoints.Resolve(s.Endpoints.Releases)),
		arkose.WithBinaryDir(s.BinaryDir),
		arkose.WithDownloadPolicy(s.Policy()),
	)
}

func (c *Client) Settings() *settings.Settings {
	return c.settings
}

// AuthToken returns the access token in use, empty before Open.
func (c *Client) AuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken
}

// Open starts the session, exchanging the session token for an access token
// when no access token was given.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.authToken == "" {
		if c.sessionToken == "" {
			return ErrTokenNotProvided
		}
		e := c.settings.Endpoints
		token, err := FetchAuthToken(ctx, c.httpClient, e.Resolve(e.AuthSession), c.userAgent, c.sessionToken)
		if err != nil {
			return err
		}
		c.authToken = token
		log.Debug().Msg("Obtained auth token from session token")
	}
	return nil
}

// Close runs the exit hook and releases the network session, even when the
// hook fails or panics. It returns the hook's error.
func (c *Client) Close(ctx context.Context) (err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	defer c.release()
	if c.exitHook != nil {
		if err = c.exitHook(ctx, c); err != nil {
			log.Warn().Err(err).Msg("Exit hook failed")
		}
	}
	return err
}

func (c *Client) release() {
	if ci, ok := c.httpClient.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
	log.Debug().Msg("Released network session")
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.authToken == "" {
		return errors.Wrap(ErrTokenNotProvided, "client is not open")
	}
	return nil
}

// Run opens a client built from options, calls fn and closes the client
// again. fn's error takes precedence over the one from Close.
func Run(ctx context.Context, fn func(ctx context.Context, c *Client) error, options ...Option) error {
	c := NewClient(options...)
	if err := c.Open(ctx); err != nil {
		return err
	}
	err := fn(ctx, c)
	if closeErr := c.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}

type ConversationOption func(*Conversation)

// WithConversationID continues an existing conversation. Its state is
// fetched from the backend before the first prompt.
func WithConversationID(id string) ConversationOption {
	return func(conv *Conversation) {
		conv.ID = id
	}
}

func WithModel(m models.Model) ConversationOption {
	return func(conv *Conversation) {
		conv.Model = m
	}
}

// NewConversation returns a conversation using the configured default model.
func (c *Client) NewConversation(options ...ConversationOption) *Conversation {
	m, err := models.FromName(c.settings.Model)
	if err != nil {
		m = models.Default
	}
	conv := &Conversation{client: c, Model: m}
	for _, o := range options {
		o(conv)
	}
	return conv
}

// SetCustomInstructions sets what the assistant should know about the user
// and how it should respond, and returns the backend's answer.
func (c *Client) SetCustomInstructions(ctx context.Context, aboutUser, aboutModel string, enableForNewChats bool) (map[string]interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	e := c.settings.Endpoints
	return c.doJSON(ctx, http.MethodPost, e.Resolve(e.CustomInstructions), map[string]interface{}{
		"about_user_message":  aboutUser,
		"about_model_message": aboutModel,
		"enabled":             enableForNewChats,
	})
}

// ListConversations returns one page of conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context, offset, limit int) (map[string]interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	e := c.settings.Endpoints
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "updated")
	return c.doJSON(ctx, http.MethodGet, e.Resolve(e.Conversations)+"?"+q.Encode(), nil)
}

// DeleteConversation hides a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) (map[string]interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.doJSON(ctx, http.MethodPatch, c.settings.Endpoints.ConversationURL(id), map[string]interface{}{
		"is_visible": false,
	})
}
