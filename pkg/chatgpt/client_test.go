package chatgpt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-go-golems/regpt/pkg/models"
	"github.com/go-go-golems/regpt/pkg/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/session":
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value != "good-session" {
				_, _ = io.WriteString(w, `{}`)
				return
			}
			_, _ = io.WriteString(w, `{"user": {"name": "x"}, "accessToken": "fresh-access-token", "expires": "2030-01-01"}`)
		case "/backend-api/conversations":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"authorization": r.Header.Get("Authorization"),
				"query":         r.URL.RawQuery,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSettings(baseURL string) *settings.Settings {
	s := settings.Default()
	s.Endpoints.BaseURL = baseURL
	s.AllowInsecureEndpoints = true
	return s
}

func TestOpenExchangesSessionToken(t *testing.T) {
	srv := authServer(t)
	c := NewClient(WithSettings(testSettings(srv.URL)), WithHTTPClient(srv.Client()), WithSessionToken("good-session"))

	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "fresh-access-token", c.AuthToken())

	resp, err := c.ListConversations(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-access-token", resp["authorization"])
	assert.Equal(t, "limit=28&offset=0&order=updated", resp["query"])

	resp, err = c.ListConversations(context.Background(), 56, 10)
	require.NoError(t, err)
	assert.Equal(t, "limit=10&offset=56&order=updated", resp["query"])
}

func TestOpenRejectsBadSessionToken(t *testing.T) {
	srv := authServer(t)
	c := NewClient(WithSettings(testSettings(srv.URL)), WithHTTPClient(srv.Client()), WithSessionToken("expired"))
	assert.ErrorIs(t, c.Open(context.Background()), ErrInvalidSessionToken)
}

func TestOpenWithoutTokens(t *testing.T) {
	c := NewClient(WithSettings(testSettings("http://127.0.0.1:1")))
	assert.ErrorIs(t, c.Open(context.Background()), ErrTokenNotProvided)

	_, err := c.ListConversations(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrTokenNotProvided)
}

func TestOpenTakesTokensFromSettings(t *testing.T) {
	s := testSettings("http://127.0.0.1:1")
	s.AuthToken = "configured-access-token"
	c := NewClient(WithSettings(s))
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "configured-access-token", c.AuthToken())
}

func TestFetchAuthTokenBodies(t *testing.T) {
	for name, body := range map[string]string{
		"empty object": `{}`,
		"empty token":  `{"accessToken": ""}`,
		"html":         `<html>Just a moment...</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()
			_, err := FetchAuthToken(context.Background(), srv.Client(), srv.URL, "ua", "tok")
			assert.ErrorIs(t, err, ErrInvalidSessionToken)
		})
	}
}

type countingClient struct {
	*http.Client
	idleCloses atomic.Int32
}

func (c *countingClient) CloseIdleConnections() {
	c.idleCloses.Add(1)
	c.Client.CloseIdleConnections()
}

func TestCloseRunsHookThenReleases(t *testing.T) {
	hc := &countingClient{Client: &http.Client{}}
	var hookCalls int
	c := NewClient(
		WithSettings(testSettings("http://127.0.0.1:1")),
		WithHTTPClient(hc),
		WithAuthToken("a"),
		WithExitHook(func(ctx context.Context, c *Client) error {
			hookCalls++
			assert.Equal(t, int32(0), hc.idleCloses.Load(), "hook runs before the session is released")
			return errors.New("could not save history")
		}),
	)
	require.NoError(t, c.Open(context.Background()))

	err := c.Close(context.Background())
	assert.EqualError(t, err, "could not save history")
	assert.Equal(t, int32(1), hc.idleCloses.Load())

	assert.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, hookCalls)

	_, err = c.ListConversations(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, c.Open(context.Background()), ErrSessionClosed)
}

func TestCloseReleasesWhenHookPanics(t *testing.T) {
	hc := &countingClient{Client: &http.Client{}}
	c := NewClient(
		WithSettings(testSettings("http://127.0.0.1:1")),
		WithHTTPClient(hc),
		WithAuthToken("a"),
		WithExitHook(func(context.Context, *Client) error { panic("boom") }),
	)
	assert.Panics(t, func() { _ = c.Close(context.Background()) })
	assert.Equal(t, int32(1), hc.idleCloses.Load())
}

func TestRun(t *testing.T) {
	srv := authServer(t)
	options := []Option{WithSettings(testSettings(srv.URL)), WithHTTPClient(srv.Client()), WithSessionToken("good-session")}

	var seen string
	err := Run(context.Background(), func(ctx context.Context, c *Client) error {
		seen = c.AuthToken()
		return nil
	}, options...)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access-token", seen)

	hookErr := errors.New("hook failed")
	fnErr := errors.New("fn failed")
	err = Run(context.Background(), func(context.Context, *Client) error { return fnErr },
		append(options, WithExitHook(func(context.Context, *Client) error { return hookErr }))...)
	assert.Equal(t, fnErr, err)

	err = Run(context.Background(), func(context.Context, *Client) error { return nil },
		append(options, WithExitHook(func(context.Context, *Client) error { return hookErr }))...)
	assert.Equal(t, hookErr, err)
}

func TestSetCustomInstructions(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/backend-api/user_system_messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"object": "user_system_message_detail", "enabled": true}`)
	}))
	defer srv.Close()

	c := NewClient(WithSettings(testSettings(srv.URL)), WithHTTPClient(srv.Client()), WithAuthToken("a"))
	resp, err := c.SetCustomInstructions(context.Background(), "I write Go", "Be terse", true)
	require.NoError(t, err)
	assert.Equal(t, "user_system_message_detail", resp["object"])
	assert.Equal(t, map[string]interface{}{
		"about_user_message":  "I write Go",
		"about_model_message": "Be terse",
		"enabled":             true,
	}, got)
}

func TestDeleteConversationNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithSettings(testSettings(srv.URL)), WithHTTPClient(srv.Client()), WithAuthToken("a"))
	_, err := c.DeleteConversation(context.Background(), "conv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNewConversationDefaults(t *testing.T) {
	s := testSettings("http://127.0.0.1:1")
	s.Model = models.GPT4.Name
	c := NewClient(WithSettings(s), WithAuthToken("a"))

	conv := c.NewConversation()
	assert.Equal(t, models.GPT4, conv.Model)
	assert.Empty(t, conv.ID)

	conv = c.NewConversation(WithModel(models.GPT35), WithConversationID("conv-1"))
	assert.Equal(t, models.GPT35, conv.Model)
	assert.Equal(t, "conv-1", conv.ID)
}
