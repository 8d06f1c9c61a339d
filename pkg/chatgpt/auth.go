package chatgpt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionCookieName is the cookie carrying the long-lived session token.
const SessionCookieName = "__Secure-next-auth.session-token"

// FetchAuthToken exchanges a session token for a short-lived access token.
// There is no retry: a rejected session token is reported as
// ErrInvalidSessionToken.
func FetchAuthToken(ctx context.Context, client HTTPClient, sessionURL, userAgent, sessionToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sessionURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building auth session request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if u, err := url.Parse(sessionURL); err == nil {
		req.Header.Set("Alt-Used", u.Host)
	}
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-GPC", "1")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionToken})

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetching auth token")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading auth session response")
	}

	var session struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body, &session); err != nil || session.AccessToken == "" {
		log.Debug().Int("status", resp.StatusCode).Msg("Auth session response carries no access token")
		return "", ErrInvalidSessionToken
	}
	return session.AccessToken, nil
}
