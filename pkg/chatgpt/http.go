package chatgpt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HTTPClient is the subset of *http.Client the client needs.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

// newRequest builds an authenticated backend request with the browser headers
// the backend expects. body, when not nil, is sent as JSON.
func (c *Client) newRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, errors.Wrapf(err, "building %s %s", method, url)
	}
	endpoints := c.settings.Endpoints
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	req.Header.Set("Origin", endpoints.Origin())
	req.Header.Set("Alt-Used", endpoints.Host())
	return req, nil
}

// doJSON sends a request and decodes the JSON object in the response. The
// status code is not checked; the backend reports errors in the body.
func (c *Client) doJSON(ctx context.Context, method, url string, body interface{}) (map[string]interface{}, error) {
	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, url)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading response of %s %s", method, url)
	}
	log.Debug().Str("method", method).Str("url", url).Int("status", resp.StatusCode).Int("bytes", len(raw)).Msg("Backend response")

	var ret map[string]interface{}
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, errors.Wrapf(err, "decoding response of %s %s (status %d): %s", method, url, resp.StatusCode, truncate(string(raw), 512))
	}
	return ret, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
