package arkose

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBackupAttempts = 5
	DefaultBackupDelay    = 700 * time.Millisecond

	// nullBodyCode is reported when the backup service answers with a literal null.
	nullBodyCode = 505
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackupProvider fetches tokens from a remote token service.
type BackupProvider struct {
	client   HTTPClient
	url      string
	attempts int
	delay    time.Duration
	sleep    Sleeper
}

var _ TokenProvider = (*BackupProvider)(nil)

type BackupOption func(*BackupProvider)

func WithBackupHTTPClient(client HTTPClient) BackupOption {
	return func(p *BackupProvider) {
		if client != nil {
			p.client = client
		}
	}
}

func WithBackupAttempts(n int) BackupOption {
	return func(p *BackupProvider) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithBackupDelay(d time.Duration) BackupOption {
	return func(p *BackupProvider) {
		p.delay = d
	}
}

func WithSleeper(sleep Sleeper) BackupOption {
	return func(p *BackupProvider) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func NewBackupProvider(url string, opts ...BackupOption) *BackupProvider {
	p := &BackupProvider{
		client:   http.DefaultClient,
		url:      url,
		attempts: DefaultBackupAttempts,
		delay:    DefaultBackupDelay,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GenerateToken polls the service until it hands out a token. A literal null
// body fails immediately with a *BackendError; anything else that does not
// yield a token is followed by a fixed delay, and a *RetryError is returned
// once all attempts are used up.
func (p *BackupProvider) GenerateToken(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		body, err := p.fetch(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Debug().Err(err).Int("attempt", attempt).Str("url", p.url).Msg("Token request failed")
		case bytes.Equal(bytes.TrimSpace(body), []byte("null")):
			return "", &BackendError{Code: nullBodyCode}
		default:
			token, err := parseToken(body)
			if err == nil {
				log.Debug().Int("attempt", attempt).Msg("Obtained token from backup service")
				return token, nil
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("Could not parse token response")
		}

		if err := p.sleep(ctx, p.delay); err != nil {
			return "", err
		}
	}
	return "", &RetryError{Endpoint: p.url, Attempts: p.attempts}
}

func (p *BackupProvider) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building token request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

func parseToken(body []byte) (string, error) {
	var payload struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}
	if payload.Token == nil || *payload.Token == "" {
		return "", errors.New("token response has no token")
	}
	return *payload.Token, nil
}
