// Package arkose obtains the anti-bot token some models require on every
// conversation request.
//
// Two sources exist: a pre-built native library exposing a GetToken entry
// point (NativeProvider) and a remote token service (BackupProvider). The
// default strategy tries the native library first and falls back to the
// remote service on any failure.
package arkose

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPClient is the subset of *http.Client used by the providers.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

type TokenProvider interface {
	GenerateToken(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) GenerateToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// FallbackProvider asks Primary and, if that fails for any reason, Fallback.
type FallbackProvider struct {
	Primary  TokenProvider
	Fallback TokenProvider
}

var _ TokenProvider = (*FallbackProvider)(nil)

func (p *FallbackProvider) GenerateToken(ctx context.Context) (string, error) {
	token, err := p.Primary.GenerateToken(ctx)
	if err == nil {
		return token, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	log.Debug().Err(err).Msg("Primary token provider failed, using fallback")
	return p.Fallback.GenerateToken(ctx)
}

// NewDefaultProvider wires the native library (downloaded on first use by
// binaries) in front of the remote backup service at backupURL.
func NewDefaultProvider(client HTTPClient, backupURL string, binaries *BinaryManager) *FallbackProvider {
	return &FallbackProvider{
		Primary:  NewNativeProvider(binaries),
		Fallback: NewBackupProvider(backupURL, WithBackupHTTPClient(client)),
	}
}
