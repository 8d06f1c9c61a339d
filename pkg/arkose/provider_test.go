package arkose

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackProvider(t *testing.T) {
	var fallbackCalls int
	fallback := TokenProviderFunc(func(context.Context) (string, error) {
		fallbackCalls++
		return "backup-token", nil
	})

	t.Run("primary succeeds", func(t *testing.T) {
		fallbackCalls = 0
		p := &FallbackProvider{
			Primary:  TokenProviderFunc(func(context.Context) (string, error) { return "native-token", nil }),
			Fallback: fallback,
		}
		token, err := p.GenerateToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "native-token", token)
		assert.Equal(t, 0, fallbackCalls)
	})

	t.Run("primary fails", func(t *testing.T) {
		fallbackCalls = 0
		p := &FallbackProvider{
			Primary:  TokenProviderFunc(func(context.Context) (string, error) { return "", ErrNativeUnsupported }),
			Fallback: fallback,
		}
		token, err := p.GenerateToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "backup-token", token)
		assert.Equal(t, 1, fallbackCalls)
	})

	t.Run("both fail", func(t *testing.T) {
		p := &FallbackProvider{
			Primary: TokenProviderFunc(func(context.Context) (string, error) { return "", errors.New("no lib") }),
			Fallback: TokenProviderFunc(func(context.Context) (string, error) {
				return "", &BackendError{Code: 505}
			}),
		}
		_, err := p.GenerateToken(context.Background())
		assert.ErrorIs(t, err, ErrBackend)
	})
}
