package arkose

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const getTokenSymbol = "GetToken"

// nativeLibrary is a loaded token binary.
type nativeLibrary struct {
	path     string
	getToken func() string
}

// libraryCell holds the process-wide handle to the token binary. It is set at
// most once; a failed load leaves it empty so the next call tries again.
type libraryCell struct {
	mu   sync.Mutex
	lib  *nativeLibrary
	open func(path string) (*nativeLibrary, error)
}

var processLibrary = &libraryCell{open: openNativeLibrary}

// get returns the loaded library, running prepare (which yields the path to
// load) only when nothing has been loaded yet. Concurrent first calls are
// serialized so prepare and the load happen once.
func (c *libraryCell) get(prepare func() (string, error)) (*nativeLibrary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lib != nil {
		return c.lib, nil
	}

	path, err := prepare()
	if err != nil {
		return nil, err
	}
	lib, err := c.open(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Msg("Loaded native token library")
	c.lib = lib
	return lib, nil
}

// NativeProvider calls GetToken on the platform token binary, downloading
// the binary first when needed.
type NativeProvider struct {
	binaries *BinaryManager
	cell     *libraryCell
}

var _ TokenProvider = (*NativeProvider)(nil)

func NewNativeProvider(binaries *BinaryManager) *NativeProvider {
	return &NativeProvider{binaries: binaries, cell: processLibrary}
}

func (p *NativeProvider) GenerateToken(ctx context.Context) (string, error) {
	if p.binaries == nil {
		return "", ErrNoBinaryAvailable
	}
	lib, err := p.cell.get(func() (string, error) {
		if _, err := p.binaries.Ensure(ctx); err != nil {
			return "", err
		}
		return p.binaries.Path(), nil
	})
	if err != nil {
		return "", errors.Wrap(err, "loading native token library")
	}

	token := lib.getToken()
	if token == "" {
		return "", errors.Errorf("%s in %s returned no token", getTokenSymbol, lib.path)
	}
	return token, nil
}
