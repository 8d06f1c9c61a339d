//go:build darwin || linux

package arkose

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

func openNativeLibrary(path string) (*nativeLibrary, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	sym, err := purego.Dlsym(handle, getTokenSymbol)
	if err != nil {
		_ = purego.Dlclose(handle)
		return nil, errors.Wrapf(err, "looking up %s in %s", getTokenSymbol, path)
	}

	var getToken func() string
	purego.RegisterFunc(&getToken, sym)
	return &nativeLibrary{path: path, getToken: getToken}, nil
}
