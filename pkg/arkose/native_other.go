//go:build !darwin && !linux && !windows

package arkose

func openNativeLibrary(string) (*nativeLibrary, error) {
	return nil, ErrNativeUnsupported
}
