//go:build windows

package arkose

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func openNativeLibrary(path string) (*nativeLibrary, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	proc, err := dll.FindProc(getTokenSymbol)
	if err != nil {
		_ = dll.Release()
		return nil, errors.Wrapf(err, "looking up %s in %s", getTokenSymbol, path)
	}

	getToken := func() string {
		r, _, _ := proc.Call()
		if r == 0 {
			return ""
		}
		return windows.BytePtrToString((*byte)(unsafe.Pointer(r)))
	}
	return &nativeLibrary{path: path, getToken: getToken}, nil
}
