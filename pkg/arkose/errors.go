package arkose

import (
	"errors"
	"fmt"
)

var (
	ErrBackend           = errors.New("backend error")
	ErrRetriesExhausted  = errors.New("exceeded maximum retries")
	ErrNativeUnsupported = errors.New("native token generation is not supported on this platform")
	ErrNoBinaryAvailable = errors.New("no token binary available for this platform")
)

// BackendError reports a deterministic failure of a remote token service.
type BackendError struct {
	Code int
}

func (e *BackendError) Error() string {
	if e == nil {
		return ErrBackend.Error()
	}
	return fmt.Sprintf("an unexpected error occurred on the backend. Error code: %d", e.Code)
}

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// RetryError is returned once every attempt against Endpoint has failed.
type RetryError struct {
	Endpoint string
	Attempts int
}

func (e *RetryError) Error() string {
	if e == nil {
		return ErrRetriesExhausted.Error()
	}
	return fmt.Sprintf("%s (%d attempts) for website: %s", ErrRetriesExhausted, e.Attempts, e.Endpoint)
}

func (e *RetryError) Is(target error) bool { return target == ErrRetriesExhausted }
