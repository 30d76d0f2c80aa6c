package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode marks audio that could not be fetched or decoded.
	ErrDecode = errors.New("engine: cannot decode audio")
	// ErrDeviceUnavailable marks an output device that cannot be opened or resumed.
	ErrDeviceUnavailable = errors.New("engine: audio device unavailable")
	ErrClosed            = errors.New("engine: closed")
)

// DecodeError carries the source that failed to decode.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %v", ErrDecode, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDecode, e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
