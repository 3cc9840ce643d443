package native

import (
	"errors"
	"fmt"
)

// Result codes returned across the C boundary. Values mirror the enum in
// processor.h.
const (
	codeOK     = 0
	codeParam  = 1
	codeMemory = 2
)

var (
	// ErrNotBuilt reports that the native processor was not compiled into the
	// current binary. Callers can use this to fall back to the pure Go path.
	ErrNotBuilt = errors.New("openbot/internal/native: native processor not built")

	// ErrParam signals that the native routine rejected its arguments.
	ErrParam = errors.New("openbot/internal/native: invalid parameter")

	// ErrMemory signals an allocation failure inside the native routine.
	ErrMemory = errors.New("openbot/internal/native: allocation failed")
)

func codeToError(rc int) error {
	switch rc {
	case codeParam:
		return ErrParam
	case codeMemory:
		return ErrMemory
	default:
		return fmt.Errorf("openbot/internal/native: unexpected result code %d", rc)
	}
}
