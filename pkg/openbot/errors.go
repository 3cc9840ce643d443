package openbot

import (
	"errors"

	"github.com/carpit680/openbot-go/internal/native"
)

// ErrNotBuilt indicates the binary was produced without the native processing
// backend. Callers can fall back to the pure Go pass-through.
var ErrNotBuilt = errors.New("native processor not built")

// RemapError converts internal native layer errors to public API errors.
// This is exported for use by subpackages.
func RemapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, native.ErrNotBuilt) {
		return ErrNotBuilt
	}
	return err
}
