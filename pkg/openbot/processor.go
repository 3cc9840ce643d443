package openbot

import (
	"context"
	"strings"

	"github.com/carpit680/openbot-go/internal/native"
)

// Processor transforms one text value into another. Implementations must be
// safe for concurrent use.
type Processor interface {
	// Process runs the processor over data and returns its output.
	Process(ctx context.Context, data string) (string, error)
	// Name identifies the implementation, for logs and diagnostics.
	Name() string
}

// PassThrough is the pure Go processing core. Its output equals its input for
// every value, including the empty string and byte sequences with embedded
// NULs. It is always available.
type PassThrough struct{}

// Process returns data unchanged.
func (PassThrough) Process(_ context.Context, data string) (string, error) {
	return data, nil
}

// Name returns the processor identifier.
func (PassThrough) Name() string { return "pass-through" }

// Native runs the processing routine compiled from C++. It implements the
// same contract as PassThrough; the two paths must agree on every input.
type Native struct{}

// NewNative returns the native processor, or ErrNotBuilt when the binary was
// produced without the native backend.
func NewNative() (*Native, error) {
	if !native.Built() {
		return nil, ErrNotBuilt
	}
	return &Native{}, nil
}

// Process runs the native routine over data.
func (*Native) Process(_ context.Context, data string) (string, error) {
	out, err := native.ProcessText([]byte(data))
	if err != nil {
		return "", RemapError(err)
	}
	return string(out), nil
}

// Name returns the processor identifier.
func (*Native) Name() string { return "native" }

// Uppercase maps its input to upper case. It is the worked example of a
// custom pure Go processor and is not bound by the pass-through contract.
type Uppercase struct{}

// Process returns data with all letters mapped to upper case.
func (Uppercase) Process(_ context.Context, data string) (string, error) {
	return strings.ToUpper(data), nil
}

// Name returns the processor identifier.
func (Uppercase) Name() string { return "uppercase" }

// Default returns the native processor when it was compiled in and the pure
// Go pass-through otherwise. It never returns nil.
func Default() Processor {
	if p, err := NewNative(); err == nil {
		return p
	}
	return PassThrough{}
}
