//go:build !cgo

package native

// Stub implementations for non-CGO builds. These allow the package to compile
// everywhere but return ErrNotBuilt when the native processor is invoked.

func Built() bool { return false }

func Version() string { return "" }

func ProcessText([]byte) ([]byte, error) {
	return nil, ErrNotBuilt
}
