//go:build !linux

package encoder

import (
	"fmt"
	"io"
	"runtime"
)

// Serial configuration uses Linux termios. Other platforms can still wrap an
// already-open stream via New.
func openPort(path string, baud int) (io.ReadCloser, error) {
	return nil, fmt.Errorf("encoder: serial port access not supported on %s", runtime.GOOS)
}
