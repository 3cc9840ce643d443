// Package ports scans for the serial devices robot arms attach as.
package ports

import (
	"path/filepath"
)

// Device name patterns covering USB serial adapters on Linux (ttyUSB,
// ttyACM) and macOS (tty.usbserial and friends).
var patterns = []string{"ttyUSB*", "ttyACM*", "tty.*"}

// Report lists the matching device paths.
type Report struct {
	Ports []string `json:"ports"`
	Count int      `json:"count"`
}

// Scanner globs a device directory for serial ports.
type Scanner struct {
	dir string
}

// NewScanner returns a scanner over dir, defaulting to /dev.
func NewScanner(dir string) *Scanner {
	if dir == "" {
		dir = "/dev"
	}
	return &Scanner{dir: dir}
}

// List returns the matching ports grouped by pattern, each group in
// lexical order.
func (s *Scanner) List() Report {
	found := make([]string, 0)
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(filepath.Join(s.dir, pattern))
		found = append(found, matches...)
	}
	return Report{Ports: found, Count: len(found)}
}
