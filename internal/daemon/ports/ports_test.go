package ports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestListMatchesSerialDevices(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "ttyUSB0"))
	touch(t, filepath.Join(dir, "ttyUSB1"))
	touch(t, filepath.Join(dir, "ttyACM0"))
	touch(t, filepath.Join(dir, "tty.usbmodem1101"))
	touch(t, filepath.Join(dir, "ttyS0"))
	touch(t, filepath.Join(dir, "null"))

	report := NewScanner(dir).List()
	assert.Equal(t, []string{
		filepath.Join(dir, "ttyUSB0"),
		filepath.Join(dir, "ttyUSB1"),
		filepath.Join(dir, "ttyACM0"),
		filepath.Join(dir, "tty.usbmodem1101"),
	}, report.Ports)
	assert.Equal(t, 4, report.Count)
}

func TestListEmptyDirectory(t *testing.T) {
	report := NewScanner(t.TempDir()).List()
	assert.NotNil(t, report.Ports, "ports must encode as an empty list")
	assert.Equal(t, 0, report.Count)
}

func TestDefaultDirectory(t *testing.T) {
	s := NewScanner("")
	assert.Equal(t, "/dev", s.dir)
}
