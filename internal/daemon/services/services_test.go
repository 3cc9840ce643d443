package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitSession(t *testing.T, r *session.Runner, id string) *session.Session {
	t.Helper()
	s, ok := r.Get(id)
	require.True(t, ok)
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
	}
	return s
}

func scrollbackTexts(s *session.Session) []string {
	items := s.Scrollback()
	texts := make([]string, 0, len(items))
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	return texts
}

func TestCameraFlagEmpty(t *testing.T) {
	flag, err := cameraFlag(nil)
	require.NoError(t, err)
	assert.Empty(t, flag)
}

func TestCameraFlagDefaults(t *testing.T) {
	flag, err := cameraFlag([]CameraSpec{{}})
	require.NoError(t, err)
	assert.Equal(t,
		`--robot.cameras={"camera_0":{"type":"opencv","index_or_path":0,"width":1920,"height":1080,"fps":30}}`,
		flag)
}

func TestCameraFlagMultiple(t *testing.T) {
	flag, err := cameraFlag([]CameraSpec{
		{Name: "wrist", Index: 2, Width: 640, Height: 480, FPS: 15},
		{Name: "front", Index: 0},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`--robot.cameras={`+
			`"front":{"type":"opencv","index_or_path":0,"width":1920,"height":1080,"fps":30},`+
			`"wrist":{"type":"opencv","index_or_path":2,"width":640,"height":480,"fps":15}}`,
		flag)
}

func TestNormalizeArmType(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SO100Follower", "so100_follower"},
		{"SO100Leader", "so100_leader"},
		{"KochFollower", "koch_follower"},
		{"so100_follower", "so100_follower"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeArmType(tc.in), tc.in)
	}
}

func TestSanitizePort(t *testing.T) {
	assert.Equal(t, "_dev_ttyUSB0", sanitizePort("/dev/ttyUSB0"))
	assert.Equal(t, "COM3", sanitizePort("COM3"))
}
