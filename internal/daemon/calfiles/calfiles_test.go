package calfiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDebounce = 20 * time.Millisecond

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func startIndex(t *testing.T, root string) *Index {
	t.Helper()
	ix, err := NewIndex(nil, root, testDebounce)
	require.NoError(t, err)
	require.NoError(t, ix.Start(context.Background()))
	t.Cleanup(ix.Stop)
	return ix
}

func TestCheckFindsMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), "{}")
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "other.json"), "{}")
	writeFile(t, filepath.Join(root, "teleoperators", "so100_leader", "lead1.json"), "{}")

	ix := startIndex(t, root)

	report := ix.Check("arm1", "follower")
	require.Equal(t, 1, report.FileCount)
	assert.Equal(t, "arm1.json", report.Files[0].Name)
	assert.Equal(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), report.Files[0].Path)
	assert.Equal(t, int64(2), report.Files[0].Size)
	assert.Greater(t, report.Files[0].Modified, float64(0))
	assert.Equal(t, filepath.Join(root, "robots"), report.CacheDir)
}

func TestLeaderReadsTeleoperatorsSide(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), "{}")
	writeFile(t, filepath.Join(root, "teleoperators", "so100_leader", "arm1.json"), "{}")

	ix := startIndex(t, root)

	report := ix.Check("arm1", "leader")
	require.Equal(t, 1, report.FileCount)
	assert.Equal(t, filepath.Join(root, "teleoperators"), report.CacheDir)
	assert.Contains(t, report.Files[0].Path, "teleoperators")
}

func TestCheckNoMatches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), "{}")

	ix := startIndex(t, root)

	report := ix.Check("missing", "follower")
	assert.Equal(t, 0, report.FileCount)
	assert.NotNil(t, report.Files, "files must encode as an empty list")
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), "{}")

	ix := startIndex(t, root)
	require.Equal(t, 1, ix.Check("arm1", "follower").FileCount)

	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1_backup.json"), "{}")
	assert.Eventually(t, func() bool {
		return ix.Check("arm1", "follower").FileCount == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpRemovals(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "robots", "so100_follower", "arm1.json")
	writeFile(t, path, "{}")

	ix := startIndex(t, root)
	require.Equal(t, 1, ix.Check("arm1", "follower").FileCount)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		return ix.Check("arm1", "follower").FileCount == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "robots"), 0o755))

	ix := startIndex(t, root)
	require.Equal(t, 0, ix.Check("arm1", "follower").FileCount)

	writeFile(t, filepath.Join(root, "robots", "new_robot", "arm1.json"), "{}")
	assert.Eventually(t, func() bool {
		return ix.Check("arm1", "follower").FileCount == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMissingRootFallsBackToRescan(t *testing.T) {
	root := filepath.Join(t.TempDir(), "calibration")

	ix := startIndex(t, root)
	assert.Equal(t, 0, ix.Check("arm1", "follower").FileCount)

	// The root did not exist at start, so Check rescans on demand.
	writeFile(t, filepath.Join(root, "robots", "so100_follower", "arm1.json"), "{}")
	assert.Eventually(t, func() bool {
		return ix.Check("arm1", "follower").FileCount == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	ix, err := NewIndex(nil, t.TempDir(), testDebounce)
	require.NoError(t, err)
	ix.Stop()
	ix.Stop()
}
