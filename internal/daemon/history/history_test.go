package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpit680/openbot-go/internal/daemon/session"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(nil, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func result(id, kind string, status session.Status, ended time.Time) session.Result {
	return session.Result{
		ID:        id,
		Kind:      kind,
		Target:    "arm1",
		Status:    status,
		ExitCode:  0,
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
		Tail:      []string{"line one", "line two"},
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, result("arm1_follower", "Calibration", session.StatusCompleted, base)))
	require.NoError(t, s.Record(ctx, result("lead1_arm1_teleop", "Teleoperation", session.StatusCancelled, base.Add(time.Hour))))

	entries, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "lead1_arm1_teleop", entries[0].SessionID, "newest first")
	assert.Equal(t, "Teleoperation", entries[0].Kind)
	assert.Equal(t, "cancelled", entries[0].Status)

	want := Entry{
		SessionID:  "arm1_follower",
		Kind:       "Calibration",
		Target:     "arm1",
		Status:     "completed",
		ExitCode:   0,
		StartedAt:  base.Add(-time.Minute),
		EndedAt:    base,
		OutputTail: "line one\nline two",
	}
	if diff := cmp.Diff(want, entries[1], cmpopts.IgnoreFields(Entry{}, "ID")); diff != "" {
		t.Errorf("stored entry mismatch (-want +got):\n%s", diff)
	}
}

func TestByKind(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, result("a_follower", "Calibration", session.StatusCompleted, base)))
	require.NoError(t, s.Record(ctx, result("b_follower", "Calibration", session.StatusFailed, base.Add(time.Minute))))
	require.NoError(t, s.Record(ctx, result("l_f_teleop", "Teleoperation", session.StatusCompleted, base.Add(2*time.Minute))))

	entries, err := s.ByKind(ctx, "Calibration", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b_follower", entries[0].SessionID)
	assert.Equal(t, "a_follower", entries[1].SessionID)
}

func TestLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, result("s", "Calibration", session.StatusCompleted, base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestEmptyStore(t *testing.T) {
	s := openStore(t)

	entries, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, entries, "history must encode as an empty list")
	assert.Empty(t, entries)
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	ctx := context.Background()

	s, err := Open(nil, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, result("arm1_follower", "Calibration", session.StatusCompleted, time.Now())))
	require.NoError(t, s.Close())

	reopened, err := Open(nil, path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "arm1_follower", entries[0].SessionID)
}

func TestRecorderInserts(t *testing.T) {
	s := openStore(t)

	s.Recorder()(result("arm1_replay_x", "Dataset replay", session.StatusCompleted, time.Now()))

	entries, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Dataset replay", entries[0].Kind)
}
