package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, worldDir string) string {
	t.Helper()
	src := filepath.Join(worldDir, "snapshots", "40.snap.zst")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("dummy"), 0o644))
	return src
}

func TestArchiveRoundSnapshot_CopiesDefeatSnapshot(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "arena")
	src := writeDummy(t, worldDir)

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: "arena", Tick: 40, Reason: "defeat"},
		Seed:   42,
		Round:  snapshot.RoundV1{Number: 3, State: "DEFEAT", Collected: 12, Threshold: 30},
	}

	archivedPath, ok, err := ArchiveRoundSnapshot(worldDir, src, snap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "round_003_t40", filepath.Base(filepath.Dir(archivedPath)))

	got, err := os.ReadFile(archivedPath)
	require.NoError(t, err)
	assert.Equal(t, "dummy", string(got))

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	require.NoError(t, err)
	var meta RoundArchiveMeta
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "DEFEAT", meta.Outcome)
	assert.Equal(t, 12, meta.Collected)
}

func TestArchiveRoundSnapshot_SkipsPeriodic(t *testing.T) {
	worldDir := t.TempDir()
	src := writeDummy(t, worldDir)

	_, ok, err := ArchiveRoundSnapshot(worldDir, src, snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 40, Reason: "periodic"},
		Round:  snapshot.RoundV1{Number: 1},
	})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(worldDir, "archives"))
	assert.True(t, os.IsNotExist(err))
}
