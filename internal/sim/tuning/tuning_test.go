package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 20, tu.TickRateHz)
	assert.Equal(t, 6, tu.Round.BaseGhosts)
	assert.Len(t, tu.Prefabs, 3)
	assert.Len(t, tu.Routes, 2)
	require.NotNil(t, tu.Stations.Lab)
	assert.True(t, tu.Stations.LabAutoConvert)
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte("round:\n  base_ghosts: 2\n"), 0o644))

	tu, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, tu.Round.BaseGhosts)
	assert.Equal(t, 3, tu.Round.GhostsPerRound)
	assert.Equal(t, 0.25, tu.Ghost.UnconsciousFraction)
	assert.True(t, tu.Stations.LabAutoConvert)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestValidateRejectsBadValues(t *testing.T) {
	tu := Defaults()
	tu.Ghost.UnconsciousFraction = 1.5
	tu.Prefabs = append(tu.Prefabs, Prefab{ID: "wisp", Tier: 1})
	err := tu.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "duplicate prefab id wisp")
}

func TestNormalizeClampsTickRate(t *testing.T) {
	tu := Defaults()
	tu.TickRateHz = 0
	tu.Prefabs = []Prefab{{ID: "x"}}
	tu.Normalize()
	assert.Equal(t, 20, tu.TickRateHz)
	assert.Equal(t, 1, tu.Prefabs[0].Tier)
	require.NoError(t, tu.Validate())
}
