package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
	"ghostround.io/internal/transport/ws"
)

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snaps, 0o755))
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "33.snap.zst", "junk.snap.zst", "500.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644))
	}
	assert.Equal(t, filepath.Join(snaps, "120.snap.zst"), latestSnapshot(dir))
	assert.Equal(t, "", latestSnapshot(t.TempDir()))
}

func TestBuildWorldResumesSnapshot(t *testing.T) {
	src, err := world.New(world.WorldConfig{ID: "arena", Seed: 9}, tuning.Defaults(), nil)
	require.NoError(t, err)
	src.StepOnce([]world.JoinRequest{{Name: "ana"}, {Name: "bo"}}, nil, nil)
	for i := 0; i < 4; i++ {
		src.StepOnce(nil, nil, nil)
	}
	snap := src.ExportSnapshot(4, "manual")
	path := filepath.Join(t.TempDir(), "4.snap.zst")
	require.NoError(t, snapshot.WriteSnapshot(path, snap))

	w, err := buildWorld("arena", 1, tuning.Defaults(), path)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), w.CurrentTick())
	assert.Equal(t, int64(9), w.Seed())

	w.StepOnce(nil, nil, nil)
	assert.Zero(t, w.Metrics().Players, "restored players without a connection are evicted")

	_, err = buildWorld("other", 1, tuning.Defaults(), path)
	assert.ErrorContains(t, err, "world id mismatch")
}

func TestStatsHandler(t *testing.T) {
	w, err := world.New(world.WorldConfig{ID: "arena", Seed: 1}, tuning.Defaults(), nil)
	require.NoError(t, err)
	w.StepOnce(nil, nil, nil)

	srv := httptest.NewServer(statsHandler(w, ws.NewServer(w, nil), nil))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "arena", got.WorldID)
	assert.Equal(t, uint64(1), got.Tick)
	assert.Equal(t, "IDLE", got.World.RoundState)
	assert.Nil(t, got.Index)
}

func TestMetricsHandler(t *testing.T) {
	w, err := world.New(world.WorldConfig{ID: "arena", Seed: 1}, tuning.Defaults(), nil)
	require.NoError(t, err)
	w.StepOnce(nil, nil, nil)

	rec := httptest.NewRecorder()
	metricsHandler(w, ws.NewServer(w, nil))(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ghostround_world_tick{world="arena"} 1`), body)
	assert.Contains(t, body, `ghostround_ws_connected 0`)
}

type countingTickLogger struct{ n int }

func (c *countingTickLogger) WriteTick(world.TickLogEntry) error { c.n++; return nil }

func TestMultiTickLoggerToleratesNil(t *testing.T) {
	a := &countingTickLogger{}
	m := multiTickLogger{a: a}
	require.NoError(t, m.WriteTick(world.TickLogEntry{Tick: 1}))
	require.NoError(t, m.WriteTick(world.TickLogEntry{Tick: 2}))
	assert.Equal(t, 2, a.n)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("GHOSTROUND_TEST_FLAG", "yes")
	assert.True(t, envBool("GHOSTROUND_TEST_FLAG", false))
	t.Setenv("GHOSTROUND_TEST_FLAG", "off")
	assert.False(t, envBool("GHOSTROUND_TEST_FLAG", true))
	t.Setenv("GHOSTROUND_TEST_FLAG", "maybe")
	assert.True(t, envBool("GHOSTROUND_TEST_FLAG", true))
}
