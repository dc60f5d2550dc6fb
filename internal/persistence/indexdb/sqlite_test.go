package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/tuning"
	"ghostround.io/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	require.NoError(t, s.WriteTick(world.TickLogEntry{Tick: 2}))
	require.NoError(t, s.WriteRound(world.RoundLogEntry{Number: 1}))
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	assert.Equal(t, uint64(1), st.DropTickTotal)
	assert.Equal(t, uint64(1), st.DropRoundTotal)
	assert.Equal(t, uint64(1), st.DropSnapshotTotal)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 1, st.QueueCapacity)
}

func TestSQLiteIndex_PersistsRoundsTicksAndSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)

	digest, err := s.UpsertTuning(tuning.Defaults())
	require.NoError(t, err)
	assert.Len(t, digest, 64)

	require.NoError(t, s.WriteTick(world.TickLogEntry{
		Tick:     7,
		Digest:   "abc",
		Joins:    []world.RecordedJoin{{PlayerID: "P1", Name: "ana"}},
		Requests: []world.RecordedRequest{{PlayerID: "P1", Req: protocol.NewReq(protocol.KindRequestStartRound)}},
	}))
	require.NoError(t, s.WriteRound(world.RoundLogEntry{WorldID: "arena", Number: 1, Outcome: world.OutcomeVictory, StartTick: 7, EndTick: 50}))
	require.NoError(t, s.WriteRound(world.RoundLogEntry{WorldID: "arena", Number: 2, Outcome: world.OutcomeDefeat, StartTick: 60, EndTick: 90}))
	s.RecordSnapshot("snap/90.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 90, Reason: "defeat"}, Round: snapshot.RoundV1{Number: 2, State: "DEFEAT"}})
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	rounds, err := s.RecentRounds(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 2, rounds[0].Number)
	assert.Equal(t, world.OutcomeDefeat, rounds[0].Outcome)
	assert.Equal(t, uint64(50), rounds[1].EndTick)

	var kind string
	require.NoError(t, s.db.QueryRow(`SELECT kind FROM requests WHERE tick=7 AND seq=0`).Scan(&kind))
	assert.Equal(t, string(protocol.KindRequestStartRound), kind)

	var name string
	require.NoError(t, s.db.QueryRow(`SELECT name FROM joins WHERE tick=7 AND player_id='P1'`).Scan(&name))
	assert.Equal(t, "ana", name)

	var reason string
	require.NoError(t, s.db.QueryRow(`SELECT reason FROM snapshots WHERE tick=90`).Scan(&reason))
	assert.Equal(t, "defeat", reason)

	var stored string
	require.NoError(t, s.db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&stored))
	assert.Equal(t, digest, stored)
}

func TestSQLiteIndex_NilAndClosedAreNoops(t *testing.T) {
	var s *SQLiteIndex
	assert.NoError(t, s.WriteTick(world.TickLogEntry{}))
	assert.NoError(t, s.WriteRound(world.RoundLogEntry{}))
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	assert.Equal(t, Stats{}, s.Stats())

	_, err := OpenSQLite("")
	assert.Error(t, err)
}
