package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/tuning"
)

func TestStartRoundFromLobby(t *testing.T) {
	h := newHarness(t, nil)
	h.start(1)

	assert.Equal(t, 1, h.w.round.Number())
	assert.Equal(t, 10, h.w.round.Threshold())
	assert.Equal(t, 120.0, h.w.round.TimeRemaining())
	assert.Len(t, h.events(protocol.EventLeaveLobby), 1)
	states := h.events(protocol.EventRoundState)
	require.Len(t, states, 1)
	assert.Equal(t, "IDLE", states[0].From)
	assert.Equal(t, "PLAYING", states[0].To)
}

func TestAddResourceActivatesConsoleOnce(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 4 }))
	assert.Equal(t, 4, h.w.round.Collected())
	assert.Empty(t, h.events(protocol.EventConsoleActivated))

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 6 }))
	assert.Equal(t, 10, h.w.round.Collected())
	assert.Len(t, h.events(protocol.EventConsoleActivated), 1)
	assert.True(t, h.w.consoleActive)

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 5 }))
	assert.Equal(t, 15, h.w.round.Collected())
	assert.Len(t, h.events(protocol.EventConsoleActivated), 1)
}

func TestAddResourceNegativeIsZero(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = -7 }))
	assert.Equal(t, 0, h.w.round.Collected())
}

func TestAddResourceIgnoredInLobby(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.join(1)

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 3 }))
	assert.Equal(t, 0, h.w.round.Collected())
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrWrongState])
}

func TestConsoleSkippedWithoutStation(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) { tu.Stations.Console = nil })
	ids := h.start(1)

	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 50 }))
	assert.Equal(t, 50, h.w.round.Collected())
	assert.False(t, h.w.consoleActive)
	assert.Empty(t, h.events(protocol.EventConsoleActivated))
}

func TestAllPlayersDownIsDefeat(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(2)
	h.addGhost("G900", geom.V(10, 0, 10))

	h.w.damagePlayer(ids[0], 100)
	assert.True(t, h.w.downed[ids[0]])
	assert.Equal(t, round.Playing, h.w.round.State())

	h.w.damagePlayer(ids[1], 100)
	assert.Len(t, h.w.downed, 2)
	assert.Equal(t, round.Defeat, h.w.round.State())
	assert.Equal(t, 0, h.w.pop.Len())

	assert.Len(t, h.pending(protocol.EventShowDefeatPrompt), 1)
	removed := h.pending(protocol.EventAgentRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "defeat", removed[0].Reason)
}

func TestDefeatAndEndRoundAreIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.start(1)

	assert.True(t, h.w.endRound(true))
	assert.False(t, h.w.endRound(true))
	assert.False(t, h.w.defeat())
	assert.Equal(t, round.RoundEnded, h.w.round.State())
	assert.Equal(t, uint64(1), h.w.stats.Victories)
	assert.Zero(t, h.w.stats.Defeats)
}

func TestRepeatedDefeatIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.start(1)
	h.addGhost("G1", geom.V(5, 0, 5))

	assert.True(t, h.w.defeat())
	assert.False(t, h.w.defeat())
	assert.False(t, h.w.endRound(true))
	assert.Equal(t, round.Defeat, h.w.round.State())
	assert.Equal(t, uint64(1), h.w.stats.Defeats)
	assert.Zero(t, h.w.stats.Victories)

	assert.Len(t, h.pending(protocol.EventShowDefeatPrompt), 1)
	assert.Empty(t, h.pending(protocol.EventShowRoundCompletePrompt))
	removed := h.pending(protocol.EventAgentRemoved)
	require.Len(t, removed, 1)
	assert.Equal(t, "G1", removed[0].AgentID)
}

func TestEmptyRosterNeverDefeats(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(2)

	h.leave(ids...)
	assert.Empty(t, h.w.players)
	assert.Equal(t, round.Playing, h.w.round.State())

	h.w.evaluateDefeat()
	h.w.countdown(1)
	assert.Equal(t, round.Playing, h.w.round.State())
}

func TestLeaveOfLastStandingPlayerIsDefeat(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(2)

	h.w.damagePlayer(ids[0], 100)
	require.Equal(t, round.Playing, h.w.round.State())

	h.leave(ids[1])
	assert.Equal(t, round.Defeat, h.w.round.State())
}

func TestAdvanceRoundOnlyFromRoundEnded(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)

	h.step(req(ids[0], protocol.KindRequestAdvanceRound, nil))
	assert.Equal(t, 1, h.w.round.Number())
	assert.Equal(t, round.Playing, h.w.round.State())
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrWrongState])

	h.step(req(ids[0], protocol.KindRequestEndRound, nil))
	require.Equal(t, round.RoundEnded, h.w.round.State())

	h.step(req(ids[0], protocol.KindRequestAdvanceRound, nil))
	assert.Equal(t, 2, h.w.round.Number())
	assert.Equal(t, round.Playing, h.w.round.State())
	assert.Equal(t, 20, h.w.round.Threshold())
	assert.Equal(t, 150.0, h.w.round.TimeRemaining())
	assert.Equal(t, 0, h.w.round.Collected())
}

func TestHostOnlyRequests(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.join(2)
	require.Equal(t, ids[0], h.w.hostID)

	h.step(req(ids[1], protocol.KindRequestStartRound, nil))
	assert.Equal(t, round.Idle, h.w.round.State())
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrNoPermission])

	h.step(req(ids[0], protocol.KindRequestStartRound, nil))
	assert.Equal(t, round.Playing, h.w.round.State())

	h.step(req(ids[1], protocol.KindRequestRestart, nil))
	h.step(req(ids[1], protocol.KindRequestReturnToIdle, nil))
	assert.Equal(t, round.Playing, h.w.round.State())
	assert.Equal(t, uint64(3), h.w.stats.Ignored[protocol.ErrNoPermission])
}

func TestReturnToIdleNotFromDefeat(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)

	h.w.damagePlayer(ids[0], 100)
	require.Equal(t, round.Defeat, h.w.round.State())

	h.step(req(ids[0], protocol.KindRequestReturnToIdle, nil))
	assert.Equal(t, round.Defeat, h.w.round.State())

	h.step(req(ids[0], protocol.KindRequestRestart, nil))
	assert.Equal(t, round.Playing, h.w.round.State())
	assert.Equal(t, 1, h.w.round.Number())
	assert.Empty(t, h.w.downed)
	assert.Equal(t, 100.0, h.player(ids[0]).vit.Health())
}

func TestReturnToIdleFromRoundEnded(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)
	h.step(req(ids[0], protocol.KindRequestEndRound, nil))
	h.step(req(ids[0], protocol.KindRequestAdvanceRound, nil))
	require.Equal(t, 2, h.w.round.Number())

	h.step(req(ids[0], protocol.KindRequestReturnToIdle, nil))
	assert.Equal(t, round.Idle, h.w.round.State())
	assert.Equal(t, 1, h.w.round.Number())
	assert.Len(t, h.events(protocol.EventEnterLobby), 1)
	assert.Zero(t, h.w.countdownAt)
}

func TestCountdownExpiryEndsRound(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) { tu.Round.BaseTimeSeconds = 2 })
	h.start(1)
	require.Equal(t, uint64(20), h.w.countdownTicks)

	h.steps(20)
	assert.Equal(t, 1.0, h.w.round.TimeRemaining())
	assert.Equal(t, round.Playing, h.w.round.State())

	h.steps(20)
	assert.Equal(t, round.RoundEnded, h.w.round.State())
	assert.Len(t, h.events(protocol.EventShowRoundCompletePrompt), 1)
	assert.Zero(t, h.w.countdownAt)

	h.steps(40)
	assert.Equal(t, 0.0, h.w.round.TimeRemaining())
}

func TestCountdownStepPrefersDefeat(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)

	// Down without the usual evaluation, as a stale defeat set would be.
	h.player(ids[0]).vit.TakeDamage(100)
	h.w.downed[ids[0]] = true
	h.w.round.SetTimeRemaining(0.5)

	h.w.countdown(1)
	assert.Equal(t, round.Defeat, h.w.round.State())
}

func TestRoundLogger(t *testing.T) {
	h := newHarness(t, nil)
	var got []RoundLogEntry
	h.w.SetRoundLogger(roundLoggerFunc(func(e RoundLogEntry) error {
		got = append(got, e)
		return nil
	}))
	ids := h.start(1)
	h.step(req(ids[0], protocol.KindAddResource, func(m *protocol.ReqMsg) { m.Amount = 3 }))
	h.step(req(ids[0], protocol.KindRequestEndRound, nil))

	require.Len(t, got, 1)
	assert.Equal(t, OutcomeVictory, got[0].Outcome)
	assert.Equal(t, 3, got[0].Collected)
	assert.Equal(t, "test", got[0].WorldID)
}

type roundLoggerFunc func(RoundLogEntry) error

func (f roundLoggerFunc) WriteRound(e RoundLogEntry) error { return f(e) }
