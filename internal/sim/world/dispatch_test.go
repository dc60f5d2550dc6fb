package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/tuning"
)

func damageReq(from, target string, amount float64) RequestEnvelope {
	return req(from, protocol.KindDealDamage, func(m *protocol.ReqMsg) {
		m.TargetID = target
		m.Amount = amount
	})
}

func pickupReq(from, agent string) RequestEnvelope {
	return req(from, protocol.KindRequestPickup, func(m *protocol.ReqMsg) {
		m.AgentID = agent
		m.RequesterID = from
	})
}

func convertReq(from, agent string) RequestEnvelope {
	return req(from, protocol.KindRequestConvert, func(m *protocol.ReqMsg) { m.AgentID = agent })
}

// captured starts a round with one player carrying G1.
func captured(t *testing.T, mutate func(*tuning.Tuning)) (*harness, string, *ghost.Agent) {
	h := newHarness(t, mutate)
	ids := h.start(1)
	a := h.addGhost("G1", geom.V(0, 0, 1))

	h.step(damageReq(ids[0], "G1", 80))
	require.Equal(t, ghost.Incapacitated, a.State())
	h.step(pickupReq(ids[0], "G1"))
	require.Equal(t, ghost.Captured, a.State())
	require.Equal(t, "G1", h.player(ids[0]).carrying)
	return h, ids[0], a
}

func TestDealDamageClampsAndValidates(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)
	a := h.addGhost("G1", geom.V(5, 0, 5))

	h.step(damageReq(ids[0], "G1", 10))
	assert.Equal(t, 90.0, a.Health())

	h.step(damageReq(ids[0], "G1", math.NaN()))
	h.step(damageReq(ids[0], "G1", -5))
	assert.Equal(t, uint64(2), h.w.stats.Ignored[protocol.ErrBadRequest])

	h.step(damageReq(ids[0], "nope", 10))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrInvalidTarget])

	h.step(damageReq(ids[0], "G1", 1e9))
	assert.Equal(t, 0.0, a.Health())
	assert.Equal(t, ghost.Incapacitated, a.State())

	h.step(damageReq(ids[0], "G1", 10))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrStale])
}

func TestPickupRules(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(2)
	far := h.addGhost("G1", geom.V(10, 0, 10))
	near := h.addGhost("G2", geom.V(0, 0, 1))

	h.step(pickupReq(ids[0], "G2"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrStale], "free agents cannot be picked up")

	h.step(damageReq(ids[0], "G1", 100), damageReq(ids[0], "G2", 100))
	require.Equal(t, ghost.Incapacitated, far.State())
	require.Equal(t, ghost.Incapacitated, near.State())

	h.step(pickupReq(ids[0], "G1"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrOutOfRange])

	spoofed := pickupReq(ids[1], "G2")
	spoofed.Req.RequesterID = ids[0]
	h.step(spoofed)
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrNoPermission])

	h.step(pickupReq(ids[0], "G2"))
	assert.Equal(t, ghost.Captured, near.State())
	assert.Equal(t, ids[0], near.CarrierID())

	h.step(pickupReq(ids[1], "G2"))
	assert.Equal(t, uint64(2), h.w.stats.Ignored[protocol.ErrStale])
}

func TestCarriedAgentFollowsAndDrops(t *testing.T) {
	h, id, a := captured(t, nil)
	p := h.player(id)

	p.Pos = geom.V(3, 0, 0)
	h.step()
	assert.InDelta(t, 3, a.Pos().X, 1e-9)
	assert.InDelta(t, 1, a.Pos().Z, 1e-9)

	h.step(req(id, protocol.KindRequestDrop, nil))
	assert.Equal(t, ghost.Incapacitated, a.State())
	assert.Empty(t, a.CarrierID())
	assert.Empty(t, p.carrying)
}

func TestDisconnectDropsCarriedAgent(t *testing.T) {
	h, id, a := captured(t, nil)
	h.join(1)

	h.leave(id)
	assert.Equal(t, ghost.Incapacitated, a.State())
	assert.Empty(t, a.CarrierID())
	assert.NotNil(t, h.w.pop.Get("G1"))
}

func TestConvertRequiresLabOccupancy(t *testing.T) {
	h, id, a := captured(t, func(tu *tuning.Tuning) { tu.Stations.LabAutoConvert = false })

	h.step(convertReq(id, "G1"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrOutOfRange])
	assert.Equal(t, ghost.Captured, a.State())

	h.player(id).Pos = geom.V(0, 0, 8)
	h.step(convertReq(id, "G1"))
	assert.Nil(t, h.w.pop.Get("G1"))
	assert.Empty(t, h.player(id).carrying)
	assert.Equal(t, 1, h.w.round.Collected())

	converted := h.events(protocol.EventAgentConverted)
	require.Len(t, converted, 1)
	assert.Equal(t, 1, converted[0].Tier)

	h.step(convertReq(id, "G1"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrInvalidTarget])
}

func TestConvertNeedsCapturedAgent(t *testing.T) {
	h := newHarness(t, func(tu *tuning.Tuning) { tu.Stations.LabAutoConvert = false })
	ids := h.start(1)
	h.addGhost("G1", geom.V(0, 0, 9))
	h.player(ids[0]).Pos = geom.V(0, 0, 8)

	h.step(convertReq(ids[0], "G1"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrStale])
	assert.Equal(t, 0, h.w.round.Collected())
}

func TestConvertWithoutLab(t *testing.T) {
	h, id, _ := captured(t, func(tu *tuning.Tuning) { tu.Stations.Lab = nil })

	h.step(convertReq(id, "G1"))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrNotConfigured])
}

func TestLabAutoConvert(t *testing.T) {
	h, id, _ := captured(t, nil)

	h.player(id).Pos = geom.V(0, 0, 8)
	h.step()
	assert.Nil(t, h.w.pop.Get("G1"))
	assert.Equal(t, 1, h.w.round.Collected())
	assert.Equal(t, uint64(1), h.w.stats.Converts)
}

func TestProjectileHitsAgent(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)
	a := h.addGhost("G1", geom.V(0, 0, 10))

	h.step(req(ids[0], protocol.KindThrow, func(m *protocol.ReqMsg) { m.Dir = vec(0, 0, 1) }))
	require.Len(t, h.w.projectiles, 1)
	h.steps(15)

	assert.Empty(t, h.w.projectiles)
	assert.Equal(t, 80.0, a.Health())
	hits := h.events(protocol.EventProjectileHit)
	require.Len(t, hits, 1)
	assert.Equal(t, "G1", hits[0].AgentID)
	assert.Equal(t, ids[0], hits[0].PlayerID)
}

func TestProjectileExpiresAndReplaces(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)
	throw := req(ids[0], protocol.KindThrow, func(m *protocol.ReqMsg) { m.Dir = vec(1, 0, 0) })

	h.step(throw)
	first := h.w.projectiles[ids[0]].ID
	h.step(throw)
	require.Len(t, h.w.projectiles, 1)
	assert.NotEqual(t, first, h.w.projectiles[ids[0]].ID)

	h.steps(61)
	assert.Empty(t, h.w.projectiles)

	h.step(req(ids[0], protocol.KindThrow, func(m *protocol.ReqMsg) { m.Dir = vec(0, 0, 0) }))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrBadRequest])
}

func TestMoveIsClamped(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.start(1)
	p := h.player(ids[0])
	require.Equal(t, geom.V(0, 0, 0), p.Pos)

	h.step(req(ids[0], protocol.KindMove, func(m *protocol.ReqMsg) {
		m.Pos = vec(100, 0, 0)
		m.Yaw = 1
	}))
	assert.InDelta(t, 7*h.w.dt+0.5, p.Pos.X, 1e-9)
	assert.Equal(t, 1.0, p.Yaw)

	h.step(req(ids[0], protocol.KindMove, func(m *protocol.ReqMsg) { m.Pos = vec(1, 0, 0) }))
	assert.InDelta(t, 1, p.Pos.X, 1e-9)

	h.step(req(ids[0], protocol.KindMove, nil))
	h.step(req(ids[0], protocol.KindMove, func(m *protocol.ReqMsg) { m.Pos = vec(math.Inf(1), 0, 0) }))
	assert.Equal(t, uint64(2), h.w.stats.Ignored[protocol.ErrBadRequest])
}

func TestUnknownKindAndUnknownSender(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.join(1)

	h.step(req(ids[0], protocol.RequestKind("TELEPORT"), nil))
	h.step(req("P99", protocol.KindAddResource, nil))
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrUnknownKind])
	assert.Equal(t, uint64(1), h.w.stats.Ignored[protocol.ErrNotConnected])
}

func TestHostMigratesOnLeave(t *testing.T) {
	h := newHarness(t, nil)
	ids := h.join(3)
	require.Equal(t, ids[0], h.w.hostID)

	h.leave(ids[0])
	assert.Equal(t, ids[1], h.w.hostID)

	changes := h.events(protocol.EventHostChanged)
	require.Len(t, changes, 2)
	assert.Equal(t, "", changes[0].From)
	assert.Equal(t, ids[0], changes[0].To)
	assert.Equal(t, ids[0], changes[1].From)
	assert.Equal(t, ids[1], changes[1].To)

	h.step(req(ids[1], protocol.KindRequestStartRound, nil))
	assert.Equal(t, uint64(1), h.w.stats.Rounds)
}

func TestJoinWelcome(t *testing.T) {
	h := newHarness(t, nil)
	ch := make(chan JoinResponse, 1)
	h.w.StepOnce([]JoinRequest{{Name: "  ana  ", Resp: ch}}, nil, nil)
	resp := <-ch

	assert.Equal(t, "P1", resp.PlayerID)
	assert.Equal(t, "P1", resp.Welcome.HostID)
	assert.Equal(t, protocol.CodecJSON, resp.Welcome.Codec)
	assert.Equal(t, 20, resp.Welcome.WorldParams.TickRateHz)
	assert.Equal(t, "ana", h.player("P1").Name)
}

func TestNaturalOrder(t *testing.T) {
	ids := []string{"P10", "P2", "P1", "X", "P3"}
	sortNatural(ids)
	assert.Equal(t, []string{"P1", "P2", "P3", "P10", "X"}, ids)
}
