package world

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/tuning"
)

// quietTuning spawns no ghosts and keeps hand-placed ones still.
func quietTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Round.BaseGhosts = 0
	t.Round.GhostsPerRound = 0
	t.Ghost.WanderEnabled = false
	t.Ghost.DetectionRange = 0
	t.SnapshotEveryTicks = 0
	return t
}

type harness struct {
	t   *testing.T
	w   *World
	rec *replication.Recorder
}

func newHarness(t *testing.T, mutate func(*tuning.Tuning)) *harness {
	t.Helper()
	tu := quietTuning()
	if mutate != nil {
		mutate(&tu)
	}
	w, err := New(WorldConfig{ID: "test", Seed: 42}, tu, nil)
	require.NoError(t, err)
	rec := replication.NewRecorder()
	w.AddObserver(rec)
	return &harness{t: t, w: w, rec: rec}
}

// join connects players named P1..Pn in one tick.
func (h *harness) join(n int) []string {
	h.t.Helper()
	joins := make([]JoinRequest, 0, n)
	resps := make([]chan JoinResponse, 0, n)
	for i := 0; i < n; i++ {
		ch := make(chan JoinResponse, 1)
		joins = append(joins, JoinRequest{Resp: ch})
		resps = append(resps, ch)
	}
	h.w.StepOnce(joins, nil, nil)
	ids := make([]string, 0, n)
	for _, ch := range resps {
		ids = append(ids, (<-ch).PlayerID)
	}
	return ids
}

func (h *harness) step(reqs ...RequestEnvelope) {
	h.w.StepOnce(nil, nil, reqs)
}

func (h *harness) steps(n int) {
	for i := 0; i < n; i++ {
		h.step()
	}
}

func (h *harness) leave(ids ...string) {
	h.w.StepOnce(nil, ids, nil)
}

// start joins n players and has the host start round 1.
func (h *harness) start(n int) []string {
	h.t.Helper()
	ids := h.join(n)
	h.step(req(ids[0], protocol.KindRequestStartRound, nil))
	require.Equal(h.t, round.Playing, h.w.round.State())
	return ids
}

func (h *harness) player(id string) *player {
	h.t.Helper()
	p := h.w.players[id]
	require.NotNil(h.t, p, "player %s", id)
	return p
}

func (h *harness) addGhost(id string, pos geom.Vec3) *ghost.Agent {
	a := ghost.New(id, tuning.Prefab{ID: "wisp", Tier: 1}, h.w.pop.ParamsFor("wisp"), pos, nil)
	h.w.pop.Add(a)
	return a
}

func (h *harness) events(typ protocol.EventType) []protocol.Event {
	return h.rec.EventsOfType(typ)
}

// pending returns events emitted outside a step and not yet published.
func (h *harness) pending(typ protocol.EventType) []protocol.Event {
	var out []protocol.Event
	for _, e := range h.w.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func req(from string, kind protocol.RequestKind, fill func(*protocol.ReqMsg)) RequestEnvelope {
	m := protocol.NewReq(kind)
	if fill != nil {
		fill(&m)
	}
	return RequestEnvelope{PlayerID: from, Req: m}
}

func vec(x, y, z float64) *geom.Vec3 {
	v := geom.V(x, y, z)
	return &v
}
