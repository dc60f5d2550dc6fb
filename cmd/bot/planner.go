package main

import (
	"math"
	"math/rand"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
	"ghostround.io/internal/sim/geom"
)

// stepPerTick is how far the bot asks to move per elapsed tick. The server
// clamps anything faster.
const stepPerTick = 0.25

// planner picks at most one request per decision from the replica alone.
type planner struct {
	self   string
	params protocol.WorldParams
	rng    *rand.Rand
	every  uint64

	acted    bool
	lastTick uint64
	wander   geom.Vec3
}

func newPlanner(self string, params protocol.WorldParams, rng *rand.Rand, every uint64) *planner {
	if every == 0 {
		every = 1
	}
	return &planner{self: self, params: params, rng: rng, every: every}
}

func (p *planner) next(r *replication.Replica) []protocol.ReqMsg {
	tick := r.Tick()
	if p.acted && tick < p.lastTick+p.every {
		return nil
	}
	self, ok := r.Player(p.self)
	if !ok {
		return nil
	}
	req, ok := p.decide(r, self)
	if !ok {
		return nil
	}
	p.acted = true
	p.lastTick = tick
	return []protocol.ReqMsg{req}
}

func (p *planner) decide(r *replication.Replica, self protocol.PlayerState) (protocol.ReqMsg, bool) {
	state := r.Round().State
	if state != "PLAYING" {
		if r.HostID() != p.self {
			return protocol.ReqMsg{}, false
		}
		switch state {
		case "IDLE":
			return protocol.NewReq(protocol.KindRequestStartRound), true
		case "ROUND_ENDED":
			return protocol.NewReq(protocol.KindRequestAdvanceRound), true
		case "DEFEAT":
			return protocol.NewReq(protocol.KindRequestRestart), true
		}
		return protocol.ReqMsg{}, false
	}
	if self.Incapacitated {
		return protocol.ReqMsg{}, false
	}
	for _, h := range r.Revives() {
		if h.ReviverID == p.self {
			// Hold in progress; stay put.
			return protocol.ReqMsg{}, false
		}
	}

	for _, o := range r.Players() {
		if o.ID != p.self && o.Incapacitated && geom.Dist(o.Pos, self.Pos) <= p.params.ReviveRange {
			req := protocol.NewReq(protocol.KindRequestRevive)
			req.TargetID = o.ID
			return req, true
		}
	}

	if self.Carrying != "" {
		lab := r.Lab()
		if lab == nil {
			req := protocol.NewReq(protocol.KindRequestDrop)
			req.AgentID = self.Carrying
			return req, true
		}
		box := geom.Box{Min: lab.Min, Max: lab.Max}
		if box.Contains(self.Pos) {
			req := protocol.NewReq(protocol.KindRequestConvert)
			req.AgentID = self.Carrying
			return req, true
		}
		return p.moveTowards(self, box.Center()), true
	}

	var downed, free *protocol.AgentState
	downedDist, freeDist := math.Inf(1), math.Inf(1)
	agents := r.Agents()
	for i := range agents {
		a := &agents[i]
		d := geom.Dist(a.Pos, self.Pos)
		switch a.State {
		case "INCAPACITATED":
			if a.CarrierID == "" && d < downedDist {
				downed, downedDist = a, d
			}
		case "CAPTURED":
		default:
			if d < freeDist {
				free, freeDist = a, d
			}
		}
	}
	if downed != nil {
		if downedDist <= p.params.PickupRange {
			req := protocol.NewReq(protocol.KindRequestPickup)
			req.RequesterID = p.self
			req.AgentID = downed.ID
			return req, true
		}
		return p.moveTowards(self, downed.Pos), true
	}
	if free != nil && p.rng.Float64() < 0.7 {
		// Aim at the middle of the hit volume.
		dir := free.Pos.Add(geom.V(0, 1, 0)).Sub(self.Pos)
		if dir.Len() > 1e-6 {
			req := protocol.NewReq(protocol.KindThrow)
			d := dir.Normalize()
			req.Dir = &d
			return req, true
		}
	}

	if geom.DistXZ(self.Pos, p.wander) < 1 || p.wander == (geom.Vec3{}) {
		p.wander = geom.V(p.rng.Float64()*20-10, 0, p.rng.Float64()*20-10)
	}
	return p.moveTowards(self, p.wander), true
}

func (p *planner) moveTowards(self protocol.PlayerState, target geom.Vec3) protocol.ReqMsg {
	next, _ := geom.MoveTowards(self.Pos, target, stepPerTick*float64(p.every))
	req := protocol.NewReq(protocol.KindMove)
	req.Pos = &next
	req.Yaw = math.Atan2(target.X-self.Pos.X, target.Z-self.Pos.Z)
	return req
}
