package world

import (
	"math/rand"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/nav"
	"ghostround.io/internal/sim/round"
)

// agentEnv is the world as seen by an agent during its tick.
type agentEnv struct{ w *World }

func (e agentEnv) Now() float64       { return e.w.now() }
func (e agentEnv) Nav() nav.Navigator { return e.w.nav }
func (e agentEnv) Rand() *rand.Rand   { return e.w.rng }

func (e agentEnv) Targets() []ghost.Target {
	ps := e.w.sortedPlayers()
	out := make([]ghost.Target, 0, len(ps))
	for _, p := range ps {
		out = append(out, ghost.Target{ID: p.ID, Pos: p.Pos, Down: p.vit.Incapacitated()})
	}
	return out
}

func (e agentEnv) DamagePlayer(id string, amount float64) { e.w.damagePlayer(id, amount) }

func (w *World) systemAgents() {
	if w.round.State() != round.Playing {
		return
	}
	env := agentEnv{w}
	for _, a := range w.pop.Live() {
		if w.round.State() != round.Playing {
			// An attack this tick ended the round.
			return
		}
		a.Tick(env, w.dt)
		w.flushTransitions(a)
	}
}

// flushTransitions turns pending agent transitions into events.
func (w *World) flushTransitions(a *ghost.Agent) {
	for _, tr := range a.DrainTransitions() {
		w.emit(protocol.Event{Type: protocol.EventAgentState, AgentID: a.ID, From: tr.From.String(), To: tr.To.String()})
	}
}

func (w *World) damageAgent(a *ghost.Agent, amount float64, by string) bool {
	applied, _ := a.TakeDamage(amount)
	if !applied {
		return false
	}
	w.emit(protocol.Event{Type: protocol.EventAgentHealth, AgentID: a.ID, PlayerID: by, Amount: amount, Health: a.Health()})
	w.flushTransitions(a)
	return true
}

// despawnAll removes every live agent and every transient round entity.
func (w *World) despawnAll(reason string) {
	for _, p := range w.players {
		p.carrying = ""
	}
	for _, id := range w.pop.DespawnAll() {
		w.emit(protocol.Event{Type: protocol.EventAgentRemoved, AgentID: id, Reason: reason})
	}
	w.cancelAllRevives(reason)
	w.clearProjectiles()
}

func (w *World) pickup(p *player, a *ghost.Agent) bool {
	if !a.Pickup(p.ID) {
		return false
	}
	p.carrying = a.ID
	a.Follow(p.Pos, p.Yaw)
	w.flushTransitions(a)
	return true
}

// dropCarried releases whatever p carries at p's position.
func (w *World) dropCarried(p *player) {
	if p.carrying == "" {
		return
	}
	a := w.pop.Get(p.carrying)
	p.carrying = ""
	if a == nil {
		return
	}
	a.Follow(p.Pos, p.Yaw)
	if a.Drop() {
		w.flushTransitions(a)
	}
}

// convert consumes a captured agent and credits its tier.
func (w *World) convert(a *ghost.Agent, by string) bool {
	carrier := a.CarrierID()
	tier, ok := a.Convert()
	if !ok {
		return false
	}
	if p := w.players[carrier]; p != nil && p.carrying == a.ID {
		p.carrying = ""
	}
	w.pop.Remove(a.ID)
	w.roundConverted++
	w.stats.Converts++
	w.emit(protocol.Event{Type: protocol.EventAgentConverted, AgentID: a.ID, PlayerID: by, Tier: tier})
	w.emit(protocol.Event{Type: protocol.EventAgentRemoved, AgentID: a.ID, Reason: "converted"})
	w.addResource(tier)
	return true
}

func (w *World) systemCarry() {
	if w.round.State() != round.Playing {
		return
	}
	lab, hasLab := w.labBox()
	for _, p := range w.sortedPlayers() {
		if p.carrying == "" {
			continue
		}
		a := w.pop.Get(p.carrying)
		if a == nil || a.State() != ghost.Captured || a.CarrierID() != p.ID {
			p.carrying = ""
			continue
		}
		a.Follow(p.Pos, p.Yaw)
		if hasLab && w.t.Stations.LabAutoConvert && lab.Contains(a.Pos()) {
			w.convert(a, p.ID)
		}
	}
}

func (w *World) labBox() (geom.Box, bool) {
	if w.t.Stations.Lab == nil {
		return geom.Box{}, false
	}
	return w.t.Stations.Lab.Box(), true
}

func (w *World) consoleBox() (geom.Box, bool) {
	if w.t.Stations.Console == nil {
		return geom.Box{}, false
	}
	return w.t.Stations.Console.Box(), true
}

// systemStations refreshes the published occupancy sets.
func (w *World) systemStations() {
	w.consoleIn = w.consoleIn[:0]
	w.labIn = w.labIn[:0]
	cb, hasConsole := w.consoleBox()
	lb, hasLab := w.labBox()
	for _, p := range w.sortedPlayers() {
		if hasConsole && cb.Contains(p.Pos) {
			w.consoleIn = append(w.consoleIn, p.ID)
		}
		if hasLab && lb.Contains(p.Pos) {
			w.labIn = append(w.labIn, p.ID)
		}
	}
}
