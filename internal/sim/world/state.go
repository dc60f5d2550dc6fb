package world

import (
	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/tuning"
)

func (w *World) roundSnapshot() protocol.RoundSnapshot {
	r := w.round
	return protocol.RoundSnapshot{
		Number:        protocol.Versioned[int]{V: r.Version(round.VarNumber), Value: r.Number()},
		State:         protocol.Versioned[string]{V: r.Version(round.VarState), Value: r.State().String()},
		Collected:     protocol.Versioned[int]{V: r.Version(round.VarCollected), Value: r.Collected()},
		Threshold:     protocol.Versioned[int]{V: r.Version(round.VarThreshold), Value: r.Threshold()},
		TimeRemaining: protocol.Versioned[float64]{V: r.Version(round.VarTimeRemaining), Value: r.TimeRemaining()},
	}
}

func (w *World) buildState(nowTick uint64) protocol.StateMsg {
	m := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		HostID:          w.hostID,
		Round:           w.roundSnapshot(),
		Projectiles:     w.projectileStates(),
		Revives:         w.reviveStates(),
	}

	ps := w.sortedPlayers()
	m.Players = make([]protocol.PlayerState, 0, len(ps))
	for _, p := range ps {
		m.Players = append(m.Players, protocol.PlayerState{
			ID:            p.ID,
			Name:          p.Name,
			Pos:           p.Pos,
			Yaw:           p.Yaw,
			Health:        p.vit.Health(),
			MaxHealth:     p.vit.Max(),
			Incapacitated: p.vit.Incapacitated(),
			Carrying:      p.carrying,
			Host:          p.ID == w.hostID,
		})
	}

	live := w.pop.Live()
	m.Agents = make([]protocol.AgentState, 0, len(live))
	for _, a := range live {
		m.Agents = append(m.Agents, protocol.AgentState{
			ID:        a.ID,
			Prefab:    a.PrefabID,
			Tier:      a.Tier,
			State:     a.State().String(),
			Body:      a.Body().String(),
			Health:    a.Health(),
			MaxHealth: a.MaxHealth(),
			Pos:       a.Pos(),
			Yaw:       a.Yaw(),
			CarrierID: a.CarrierID(),
			TargetID:  a.TargetID(),
		})
	}

	if s := w.t.Stations.Console; s != nil {
		m.Console = stationState("console", s, w.consoleActive, w.consoleIn)
	}
	if s := w.t.Stations.Lab; s != nil {
		m.Lab = stationState("lab", s, true, w.labIn)
	}
	return m
}

func stationState(kind string, s *tuning.Station, active bool, occupants []string) *protocol.StationState {
	b := s.Box()
	return &protocol.StationState{
		Kind:     kind,
		Active:   active,
		Min:      b.Min,
		Max:      b.Max,
		Occupant: append([]string(nil), occupants...),
	}
}
