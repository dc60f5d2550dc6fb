package world

import (
	"fmt"

	"ghostround.io/internal/persistence/snapshot"
	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/vitality"
)

// ExportSnapshot captures the state at the end of tick nowTick. Sessions are
// not part of it; restored players come back without a connection.
func (w *World) ExportSnapshot(nowTick uint64, reason string) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Reason:  reason,
		},
		Seed:     w.cfg.Seed,
		TickRate: w.t.TickRateHz,
		Round: snapshot.RoundV1{
			Number:        w.round.Number(),
			State:         w.round.State().String(),
			Collected:     w.round.Collected(),
			Threshold:     w.round.Threshold(),
			TimeRemaining: w.round.TimeRemaining(),
			StartTick:     w.roundStartTick,
			CountdownAt:   w.countdownAt,
		},
		HostID:            w.hostID,
		Console:           w.consoleActive,
		NextPlayerNum:     w.nextPlayerNum,
		NextGhostNum:      w.pop.NextID(),
		NextProjectileNum: w.nextProjectileNum,
		EventSeq:          w.eventSeq,
		Stats: snapshot.StatsV1{
			Accepted:  w.stats.Accepted,
			Ignored:   w.stats.clone().Ignored,
			Rounds:    w.stats.Rounds,
			Victories: w.stats.Victories,
			Defeats:   w.stats.Defeats,
			Converts:  w.stats.Converts,
		},
	}

	for _, p := range w.sortedPlayers() {
		s.Players = append(s.Players, snapshot.PlayerV1{
			ID:        p.ID,
			Name:      p.Name,
			Pos:       vecArr(p.Pos),
			Yaw:       p.Yaw,
			Health:    p.vit.Health(),
			MaxHealth: p.vit.Max(),
			Carrying:  p.carrying,
		})
	}
	for _, a := range w.pop.Live() {
		r := a.Record()
		g := snapshot.GhostV1{
			ID:           r.ID,
			PrefabID:     r.PrefabID,
			Tier:         r.Tier,
			Health:       r.Health,
			State:        r.State.String(),
			Body:         int(r.Body),
			Pos:          vecArr(r.Pos),
			Yaw:          r.Yaw,
			Home:         vecArr(r.Home),
			Waypoint:     r.Waypoint,
			OnNav:        r.OnNav,
			TargetID:     r.TargetID,
			CarrierID:    r.CarrierID,
			Dest:         vecArr(r.Dest),
			HasDest:      r.HasDest,
			NextWanderAt: r.NextWanderAt,
			NextNavRetry: r.NextNavRetry,
			NextAttackAt: r.NextAttackAt,
		}
		for _, wp := range r.Route {
			g.Route = append(g.Route, vecArr(wp))
		}
		s.Ghosts = append(s.Ghosts, g)
	}
	for _, b := range w.sortedProjectiles() {
		s.Projectiles = append(s.Projectiles, snapshot.ProjectileV1{
			ID:        b.ID,
			OwnerID:   b.OwnerID,
			Pos:       vecArr(b.Pos),
			Vel:       vecArr(b.Vel),
			ExpiresAt: b.ExpiresAt,
		})
	}
	for _, h := range w.sortedRevives() {
		s.Revives = append(s.Revives, snapshot.ReviveV1{ReviverID: h.ReviverID, TargetID: h.TargetID, Elapsed: h.Elapsed})
	}
	return s
}

// ImportSnapshot replaces the world state. It must be called before Run and
// on a world without connected sessions. The next step is Header.Tick+1.
// Restored players have no session; replays keep them, a live server calls
// EvictRestoredPlayers.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.TickRate != 0 && s.TickRate != w.t.TickRateHz {
		return fmt.Errorf("snapshot tick rate %d does not match configured %d", s.TickRate, w.t.TickRateHz)
	}
	st, ok := round.ParseState(s.Round.State)
	if !ok {
		return fmt.Errorf("snapshot: bad round state %q", s.Round.State)
	}

	w.cfg.Seed = s.Seed
	if s.Header.WorldID != "" {
		w.cfg.ID = s.Header.WorldID
	}
	w.round.Restore(s.Round.Number, st, s.Round.Collected, s.Round.Threshold, s.Round.TimeRemaining)
	w.roundStartTick = s.Round.StartTick
	w.countdownAt = s.Round.CountdownAt
	w.consoleActive = s.Console

	w.players = map[string]*player{}
	w.downed = map[string]bool{}
	for _, pv := range s.Players {
		maxHealth := pv.MaxHealth
		if maxHealth <= 0 {
			maxHealth = w.t.Player.MaxHealth
		}
		p := &player{
			ID:           pv.ID,
			Name:         pv.Name,
			Pos:          arrVec(pv.Pos),
			Yaw:          pv.Yaw,
			vit:          vitality.New(maxHealth),
			carrying:     pv.Carrying,
			lastMoveTick: s.Header.Tick,
		}
		p.vit.Set(pv.Health)
		w.players[p.ID] = p
		if p.vit.Incapacitated() {
			w.downed[p.ID] = true
		}
	}
	w.hostID = ""
	if _, ok := w.players[s.HostID]; ok {
		w.hostID = s.HostID
	}

	w.pop.DespawnAll()
	for _, g := range s.Ghosts {
		gs, ok := ghost.ParseState(g.State)
		if !ok {
			return fmt.Errorf("snapshot: ghost %s: bad state %q", g.ID, g.State)
		}
		rec := ghost.Record{
			ID:           g.ID,
			PrefabID:     g.PrefabID,
			Tier:         g.Tier,
			Health:       g.Health,
			State:        gs,
			Body:         ghost.Body(g.Body),
			Pos:          arrVec(g.Pos),
			Yaw:          g.Yaw,
			Home:         arrVec(g.Home),
			Waypoint:     g.Waypoint,
			OnNav:        g.OnNav,
			TargetID:     g.TargetID,
			CarrierID:    g.CarrierID,
			Dest:         arrVec(g.Dest),
			HasDest:      g.HasDest,
			NextWanderAt: g.NextWanderAt,
			NextNavRetry: g.NextNavRetry,
			NextAttackAt: g.NextAttackAt,
		}
		for _, wp := range g.Route {
			rec.Route = append(rec.Route, arrVec(wp))
		}
		w.pop.Add(ghost.Restore(rec, w.pop.ParamsFor(g.PrefabID)))
	}
	if s.NextGhostNum > w.pop.NextID() {
		w.pop.SetNextID(s.NextGhostNum)
	}
	// Carry links must agree on both sides.
	for _, p := range w.players {
		if p.carrying == "" {
			continue
		}
		if a := w.pop.Get(p.carrying); a == nil || a.State() != ghost.Captured || a.CarrierID() != p.ID {
			p.carrying = ""
		}
	}

	w.projectiles = map[string]*projectile{}
	for _, b := range s.Projectiles {
		if _, ok := w.players[b.OwnerID]; !ok {
			continue
		}
		w.projectiles[b.OwnerID] = &projectile{ID: b.ID, OwnerID: b.OwnerID, Pos: arrVec(b.Pos), Vel: arrVec(b.Vel), ExpiresAt: b.ExpiresAt}
	}
	w.revives = map[string]*reviveHold{}
	for _, h := range s.Revives {
		if w.players[h.ReviverID] == nil || w.players[h.TargetID] == nil {
			continue
		}
		w.revives[h.ReviverID] = &reviveHold{ReviverID: h.ReviverID, TargetID: h.TargetID, Elapsed: h.Elapsed}
	}

	w.nextPlayerNum = s.NextPlayerNum
	w.nextProjectileNum = s.NextProjectileNum
	w.eventSeq = s.EventSeq

	w.stats = Stats{
		Accepted:  s.Stats.Accepted,
		Ignored:   map[string]uint64{},
		Rounds:    s.Stats.Rounds,
		Victories: s.Stats.Victories,
		Defeats:   s.Stats.Defeats,
		Converts:  s.Stats.Converts,
	}
	for k, v := range s.Stats.Ignored {
		w.stats.Ignored[k] = v
	}

	w.tick.Store(s.Header.Tick + 1)
	w.storeMetrics(s.Header.Tick+1, 0)
	return nil
}

func vecArr(v geom.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }
func arrVec(a [3]float64) geom.Vec3 { return geom.V(a[0], a[1], a[2]) }

// EvictRestoredPlayers schedules every player without a session to leave at
// the start of the next step, so the leaves land in the tick log and host
// migration and defeat follow the normal leave path. It returns the ids
// scheduled. Call it before Run.
func (w *World) EvictRestoredPlayers() []string {
	var ids []string
	for _, id := range w.sortedPlayerIDs() {
		if w.players[id].session == nil {
			ids = append(ids, id)
		}
	}
	w.evictions = append(w.evictions, ids...)
	return ids
}
