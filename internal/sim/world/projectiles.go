package world

import (
	"math"
	"sort"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/sim/geom"
)

// ghostHeight is the vertical extent of an agent's hit volume above its pose.
const ghostHeight = 2.0

type projectile struct {
	ID        string
	OwnerID   string
	Pos       geom.Vec3
	Vel       geom.Vec3
	ExpiresAt uint64
}

// throw replaces the owner's live projectile with a new one along dir.
func (w *World) throw(p *player, dir geom.Vec3) {
	w.removeProjectileOf(p.ID)
	life := uint64(math.Ceil(w.t.Projectile.LifetimeSeconds * float64(w.t.TickRateHz)))
	if life == 0 {
		life = 1
	}
	b := &projectile{
		ID:        w.newProjectileID(),
		OwnerID:   p.ID,
		Pos:       p.Pos.Add(geom.V(0, w.t.Projectile.MuzzleHeight, 0)),
		Vel:       dir.Normalize().Scale(w.t.Projectile.Speed),
		ExpiresAt: w.nowTick + life,
	}
	w.projectiles[p.ID] = b
}

func (w *World) removeProjectileOf(ownerID string) { delete(w.projectiles, ownerID) }
func (w *World) clearProjectiles()                 { w.projectiles = map[string]*projectile{} }

func (w *World) sortedProjectiles() []*projectile {
	out := make([]*projectile, 0, len(w.projectiles))
	for _, b := range w.projectiles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) systemProjectiles() {
	for _, b := range w.sortedProjectiles() {
		if w.nowTick >= b.ExpiresAt {
			w.removeProjectileOf(b.OwnerID)
			continue
		}
		b.Pos = b.Pos.Add(b.Vel.Scale(w.dt))
		for _, a := range w.pop.Live() {
			if !a.Free() {
				continue
			}
			ap := a.Pos()
			if geom.DistXZ(ap, b.Pos) > w.t.Projectile.HitRadius {
				continue
			}
			if b.Pos.Y < ap.Y-w.t.Projectile.HitRadius || b.Pos.Y > ap.Y+ghostHeight+w.t.Projectile.HitRadius {
				continue
			}
			w.removeProjectileOf(b.OwnerID)
			w.emit(protocol.Event{Type: protocol.EventProjectileHit, PlayerID: b.OwnerID, AgentID: a.ID, Amount: w.t.Projectile.Damage})
			w.damageAgent(a, w.t.Projectile.Damage, b.OwnerID)
			break
		}
	}
}

func (w *World) projectileStates() []protocol.ProjectileState {
	bs := w.sortedProjectiles()
	if len(bs) == 0 {
		return nil
	}
	out := make([]protocol.ProjectileState, 0, len(bs))
	for _, b := range bs {
		out = append(out, protocol.ProjectileState{ID: b.ID, OwnerID: b.OwnerID, Pos: b.Pos, Vel: b.Vel})
	}
	return out
}
