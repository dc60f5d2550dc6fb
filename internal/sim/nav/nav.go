// Package nav is the navigation capability consumed by adversary agents.
// Path planning itself is out of scope; Plane is a bounded flat arena good
// enough for a server without level geometry and for tests.
package nav

import (
	"math"
	"math/rand"

	"ghostround.io/internal/sim/geom"
)

type Navigator interface {
	// Snap projects p onto the walkable surface. It fails when the nearest
	// walkable point is further than maxDist away.
	Snap(p geom.Vec3, maxDist float64) (geom.Vec3, bool)
	// RandomPoint samples a walkable point within radius of origin.
	RandomPoint(origin geom.Vec3, radius float64, rng *rand.Rand) (geom.Vec3, bool)
	// Advance moves from towards to at speed for dt seconds, stopping short of
	// to by stop. arrived reports that the stopping distance was reached.
	Advance(from, to geom.Vec3, speed, stop, dt float64) (next geom.Vec3, arrived bool)
}

// Plane is a walkable rectangle at a fixed height.
type Plane struct {
	Min, Max geom.Vec3
	Height   float64
	// Holes are rejected by Snap and RandomPoint.
	Holes []geom.Box
}

func NewPlane(halfExtent float64) *Plane {
	return &Plane{
		Min: geom.V(-halfExtent, 0, -halfExtent),
		Max: geom.V(halfExtent, 0, halfExtent),
	}
}

func (p *Plane) inHole(v geom.Vec3) bool {
	for _, h := range p.Holes {
		if h.Contains(geom.V(v.X, h.Center().Y, v.Z)) {
			return true
		}
	}
	return false
}

func (p *Plane) clamp(v geom.Vec3) geom.Vec3 {
	return geom.V(
		math.Max(p.Min.X, math.Min(p.Max.X, v.X)),
		p.Height,
		math.Max(p.Min.Z, math.Min(p.Max.Z, v.Z)),
	)
}

func (p *Plane) Snap(v geom.Vec3, maxDist float64) (geom.Vec3, bool) {
	if !v.Finite() {
		return geom.Vec3{}, false
	}
	s := p.clamp(v)
	if p.inHole(s) {
		return geom.Vec3{}, false
	}
	if geom.Dist(s, v) > maxDist {
		return geom.Vec3{}, false
	}
	return s, true
}

func (p *Plane) RandomPoint(origin geom.Vec3, radius float64, rng *rand.Rand) (geom.Vec3, bool) {
	if rng == nil || radius <= 0 {
		return geom.Vec3{}, false
	}
	for i := 0; i < 8; i++ {
		ang := rng.Float64() * 2 * math.Pi
		r := radius * math.Sqrt(rng.Float64())
		c := geom.V(origin.X+r*math.Cos(ang), p.Height, origin.Z+r*math.Sin(ang))
		if c.X < p.Min.X || c.X > p.Max.X || c.Z < p.Min.Z || c.Z > p.Max.Z {
			continue
		}
		if p.inHole(c) {
			continue
		}
		return c, true
	}
	return geom.Vec3{}, false
}

func (p *Plane) Advance(from, to geom.Vec3, speed, stop, dt float64) (geom.Vec3, bool) {
	to = p.clamp(to)
	d := geom.DistXZ(from, to)
	if d <= stop {
		return from, true
	}
	next, _ := geom.MoveTowards(from, to, math.Min(speed*dt, d-stop))
	next = p.clamp(next)
	return next, geom.DistXZ(next, to) <= stop+1e-9
}
