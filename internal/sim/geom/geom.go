// Package geom holds the small amount of vector math the simulation needs.
package geom

import "math"

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }

func (a Vec3) Len() float64 { return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z) }

func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// DistXZ ignores height; ghosts and players share one walkable plane.
func DistXZ(a, b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// ClampLen returns a shortened copy of a when it is longer than max.
func (a Vec3) ClampLen(max float64) Vec3 {
	l := a.Len()
	if l <= max || l == 0 {
		return a
	}
	return a.Scale(max / l)
}

// MoveTowards steps from a towards b by at most step. It reports whether b was reached.
func MoveTowards(a, b Vec3, step float64) (Vec3, bool) {
	d := b.Sub(a)
	l := d.Len()
	if l <= step || l == 0 {
		return b, true
	}
	return a.Add(d.Scale(step / l)), false
}

// RotateY rotates v around the vertical axis by yaw radians.
func RotateY(v Vec3, yaw float64) Vec3 {
	s, c := math.Sincos(yaw)
	return Vec3{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
}

func (a Vec3) Finite() bool {
	return !math.IsNaN(a.X) && !math.IsNaN(a.Y) && !math.IsNaN(a.Z) &&
		!math.IsInf(a.X, 0) && !math.IsInf(a.Y, 0) && !math.IsInf(a.Z, 0)
}

// Box is an axis-aligned trigger volume.
type Box struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

func BoxAround(center, half Vec3) Box {
	return Box{Min: center.Sub(half), Max: center.Add(half)}
}

func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b Box) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

func (b Box) Empty() bool { return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y || b.Max.Z <= b.Min.Z }
