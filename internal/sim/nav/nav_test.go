package nav

import (
	"math/rand"
	"testing"

	"ghostround.io/internal/sim/geom"
)

func TestPlaneSnap(t *testing.T) {
	p := NewPlane(10)
	got, ok := p.Snap(geom.V(3, 2, 3), 5)
	if !ok || got.Y != 0 || got.X != 3 {
		t.Fatalf("snap: got %+v ok=%v", got, ok)
	}
	if _, ok := p.Snap(geom.V(30, 0, 0), 5); ok {
		t.Fatalf("expected snap failure far outside the arena")
	}
	p.Holes = []geom.Box{geom.BoxAround(geom.V(0, 0, 0), geom.V(1, 1, 1))}
	if _, ok := p.Snap(geom.V(0, 0, 0), 5); ok {
		t.Fatalf("expected snap failure inside a hole")
	}
}

func TestPlaneAdvanceStopsShort(t *testing.T) {
	p := NewPlane(50)
	pos := geom.V(0, 0, 0)
	arrived := false
	for i := 0; i < 100 && !arrived; i++ {
		pos, arrived = p.Advance(pos, geom.V(10, 0, 0), 4, 1.2, 0.05)
	}
	if !arrived {
		t.Fatalf("never arrived")
	}
	if d := geom.DistXZ(pos, geom.V(10, 0, 0)); d < 1.2-1e-6 || d > 1.3 {
		t.Fatalf("stopping distance: got %v", d)
	}
}

func TestPlaneRandomPointWithinRadius(t *testing.T) {
	p := NewPlane(50)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		v, ok := p.RandomPoint(geom.V(5, 0, 5), 10, rng)
		if !ok {
			t.Fatalf("sample %d failed", i)
		}
		if geom.DistXZ(v, geom.V(5, 0, 5)) > 10 {
			t.Fatalf("sample outside radius: %+v", v)
		}
	}
}
