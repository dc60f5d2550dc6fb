package geom

import (
	"math"
	"testing"
)

func TestMoveTowards(t *testing.T) {
	p, arrived := MoveTowards(V(0, 0, 0), V(10, 0, 0), 3)
	if arrived || p.X != 3 {
		t.Fatalf("step: got %+v arrived=%v", p, arrived)
	}
	p, arrived = MoveTowards(V(9, 0, 0), V(10, 0, 0), 3)
	if !arrived || p.X != 10 {
		t.Fatalf("arrive: got %+v arrived=%v", p, arrived)
	}
}

func TestRotateYQuarterTurn(t *testing.T) {
	v := RotateY(V(0, 1, 1), math.Pi/2)
	if math.Abs(v.X-1) > 1e-9 || math.Abs(v.Z) > 1e-9 || v.Y != 1 {
		t.Fatalf("got %+v", v)
	}
}

func TestBoxContains(t *testing.T) {
	b := BoxAround(V(5, 0, 5), V(1, 1, 1))
	if !b.Contains(V(5.5, 0.5, 4.5)) {
		t.Fatalf("expected inside")
	}
	if b.Contains(V(6.5, 0, 5)) {
		t.Fatalf("expected outside")
	}
	if b.Empty() {
		t.Fatalf("box should not be empty")
	}
}

func TestClampLen(t *testing.T) {
	v := V(3, 0, 4).ClampLen(2.5)
	if math.Abs(v.Len()-2.5) > 1e-9 {
		t.Fatalf("len: got %v want 2.5", v.Len())
	}
}
