// Package round is the round data model and its scaling rules.
package round

import (
	"math"

	"ghostround.io/internal/sim/tuning"
)

type State int

const (
	Idle State = iota
	Playing
	RoundEnded
	Defeat
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Playing:
		return "PLAYING"
	case RoundEnded:
		return "ROUND_ENDED"
	case Defeat:
		return "DEFEAT"
	default:
		return "UNKNOWN"
	}
}

func ParseState(s string) (State, bool) {
	for _, st := range []State{Idle, Playing, RoundEnded, Defeat} {
		if st.String() == s {
			return st, true
		}
	}
	return Idle, false
}

// Scaling derives per-round targets from the configured base and increments.
type Scaling struct {
	BaseThreshold       int
	ThresholdPerRound   int
	BaseTimeSeconds     float64
	TimePerRoundSeconds float64
	BaseGhosts          int
	GhostsPerRound      int
}

func ScalingFrom(t tuning.Round) Scaling {
	return Scaling{
		BaseThreshold:       t.BaseThreshold,
		ThresholdPerRound:   t.ThresholdPerRound,
		BaseTimeSeconds:     t.BaseTimeSeconds,
		TimePerRoundSeconds: t.TimePerRoundSeconds,
		BaseGhosts:          t.BaseGhosts,
		GhostsPerRound:      t.GhostsPerRound,
	}
}

func (s Scaling) Threshold(n int) int {
	if n < 1 {
		n = 1
	}
	return s.BaseThreshold + s.ThresholdPerRound*(n-1)
}

func (s Scaling) TimeLimit(n int) float64 {
	if n < 1 {
		n = 1
	}
	return s.BaseTimeSeconds + s.TimePerRoundSeconds*float64(n-1)
}

func (s Scaling) GhostCount(n int) int {
	if n < 1 {
		n = 1
	}
	c := s.BaseGhosts + s.GhostsPerRound*(n-1)
	if c < 0 {
		return 0
	}
	return c
}

// Var names one replicated round field.
type Var int

const (
	VarNumber Var = iota
	VarState
	VarCollected
	VarThreshold
	VarTimeRemaining
	numVars
)

// Round is owned by the coordinator. Every setter bumps the version of the
// field it touches so replicas can apply fields independently.
type Round struct {
	number        int
	state         State
	collected     int
	threshold     int
	timeRemaining float64

	versions [numVars]uint64
	clock    uint64
}

func New(s Scaling) *Round {
	r := &Round{number: 1, state: Idle}
	r.threshold = s.Threshold(1)
	r.timeRemaining = s.TimeLimit(1)
	return r
}

func (r *Round) Number() int            { return r.number }
func (r *Round) State() State           { return r.state }
func (r *Round) Collected() int         { return r.collected }
func (r *Round) Threshold() int         { return r.threshold }
func (r *Round) TimeRemaining() float64 { return r.timeRemaining }
func (r *Round) Version(v Var) uint64   { return r.versions[v] }

func (r *Round) bump(v Var) {
	r.clock++
	r.versions[v] = r.clock
}

func (r *Round) SetNumber(n int) {
	if n < 1 {
		n = 1
	}
	if n == r.number {
		return
	}
	r.number = n
	r.bump(VarNumber)
}

// SetState reports whether the state actually changed.
func (r *Round) SetState(s State) bool {
	if s == r.state {
		return false
	}
	r.state = s
	r.bump(VarState)
	return true
}

func (r *Round) SetCollected(c int) {
	if c < 0 {
		c = 0
	}
	if c == r.collected {
		return
	}
	r.collected = c
	r.bump(VarCollected)
}

func (r *Round) SetThreshold(t int) {
	if t == r.threshold {
		return
	}
	r.threshold = t
	r.bump(VarThreshold)
}

func (r *Round) SetTimeRemaining(t float64) {
	t = math.Max(0, t)
	if t == r.timeRemaining {
		return
	}
	r.timeRemaining = t
	r.bump(VarTimeRemaining)
}

// Rescale recomputes threshold and time limit for the current number.
func (r *Round) Rescale(s Scaling) {
	r.SetThreshold(s.Threshold(r.number))
	r.SetTimeRemaining(s.TimeLimit(r.number))
}

// Restore overwrites every field, e.g. from a snapshot. Versions restart.
func (r *Round) Restore(number int, st State, collected, threshold int, timeRemaining float64) {
	r.number = number
	r.state = st
	r.collected = collected
	r.threshold = threshold
	r.timeRemaining = timeRemaining
	for v := Var(0); v < numVars; v++ {
		r.bump(v)
	}
}
