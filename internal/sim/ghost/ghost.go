// Package ghost implements the adversary behavior state machine.
//
// An Agent is driven exclusively by the world loop: Tick advances behavior,
// and the request entry points (TakeDamage, Pickup, Drop, Convert) are
// called by the coordinator after it has validated the requester. Requests
// that do not match the current state are silent no-ops.
package ghost

import (
	"math"
	"math/rand"
	"sort"

	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/nav"
	"ghostround.io/internal/sim/tuning"
)

type State int

const (
	Idle State = iota
	Patrolling
	Chasing
	Attacking
	Incapacitated
	Captured
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Patrolling:
		return "PATROLLING"
	case Chasing:
		return "CHASING"
	case Attacking:
		return "ATTACKING"
	case Incapacitated:
		return "INCAPACITATED"
	case Captured:
		return "CAPTURED"
	default:
		return "UNKNOWN"
	}
}

func ParseState(s string) (State, bool) {
	for st := Idle; st <= Captured; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return Idle, false
}

// Body describes how the agent's pose is driven.
type Body int

const (
	// Steered bodies are moved by navigation.
	Steered Body = iota
	// Falling bodies are collidable and settle onto the ground.
	Falling
	// Carried bodies follow their carrier and are not world obstacles.
	Carried
)

func (b Body) String() string {
	switch b {
	case Steered:
		return "STEERED"
	case Falling:
		return "FALLING"
	case Carried:
		return "CARRIED"
	default:
		return "UNKNOWN"
	}
}

// Target is a connected player as seen by an agent.
type Target struct {
	ID   string
	Pos  geom.Vec3
	Down bool
}

// Env is what an agent needs from the world during a tick.
type Env interface {
	Now() float64
	Nav() nav.Navigator
	Rand() *rand.Rand
	Targets() []Target
	DamagePlayer(id string, amount float64)
}

type Transition struct {
	From State
	To   State
}

type Params struct {
	MaxHealth           float64
	UnconsciousFraction float64
	DetectionRange      float64
	LoseSightRange      float64
	AttackRange         float64
	StoppingDistance    float64
	AttackCooldown      float64
	AttackDamage        float64
	PatrolSpeed         float64
	ChaseSpeed          float64
	WaypointTolerance   float64
	WanderEnabled       bool
	WanderRadius        float64
	WanderInterval      float64
	SnapDistance        float64
	NavRetrySeconds     float64
	FallSpeed           float64
	CarryOffset         geom.Vec3
}

// ParamsFor merges the shared ghost tuning with one prefab's overrides.
func ParamsFor(g tuning.Ghost, p tuning.Prefab) Params {
	maxHealth := g.MaxHealth
	if p.MaxHealth > 0 {
		maxHealth = p.MaxHealth
	}
	patrol := g.PatrolSpeed
	chase := g.ChaseSpeed
	if p.Speed > 0 && g.PatrolSpeed > 0 {
		chase = g.ChaseSpeed * p.Speed / g.PatrolSpeed
		patrol = p.Speed
	}
	stop := g.StoppingFactor * g.AttackRange
	if stop > g.AttackRange-0.05 {
		stop = math.Max(0, g.AttackRange-0.05)
	}
	return Params{
		MaxHealth:           maxHealth,
		UnconsciousFraction: g.UnconsciousFraction,
		DetectionRange:      g.DetectionRange,
		LoseSightRange:      g.DetectionRange * g.LoseSightFactor,
		AttackRange:         g.AttackRange,
		StoppingDistance:    stop,
		AttackCooldown:      g.AttackCooldown,
		AttackDamage:        g.AttackDamage,
		PatrolSpeed:         patrol,
		ChaseSpeed:          chase,
		WaypointTolerance:   g.WaypointTolerance,
		WanderEnabled:       g.WanderEnabled,
		WanderRadius:        g.WanderRadius,
		WanderInterval:      g.WanderInterval,
		SnapDistance:        g.SnapDistance,
		NavRetrySeconds:     g.NavRetrySeconds,
		FallSpeed:           g.FallSpeed,
		CarryOffset:         g.CarryOffset,
	}
}

type Agent struct {
	ID       string
	PrefabID string
	Tier     int

	p      Params
	health float64
	state  State
	body   Body

	pos  geom.Vec3
	yaw  float64
	home geom.Vec3

	route    []geom.Vec3
	waypoint int

	dest         geom.Vec3
	hasDest      bool
	nextWanderAt float64

	onNav        bool
	nextNavRetry float64

	targetID     string
	nextAttackAt float64

	carrierID string
	converted bool

	transitions []Transition
}

func New(id string, prefab tuning.Prefab, p Params, pos geom.Vec3, route []geom.Vec3) *Agent {
	tier := prefab.Tier
	if tier <= 0 {
		tier = 1
	}
	return &Agent{
		ID:       id,
		PrefabID: prefab.ID,
		Tier:     tier,
		p:        p,
		health:   p.MaxHealth,
		state:    Idle,
		body:     Steered,
		pos:      pos,
		home:     pos,
		route:    append([]geom.Vec3(nil), route...),
	}
}

func (a *Agent) State() State       { return a.state }
func (a *Agent) Body() Body         { return a.body }
func (a *Agent) Health() float64    { return a.health }
func (a *Agent) MaxHealth() float64 { return a.p.MaxHealth }
func (a *Agent) Pos() geom.Vec3     { return a.pos }
func (a *Agent) Yaw() float64       { return a.yaw }
func (a *Agent) CarrierID() string  { return a.carrierID }
func (a *Agent) TargetID() string   { return a.targetID }
func (a *Agent) OnNav() bool        { return a.onNav }
func (a *Agent) Converted() bool    { return a.converted }
func (a *Agent) Route() []geom.Vec3 { return a.route }
func (a *Agent) Waypoint() int      { return a.waypoint }
func (a *Agent) Home() geom.Vec3    { return a.home }
func (a *Agent) Params() Params     { return a.p }
func (a *Agent) Free() bool         { return a.state != Incapacitated && a.state != Captured }

func (a *Agent) unconsciousAt() float64 { return a.p.MaxHealth * a.p.UnconsciousFraction }

// DrainTransitions returns and clears the transitions since the last call.
func (a *Agent) DrainTransitions() []Transition {
	out := a.transitions
	a.transitions = nil
	return out
}

func (a *Agent) setState(s State) {
	if s == a.state {
		return
	}
	a.transitions = append(a.transitions, Transition{From: a.state, To: s})
	a.state = s
}

// Spawn places the agent on the navigation surface and starts its behavior.
func (a *Agent) Spawn(env Env) {
	if !a.ensureOnNav(env) {
		a.nextNavRetry = env.Now() + a.p.NavRetrySeconds
		a.setState(Idle)
		return
	}
	a.home = a.pos
	a.beginRoam(env)
}

func (a *Agent) ensureOnNav(env Env) bool {
	if a.onNav {
		return true
	}
	p, ok := env.Nav().Snap(a.pos, a.p.SnapDistance)
	if !ok {
		return false
	}
	a.pos = p
	a.onNav = true
	return true
}

func (a *Agent) canRoam() bool { return len(a.route) > 0 || a.p.WanderEnabled }

// beginRoam enters Patrolling on the route or a wander leg, or Idle when neither is available.
func (a *Agent) beginRoam(env Env) {
	a.targetID = ""
	switch {
	case len(a.route) > 0:
		if a.waypoint >= len(a.route) {
			a.waypoint = 0
		}
		a.dest = a.route[a.waypoint]
		a.hasDest = true
		a.setState(Patrolling)
	case a.p.WanderEnabled:
		a.pickWander(env)
		a.setState(Patrolling)
	default:
		a.hasDest = false
		a.setState(Idle)
	}
}

func (a *Agent) pickWander(env Env) {
	a.nextWanderAt = env.Now() + a.p.WanderInterval
	if p, ok := env.Nav().RandomPoint(a.home, a.p.WanderRadius, env.Rand()); ok {
		a.dest = p
	} else {
		a.dest = a.home
	}
	a.hasDest = true
}

func (a *Agent) Tick(env Env, dt float64) {
	if dt <= 0 || a.converted {
		return
	}
	switch a.state {
	case Idle:
		a.tickIdle(env)
	case Patrolling:
		a.tickPatrol(env, dt)
	case Chasing:
		a.tickChase(env, dt)
	case Attacking:
		a.tickAttack(env)
	case Incapacitated:
		a.tickFall(env, dt)
	case Captured:
		// Pose is driven by Follow.
	}
}

func (a *Agent) tickIdle(env Env) {
	if !a.onNav {
		if env.Now() < a.nextNavRetry {
			return
		}
		if !a.ensureOnNav(env) {
			a.nextNavRetry = env.Now() + a.p.NavRetrySeconds
			return
		}
		a.home = a.pos
		a.beginRoam(env)
		return
	}
	if a.canRoam() && env.Now() >= a.nextWanderAt {
		a.beginRoam(env)
	}
}

func (a *Agent) tickPatrol(env Env, dt float64) {
	if len(a.route) > 0 {
		if geom.DistXZ(a.pos, a.route[a.waypoint]) <= a.p.WaypointTolerance {
			a.waypoint = (a.waypoint + 1) % len(a.route)
		}
		a.dest = a.route[a.waypoint]
		a.hasDest = true
	} else if a.p.WanderEnabled {
		if !a.hasDest || geom.DistXZ(a.pos, a.dest) <= a.p.WaypointTolerance || env.Now() >= a.nextWanderAt {
			a.pickWander(env)
		}
	}
	if a.hasDest {
		a.moveTowards(env, a.dest, a.p.PatrolSpeed, 0, dt)
	}
	if t, ok := a.lookForTarget(env); ok {
		a.targetID = t.ID
		a.setState(Chasing)
	}
}

// lookForTarget picks the nearest standing player within detection range.
func (a *Agent) lookForTarget(env Env) (Target, bool) {
	var best Target
	bestDist := math.Inf(1)
	found := false
	targets := env.Targets()
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	for _, t := range targets {
		if t.Down {
			continue
		}
		d := geom.Dist(a.pos, t.Pos)
		if d > a.p.DetectionRange {
			continue
		}
		if d < bestDist {
			best, bestDist, found = t, d, true
		}
	}
	return best, found
}

func (a *Agent) currentTarget(env Env) (Target, bool) {
	if a.targetID == "" {
		return Target{}, false
	}
	for _, t := range env.Targets() {
		if t.ID == a.targetID {
			if t.Down {
				return Target{}, false
			}
			return t, true
		}
	}
	return Target{}, false
}

func (a *Agent) tickChase(env Env, dt float64) {
	t, ok := a.currentTarget(env)
	if !ok {
		a.beginRoam(env)
		return
	}
	d := geom.Dist(a.pos, t.Pos)
	if d > a.p.LoseSightRange {
		a.beginRoam(env)
		return
	}
	a.moveTowards(env, t.Pos, a.p.ChaseSpeed, a.p.StoppingDistance, dt)
	if geom.Dist(a.pos, t.Pos) <= a.p.AttackRange {
		a.setState(Attacking)
	}
}

func (a *Agent) tickAttack(env Env) {
	t, ok := a.currentTarget(env)
	if !ok {
		a.beginRoam(env)
		return
	}
	if geom.Dist(a.pos, t.Pos) > a.p.AttackRange {
		a.setState(Chasing)
		return
	}
	a.face(t.Pos)
	now := env.Now()
	if now >= a.nextAttackAt {
		env.DamagePlayer(t.ID, a.p.AttackDamage)
		a.nextAttackAt = now + a.p.AttackCooldown
	}
}

func (a *Agent) tickFall(env Env, dt float64) {
	if a.body != Falling {
		return
	}
	ground := a.pos.Y
	if p, ok := env.Nav().Snap(a.pos, math.Inf(1)); ok {
		ground = p.Y
	}
	if a.pos.Y > ground {
		a.pos.Y = math.Max(ground, a.pos.Y-a.p.FallSpeed*dt)
	}
}

func (a *Agent) moveTowards(env Env, to geom.Vec3, speed, stop, dt float64) {
	next, _ := env.Nav().Advance(a.pos, to, speed, stop, dt)
	if geom.DistXZ(next, a.pos) > 1e-9 {
		a.face(next)
	}
	a.pos = next
}

func (a *Agent) face(p geom.Vec3) {
	d := p.Sub(a.pos)
	if d.X == 0 && d.Z == 0 {
		return
	}
	a.yaw = math.Atan2(d.X, d.Z)
}

// TakeDamage applies amount to a free agent. It reports whether health
// changed and whether this hit incapacitated the agent.
func (a *Agent) TakeDamage(amount float64) (applied, incapacitated bool) {
	if !a.Free() || a.converted {
		return false, false
	}
	if amount <= 0 || math.IsNaN(amount) {
		return false, false
	}
	a.health = math.Max(0, a.health-amount)
	if a.health <= a.unconsciousAt() {
		a.incapacitate()
		return true, true
	}
	return true, false
}

func (a *Agent) incapacitate() {
	a.targetID = ""
	a.hasDest = false
	a.onNav = false
	a.body = Falling
	a.setState(Incapacitated)
}

// Pickup attaches the agent to carrierID. Only an incapacitated agent can be picked up.
func (a *Agent) Pickup(carrierID string) bool {
	if a.state != Incapacitated || carrierID == "" || a.converted {
		return false
	}
	a.carrierID = carrierID
	a.body = Carried
	a.setState(Captured)
	return true
}

// Follow places a carried agent at the fixed offset from its carrier.
func (a *Agent) Follow(carrierPos geom.Vec3, carrierYaw float64) {
	if a.state != Captured {
		return
	}
	a.pos = carrierPos.Add(geom.RotateY(a.p.CarryOffset, carrierYaw))
	a.yaw = carrierYaw
}

// Drop releases a captured agent where it is; it falls back to Incapacitated.
func (a *Agent) Drop() bool {
	if a.state != Captured {
		return false
	}
	a.carrierID = ""
	a.body = Falling
	a.setState(Incapacitated)
	return true
}

// Convert consumes a captured agent and returns its tier.
func (a *Agent) Convert() (int, bool) {
	if a.state != Captured || a.converted {
		return 0, false
	}
	a.converted = true
	a.carrierID = ""
	return a.Tier, true
}

// Record is a flat copy of agent state for snapshots.
type Record struct {
	ID        string
	PrefabID  string
	Tier      int
	Health    float64
	State     State
	Body      Body
	Pos       geom.Vec3
	Yaw       float64
	Home      geom.Vec3
	Route     []geom.Vec3
	Waypoint  int
	OnNav     bool
	TargetID  string
	CarrierID string

	Dest         geom.Vec3
	HasDest      bool
	NextWanderAt float64
	NextNavRetry float64
	NextAttackAt float64
}

func (a *Agent) Record() Record {
	return Record{
		ID:        a.ID,
		PrefabID:  a.PrefabID,
		Tier:      a.Tier,
		Health:    a.health,
		State:     a.state,
		Body:      a.body,
		Pos:       a.pos,
		Yaw:       a.yaw,
		Home:      a.home,
		Route:     append([]geom.Vec3(nil), a.route...),
		Waypoint:  a.waypoint,
		OnNav:     a.onNav,
		TargetID:  a.targetID,
		CarrierID: a.carrierID,

		Dest:         a.dest,
		HasDest:      a.hasDest,
		NextWanderAt: a.nextWanderAt,
		NextNavRetry: a.nextNavRetry,
		NextAttackAt: a.nextAttackAt,
	}
}

// Restore rebuilds an agent from a Record without emitting transitions.
func Restore(r Record, p Params) *Agent {
	a := New(r.ID, tuning.Prefab{ID: r.PrefabID, Tier: r.Tier}, p, r.Pos, r.Route)
	a.health = math.Max(0, math.Min(p.MaxHealth, r.Health))
	a.state = r.State
	a.body = r.Body
	a.yaw = r.Yaw
	a.home = r.Home
	if r.Waypoint >= 0 && r.Waypoint < len(a.route) {
		a.waypoint = r.Waypoint
	}
	a.onNav = r.OnNav
	a.targetID = r.TargetID
	a.carrierID = r.CarrierID
	a.dest = r.Dest
	a.hasDest = r.HasDest
	a.nextWanderAt = r.NextWanderAt
	a.nextNavRetry = r.NextNavRetry
	a.nextAttackAt = r.NextAttackAt
	if a.state == Captured && a.carrierID == "" {
		a.state = Incapacitated
		a.body = Falling
	}
	return a
}
