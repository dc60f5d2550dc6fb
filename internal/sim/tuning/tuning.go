package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ghostround.io/internal/sim/geom"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz          int  `yaml:"tick_rate_hz"`
	CountdownIntervalMs int  `yaml:"countdown_interval_ms"`
	SnapshotEveryTicks  int  `yaml:"snapshot_every_ticks"`
	LogRejections       bool `yaml:"log_rejections"`

	ArenaHalfExtent float64 `yaml:"arena_half_extent"`

	Round      Round       `yaml:"round"`
	Ghost      Ghost       `yaml:"ghost"`
	Prefabs    []Prefab    `yaml:"prefabs"`
	Spawns     []geom.Vec3 `yaml:"ghost_spawns"`
	Routes     []Route     `yaml:"routes"`
	Player     Player      `yaml:"player"`
	Revive     Revive      `yaml:"revive"`
	Projectile Projectile  `yaml:"projectile"`
	Stations   Stations    `yaml:"stations"`
	Requests   Requests    `yaml:"requests"`
}

// Round holds the per-round scaling parameters.
type Round struct {
	BaseThreshold       int     `yaml:"base_threshold"`
	ThresholdPerRound   int     `yaml:"threshold_per_round"`
	BaseTimeSeconds     float64 `yaml:"base_time_seconds"`
	TimePerRoundSeconds float64 `yaml:"time_per_round_seconds"`
	BaseGhosts          int     `yaml:"base_ghosts"`
	GhostsPerRound      int     `yaml:"ghosts_per_round"`
}

// Ghost holds behavior parameters shared by every prefab.
type Ghost struct {
	MaxHealth           float64   `yaml:"max_health"`
	UnconsciousFraction float64   `yaml:"unconscious_fraction"`
	DetectionRange      float64   `yaml:"detection_range"`
	LoseSightFactor     float64   `yaml:"lose_sight_factor"`
	AttackRange         float64   `yaml:"attack_range"`
	AttackCooldown      float64   `yaml:"attack_cooldown_seconds"`
	AttackDamage        float64   `yaml:"attack_damage"`
	StoppingFactor      float64   `yaml:"stopping_factor"`
	PatrolSpeed         float64   `yaml:"patrol_speed"`
	ChaseSpeed          float64   `yaml:"chase_speed"`
	WaypointTolerance   float64   `yaml:"waypoint_tolerance"`
	WanderEnabled       bool      `yaml:"wander_enabled"`
	WanderRadius        float64   `yaml:"wander_radius"`
	WanderInterval      float64   `yaml:"wander_interval_seconds"`
	SnapDistance        float64   `yaml:"snap_distance"`
	NavRetrySeconds     float64   `yaml:"nav_retry_seconds"`
	FallSpeed           float64   `yaml:"fall_speed"`
	PickupRange         float64   `yaml:"pickup_range"`
	CarryOffset         geom.Vec3 `yaml:"carry_offset"`
}

// Prefab is one spawnable ghost variant. Zero fields fall back to Ghost.
type Prefab struct {
	ID        string  `yaml:"id"`
	Tier      int     `yaml:"tier"`
	MaxHealth float64 `yaml:"max_health"`
	Speed     float64 `yaml:"speed"`
}

type Route struct {
	ID        string      `yaml:"id"`
	Waypoints []geom.Vec3 `yaml:"waypoints"`
}

type Player struct {
	MaxHealth      float64     `yaml:"max_health"`
	ReviveFraction float64     `yaml:"revive_fraction"`
	MaxMoveSpeed   float64     `yaml:"max_move_speed"`
	MoveSlack      float64     `yaml:"move_slack"`
	Spawns         []geom.Vec3 `yaml:"spawns"`
}

type Revive struct {
	Range       float64 `yaml:"range"`
	Leeway      float64 `yaml:"leeway"`
	HoldSeconds float64 `yaml:"hold_seconds"`
}

type Projectile struct {
	Speed           float64 `yaml:"speed"`
	Damage          float64 `yaml:"damage"`
	LifetimeSeconds float64 `yaml:"lifetime_seconds"`
	HitRadius       float64 `yaml:"hit_radius"`
	MuzzleHeight    float64 `yaml:"muzzle_height"`
}

type Station struct {
	Center      geom.Vec3 `yaml:"center"`
	HalfExtents geom.Vec3 `yaml:"half_extents"`
}

func (s Station) Box() geom.Box { return geom.BoxAround(s.Center, s.HalfExtents) }

type Stations struct {
	// Console is where the end-of-round console appears. Nil disables it.
	Console        *Station `yaml:"console"`
	Lab            *Station `yaml:"lab"`
	LabAutoConvert bool     `yaml:"lab_auto_convert"`
}

type Requests struct {
	MaxDamage     float64 `yaml:"max_damage"`
	PickupLeeway  float64 `yaml:"pickup_leeway"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		TickRateHz:          20,
		CountdownIntervalMs: 1000,
		SnapshotEveryTicks:  6000,
		ArenaHalfExtent:     40,
		Round: Round{
			BaseThreshold:       10,
			ThresholdPerRound:   10,
			BaseTimeSeconds:     120,
			TimePerRoundSeconds: 30,
			BaseGhosts:          6,
			GhostsPerRound:      3,
		},
		Ghost: Ghost{
			MaxHealth:           100,
			UnconsciousFraction: 0.25,
			DetectionRange:      12,
			LoseSightFactor:     1.5,
			AttackRange:         2,
			AttackCooldown:      2,
			AttackDamage:        10,
			StoppingFactor:      0.6,
			PatrolSpeed:         2.5,
			ChaseSpeed:          4,
			WaypointTolerance:   1,
			WanderEnabled:       true,
			WanderRadius:        10,
			WanderInterval:      5,
			SnapDistance:        5,
			NavRetrySeconds:     1,
			FallSpeed:           6,
			PickupRange:         2,
			CarryOffset:         geom.V(0, 1, 1),
		},
		Prefabs: []Prefab{{ID: "wisp", Tier: 1}},
		Spawns: []geom.Vec3{
			geom.V(20, 0, 20), geom.V(-20, 0, 20), geom.V(20, 0, -20), geom.V(-20, 0, -20),
		},
		Player: Player{
			MaxHealth:      100,
			ReviveFraction: 0.5,
			MaxMoveSpeed:   7,
			MoveSlack:      0.5,
			Spawns: []geom.Vec3{
				geom.V(0, 0, 0), geom.V(2, 0, 0), geom.V(0, 0, 2), geom.V(2, 0, 2),
			},
		},
		Revive: Revive{Range: 2.5, Leeway: 0.75, HoldSeconds: 3},
		Projectile: Projectile{
			Speed:           22,
			Damage:          20,
			LifetimeSeconds: 3,
			HitRadius:       0.75,
			MuzzleHeight:    1.5,
		},
		Stations: Stations{
			Console:        &Station{Center: geom.V(0, 0, -6), HalfExtents: geom.V(1.5, 2, 1.5)},
			Lab:            &Station{Center: geom.V(0, 0, 8), HalfExtents: geom.V(3, 3, 3)},
			LabAutoConvert: true,
		},
		Requests: Requests{
			MaxDamage:     200,
			PickupLeeway:  0.75,
			RatePerSecond: 40,
			Burst:         80,
		},
	}
}

// Load reads path over Defaults(). A missing file is returned as-is so callers
// can decide whether defaults are acceptable.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values that have no meaningful zero setting.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.TickRateHz > 120 {
		t.TickRateHz = 120
	}
	if t.CountdownIntervalMs <= 0 {
		t.CountdownIntervalMs = d.CountdownIntervalMs
	}
	if t.SnapshotEveryTicks < 0 {
		t.SnapshotEveryTicks = 0
	}
	if t.Ghost.LoseSightFactor < 1 {
		t.Ghost.LoseSightFactor = d.Ghost.LoseSightFactor
	}
	if t.Ghost.StoppingFactor <= 0 {
		t.Ghost.StoppingFactor = d.Ghost.StoppingFactor
	}
	if t.Ghost.NavRetrySeconds <= 0 {
		t.Ghost.NavRetrySeconds = d.Ghost.NavRetrySeconds
	}
	if t.Player.ReviveFraction <= 0 || t.Player.ReviveFraction > 1 {
		t.Player.ReviveFraction = d.Player.ReviveFraction
	}
	if t.Requests.Burst <= 0 {
		t.Requests.Burst = d.Requests.Burst
	}
	for i := range t.Prefabs {
		if t.Prefabs[i].Tier <= 0 {
			t.Prefabs[i].Tier = 1
		}
	}
}

func (t Tuning) Validate() error {
	var errs []string
	if t.Round.BaseThreshold < 0 || t.Round.ThresholdPerRound < 0 {
		errs = append(errs, "round thresholds must be >= 0")
	}
	if t.Round.BaseTimeSeconds <= 0 || t.Round.TimePerRoundSeconds < 0 {
		errs = append(errs, "round time must be > 0")
	}
	if t.Round.BaseGhosts < 0 || t.Round.GhostsPerRound < 0 {
		errs = append(errs, "ghost counts must be >= 0")
	}
	if t.Ghost.MaxHealth <= 0 {
		errs = append(errs, "ghost.max_health must be > 0")
	}
	if t.Ghost.UnconsciousFraction < 0 || t.Ghost.UnconsciousFraction >= 1 {
		errs = append(errs, "ghost.unconscious_fraction must be in [0,1)")
	}
	if t.Ghost.AttackCooldown <= 0 {
		errs = append(errs, "ghost.attack_cooldown_seconds must be > 0")
	}
	if t.Player.MaxHealth <= 0 {
		errs = append(errs, "player.max_health must be > 0")
	}
	if t.Revive.HoldSeconds < 0 {
		errs = append(errs, "revive.hold_seconds must be >= 0")
	}
	seen := map[string]bool{}
	for _, p := range t.Prefabs {
		if strings.TrimSpace(p.ID) == "" {
			errs = append(errs, "prefab id must not be empty")
			continue
		}
		if seen[p.ID] {
			errs = append(errs, "duplicate prefab id "+p.ID)
		}
		seen[p.ID] = true
	}
	for _, r := range t.Routes {
		if len(r.Waypoints) == 0 {
			errs = append(errs, "route "+r.ID+" has no waypoints")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// PrefabByID returns the prefab with the given id.
func (t Tuning) PrefabByID(id string) (Prefab, bool) {
	for _, p := range t.Prefabs {
		if p.ID == id {
			return p, true
		}
	}
	return Prefab{}, false
}
