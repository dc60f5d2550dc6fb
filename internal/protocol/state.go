package protocol

import "ghostround.io/internal/sim/geom"

// Versioned carries one replicated field with the version it was written at.
// Replicas apply a field only when its version is newer than what they hold.
type Versioned[T any] struct {
	V     uint64 `json:"v"`
	Value T      `json:"value"`
}

type RoundSnapshot struct {
	Number        Versioned[int]     `json:"number"`
	State         Versioned[string]  `json:"state"`
	Collected     Versioned[int]     `json:"collected"`
	Threshold     Versioned[int]     `json:"threshold"`
	TimeRemaining Versioned[float64] `json:"time_remaining"`
}

type PlayerState struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Pos           geom.Vec3 `json:"pos"`
	Yaw           float64   `json:"yaw"`
	Health        float64   `json:"health"`
	MaxHealth     float64   `json:"max_health"`
	Incapacitated bool      `json:"incapacitated"`
	Carrying      string    `json:"carrying,omitempty"`
	Host          bool      `json:"host,omitempty"`
}

type AgentState struct {
	ID        string    `json:"id"`
	Prefab    string    `json:"prefab"`
	Tier      int       `json:"tier"`
	State     string    `json:"state"`
	Body      string    `json:"body"`
	Health    float64   `json:"health"`
	MaxHealth float64   `json:"max_health"`
	Pos       geom.Vec3 `json:"pos"`
	Yaw       float64   `json:"yaw"`
	CarrierID string    `json:"carrier_id,omitempty"`
	TargetID  string    `json:"target_id,omitempty"`
}

type ProjectileState struct {
	ID      string    `json:"id"`
	OwnerID string    `json:"owner_id"`
	Pos     geom.Vec3 `json:"pos"`
	Vel     geom.Vec3 `json:"vel"`
}

// StationState is a trigger volume with its occupancy set. Occupancy is
// presentation only; conversions are decided by the server's own tests.
type StationState struct {
	Kind     string    `json:"kind"`
	Active   bool      `json:"active"`
	Min      geom.Vec3 `json:"min"`
	Max      geom.Vec3 `json:"max"`
	Occupant []string  `json:"occupants,omitempty"`
}

type ReviveState struct {
	ReviverID string  `json:"reviver_id"`
	TargetID  string  `json:"target_id"`
	Progress  float64 `json:"progress"`
}

// STATE (server -> client), latest-wins.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	HostID          string `json:"host_id"`

	Round       RoundSnapshot     `json:"round"`
	Players     []PlayerState     `json:"players"`
	Agents      []AgentState      `json:"agents"`
	Projectiles []ProjectileState `json:"projectiles,omitempty"`
	Console     *StationState     `json:"console,omitempty"`
	Lab         *StationState     `json:"lab,omitempty"`
	Revives     []ReviveState     `json:"revives,omitempty"`
}
