package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Codec           string            `json:"codec,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client). Always JSON; later frames use the selected codec.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	PlayerID        string      `json:"player_id"`
	HostID          string      `json:"host_id"`
	Codec           string      `json:"codec"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz          int     `json:"tick_rate_hz"`
	CountdownIntervalMs int     `json:"countdown_interval_ms"`
	ReviveHoldSeconds   float64 `json:"revive_hold_seconds"`
	ReviveRange         float64 `json:"revive_range"`
	PickupRange         float64 `json:"pickup_range"`
	PlayerMaxHealth     float64 `json:"player_max_health"`
	Seed                int64   `json:"seed"`
}
