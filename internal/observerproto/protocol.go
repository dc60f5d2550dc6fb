package observerproto

import "ghostround.io/internal/protocol"

// Version is the spectator protocol version (separate from the player WS protocol).
const Version = "0.1"

const TypeSubscribe = "SUBSCRIBE"

// Client -> Server. First message on the spectator WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Codec           string `json:"codec,omitempty"`
	// EventQueue bounds buffered EVENTS frames; the stream closes when it overflows.
	EventQueue int `json:"event_queue,omitempty"`
}

// Server -> Client, right after SUBSCRIBE. Always JSON.
type SubscribedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Codec           string `json:"codec"`
}

const TypeSubscribed = "SUBSCRIBED"

// HTTP response for GET /v1/observe/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	GameProtocol    string               `json:"game_protocol"`
	WorldID         string               `json:"world_id"`
	Tick            uint64               `json:"tick"`
	WorldParams     protocol.WorldParams `json:"world_params"`
	ArenaHalfExtent float64              `json:"arena_half_extent"`
	Stations        []Station            `json:"stations,omitempty"`
}

type Station struct {
	Kind        string     `json:"kind"`
	Center      [3]float64 `json:"center"`
	HalfExtents [3]float64 `json:"half_extents"`
}
