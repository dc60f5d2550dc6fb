package protocol

type EventType string

const (
	EventRoundState              EventType = "ROUND_STATE"
	EventAgentState              EventType = "AGENT_STATE"
	EventAgentHealth             EventType = "AGENT_HEALTH"
	EventAgentSpawned            EventType = "AGENT_SPAWNED"
	EventAgentRemoved            EventType = "AGENT_REMOVED"
	EventAgentConverted          EventType = "AGENT_CONVERTED"
	EventPlayerIncapacitated     EventType = "PLAYER_INCAPACITATED"
	EventPlayerRevived           EventType = "PLAYER_REVIVED"
	EventPlayerJoined            EventType = "PLAYER_JOINED"
	EventPlayerLeft              EventType = "PLAYER_LEFT"
	EventHostChanged             EventType = "HOST_CHANGED"
	EventConsoleActivated        EventType = "CONSOLE_ACTIVATED"
	EventReviveStarted           EventType = "REVIVE_STARTED"
	EventReviveCancelled         EventType = "REVIVE_CANCELLED"
	EventProjectileHit           EventType = "PROJECTILE_HIT"
	EventShowDefeatPrompt        EventType = "SHOW_DEFEAT_PROMPT"
	EventShowRoundCompletePrompt EventType = "SHOW_ROUND_COMPLETE_PROMPT"
	EventHideAllPrompts          EventType = "HIDE_ALL_PROMPTS"
	EventEnterLobby              EventType = "ENTER_LOBBY"
	EventLeaveLobby              EventType = "LEAVE_LOBBY"
)

// Event is a reliable notification. Seq increases by one per event across the
// whole server lifetime, so a client can detect gaps.
type Event struct {
	Seq  uint64    `json:"seq"`
	Tick uint64    `json:"tick"`
	Type EventType `json:"type"`

	PlayerID string  `json:"player_id,omitempty"`
	AgentID  string  `json:"agent_id,omitempty"`
	From     string  `json:"from,omitempty"`
	To       string  `json:"to,omitempty"`
	Round    int     `json:"round,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Health   float64 `json:"health,omitempty"`
	Tier     int     `json:"tier,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// EVENTS (server -> client), delivered in order and never dropped.
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}
