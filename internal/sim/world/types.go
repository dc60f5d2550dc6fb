package world

import (
	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
)

type WorldConfig struct {
	ID   string
	Seed int64
}

type JoinRequest struct {
	Name string
	// Session receives frames for the new player. Nil joins a player with no
	// outbound stream (tests, replay).
	Session *replication.Session
	Resp    chan JoinResponse
}

type JoinResponse struct {
	PlayerID string
	Welcome  protocol.WelcomeMsg
}

type RequestEnvelope struct {
	PlayerID string
	Req      protocol.ReqMsg
}

type RecordedJoin struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type RecordedRequest struct {
	PlayerID string          `json:"player_id"`
	Req      protocol.ReqMsg `json:"req"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type RoundLogger interface {
	WriteRound(entry RoundLogEntry) error
}

type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	Joins    []RecordedJoin    `json:"joins,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Requests []RecordedRequest `json:"requests,omitempty"`
	Digest   string            `json:"digest"`
}

// Round outcomes recorded in the round log.
const (
	OutcomeVictory   = "VICTORY"
	OutcomeEnded     = "ENDED"
	OutcomeDefeat    = "DEFEAT"
	OutcomeAbandoned = "ABANDONED"
)

type RoundLogEntry struct {
	WorldID   string `json:"world_id"`
	Number    int    `json:"number"`
	Outcome   string `json:"outcome"`
	Collected int    `json:"collected"`
	Threshold int    `json:"threshold"`
	StartTick uint64 `json:"start_tick"`
	EndTick   uint64 `json:"end_tick"`
	Players   int    `json:"players"`
	Converted int    `json:"converted"`
}
