package protocol

import "ghostround.io/internal/sim/geom"

// RequestKind names one client request. Every inbound REQ is routed by kind
// through a single dispatcher on the world loop.
type RequestKind string

const (
	KindDealDamage          RequestKind = "DEAL_DAMAGE"
	KindRequestPickup       RequestKind = "REQUEST_PICKUP"
	KindRequestDrop         RequestKind = "REQUEST_DROP"
	KindRequestConvert      RequestKind = "REQUEST_CONVERT"
	KindRequestRevive       RequestKind = "REQUEST_REVIVE"
	KindReleaseRevive       RequestKind = "RELEASE_REVIVE"
	KindRequestEndRound     RequestKind = "REQUEST_END_ROUND"
	KindRequestAdvanceRound RequestKind = "REQUEST_ADVANCE_ROUND"
	KindRequestReturnToIdle RequestKind = "REQUEST_RETURN_TO_IDLE"
	KindRequestRestart      RequestKind = "REQUEST_RESTART"
	KindRequestStartRound   RequestKind = "REQUEST_START_ROUND"
	KindAddResource         RequestKind = "ADD_RESOURCE"
	KindNotifyIncapacitated RequestKind = "NOTIFY_INCAPACITATED"
	KindNotifyRevived       RequestKind = "NOTIFY_REVIVED"
	KindMove                RequestKind = "MOVE"
	KindThrow               RequestKind = "THROW"
)

// AllKinds lists every request kind in a stable order.
var AllKinds = []RequestKind{
	KindDealDamage,
	KindRequestPickup,
	KindRequestDrop,
	KindRequestConvert,
	KindRequestRevive,
	KindReleaseRevive,
	KindRequestEndRound,
	KindRequestAdvanceRound,
	KindRequestReturnToIdle,
	KindRequestRestart,
	KindRequestStartRound,
	KindAddResource,
	KindNotifyIncapacitated,
	KindNotifyRevived,
	KindMove,
	KindThrow,
}

func (k RequestKind) Valid() bool {
	for _, v := range AllKinds {
		if v == k {
			return true
		}
	}
	return false
}

// HostOnly reports whether only the host may issue k.
func (k RequestKind) HostOnly() bool {
	switch k {
	case KindRequestAdvanceRound, KindRequestReturnToIdle, KindRequestRestart, KindRequestStartRound:
		return true
	}
	return false
}

// REQ (client -> server). Parameters are untrusted.
type ReqMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Seq             uint64      `json:"seq,omitempty"`
	Kind            RequestKind `json:"kind"`

	TargetID    string  `json:"target_id,omitempty"`
	AgentID     string  `json:"agent_id,omitempty"`
	RequesterID string  `json:"requester_id,omitempty"`
	PlayerID    string  `json:"player_id,omitempty"`
	Amount      float64 `json:"amount,omitempty"`

	Pos *geom.Vec3 `json:"pos,omitempty"`
	Yaw float64    `json:"yaw,omitempty"`
	Dir *geom.Vec3 `json:"dir,omitempty"`
}

func NewReq(kind RequestKind) ReqMsg {
	return ReqMsg{Type: TypeReq, ProtocolVersion: Version, Kind: kind}
}
