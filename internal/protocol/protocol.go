package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeReq     = "REQ"
	TypeState   = "STATE"
	TypeEvents  = "EVENTS"
)

// BaseMessage lets us route unknown messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeBaseWith is DecodeBase for sessions that negotiated a non-JSON codec.
func DecodeBaseWith(c Codec, b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := c.Unmarshal(b, &m)
	return m, err
}
