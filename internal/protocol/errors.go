package protocol

// Rejection reasons. Requests are never answered with an error; these codes
// only label ignored requests in stats and debug logs.
const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoSchema     = "E_PROTO_SCHEMA"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Dispatcher.
	ErrUnknownKind   = "E_UNKNOWN_KIND"
	ErrNotConnected  = "E_NOT_CONNECTED"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrWrongState    = "E_WRONG_STATE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrOutOfRange    = "E_OUT_OF_RANGE"
	ErrIncapacitated = "E_INCAPACITATED"
	ErrConflict      = "E_CONFLICT"
	ErrStale         = "E_STALE"
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNotConfigured = "E_NOT_CONFIGURED"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoSchema:     {},
	ErrRateLimit:       {},
	ErrUnknownKind:     {},
	ErrNotConnected:    {},
	ErrNoPermission:    {},
	ErrWrongState:      {},
	ErrInvalidTarget:   {},
	ErrOutOfRange:      {},
	ErrIncapacitated:   {},
	ErrConflict:        {},
	ErrStale:           {},
	ErrBadRequest:      {},
	ErrNotConfigured:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
