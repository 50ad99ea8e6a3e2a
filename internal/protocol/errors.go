package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest          = "E_BAD_REQUEST"
	ErrNotFound            = "E_NOT_FOUND"
	ErrAgentNotFound       = "E_AGENT_NOT_FOUND"
	ErrAgentNotInFormation = "E_AGENT_NOT_IN_FORMATION"
	ErrInvalidArgument     = "E_INVALID_ARGUMENT"
	ErrConflict            = "E_CONFLICT"
	ErrCapacity            = "E_CAPACITY"
	ErrRateLimit           = "E_RATE_LIMIT"
	ErrInternal            = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:     {},
	ErrBadRequest:          {},
	ErrNotFound:            {},
	ErrAgentNotFound:       {},
	ErrAgentNotInFormation: {},
	ErrInvalidArgument:     {},
	ErrConflict:            {},
	ErrCapacity:            {},
	ErrRateLimit:           {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
