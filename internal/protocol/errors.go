package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest       = "E_BAD_REQUEST"
	ErrUnknownKind      = "E_UNKNOWN_KIND"
	ErrUnknownCharacter = "E_UNKNOWN_CHARACTER"
	ErrUnknownArchetype = "E_UNKNOWN_ARCHETYPE"
	ErrNoPermission     = "E_NO_PERMISSION"
	ErrConflict         = "E_CONFLICT"
	ErrInternal         = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrBadRequest:       {},
	ErrUnknownKind:      {},
	ErrUnknownCharacter: {},
	ErrUnknownArchetype: {},
	ErrNoPermission:     {},
	ErrConflict:         {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
