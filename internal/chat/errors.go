package chat

import "errors"

// Kind classifies a domain failure. Callers map kinds to transport status.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidData
	KindCapacityExceeded
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidData:
		return "invalid_data"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error codes sent to clients.
const (
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomExpired         = "ROOM_EXPIRED"
	CodeParticipantNotFound = "CHATTER_NOT_FOUND"
	CodeNotJoined           = "NOT_JOINED"
	CodeInvalidData         = "INVALID_DATA"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
)

// Error is a domain failure with a client-facing code and message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches by code, or by kind when the target has no code, so
// errors.Is(err, ErrNotFound) holds for every not-found variant.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.Kind == e.Kind
}

// ErrNotFound matches every not-found code.
var ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}

var (
	ErrRoomNotFound        = &Error{KindNotFound, CodeRoomNotFound, "chat room does not exist"}
	ErrRoomExpired         = &Error{KindNotFound, CodeRoomExpired, "chat room has expired and can no longer be used"}
	ErrParticipantNotFound = &Error{KindNotFound, CodeParticipantNotFound, "chatter not found"}
	ErrNotJoined           = &Error{KindNotFound, CodeNotJoined, "connection has not joined this room"}
	ErrInvalidData         = &Error{KindInvalidData, CodeInvalidData, "requested data is invalid"}
	ErrCapacityExceeded    = &Error{KindCapacityExceeded, CodeCapacityExceeded, "chat room is full"}
	ErrUnauthorized        = &Error{KindUnauthorized, CodeUnauthorized, "wrong room password"}
)

// invalid returns an INVALID_DATA error with a specific message.
func invalid(msg string) error {
	return &Error{Kind: KindInvalidData, Code: CodeInvalidData, Message: msg}
}

// KindOf returns the kind of err, KindInternal for non-domain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the client-facing code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeInternal
}
