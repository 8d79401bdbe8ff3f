package errcode

import (
	"errors"
	"fmt"
)

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	kind *Error
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is this error's code or its kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return e.kind != nil && e.kind.Code == t.Code
}

// Kind returns the taxonomy error this error belongs to. Kind errors return themselves.
func (e *Error) Kind() *Error {
	if e.kind != nil {
		return e.kind
	}
	return e
}

// KindName returns a stable name for the error's kind
func (e *Error) KindName() string {
	if name, ok := kindNames[e.Kind().Code]; ok {
		return name
	}
	return "Internal"
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// newOf creates an error belonging to the given kind
func newOf(kind *Error, code int, msg string) *Error {
	return &Error{Code: code, Msg: msg, kind: kind}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
		kind: e.Kind(),
		err:  err,
	}
}

// From converts any error into an *Error, falling back to ErrInternalServer
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternalServer.Wrap(err)
}

// KindOf returns the taxonomy kind of err
func KindOf(err error) *Error {
	if err == nil {
		return nil
	}
	return From(err).Kind()
}

// Kinds
var (
	ErrUnauthenticated  = New(1100, "unauthenticated")
	ErrNotFound         = New(1200, "not found")
	ErrInvalidState     = New(1300, "invalid state")
	ErrValidation       = New(1400, "validation error")
	ErrPermissionDenied = New(1500, "permission denied")
	ErrStoreUnavailable = New(1600, "store unavailable")
	ErrInternalServer   = New(1002, "internal server error")
	ErrTooManyRequests  = New(1006, "too many requests")
)

var kindNames = map[int]string{
	ErrUnauthenticated.Code:  "Unauthenticated",
	ErrNotFound.Code:         "NotFound",
	ErrInvalidState.Code:     "InvalidState",
	ErrValidation.Code:       "ValidationError",
	ErrPermissionDenied.Code: "PermissionDenied",
	ErrStoreUnavailable.Code: "StoreUnavailable",
	ErrTooManyRequests.Code:  "TooManyRequests",
}

// Common error codes
var (
	ErrSuccess = New(0, "success")

	ErrInvalidParam = newOf(ErrValidation, 1001, "invalid parameter")
	ErrNoPermission = newOf(ErrPermissionDenied, 1007, "no permission to access this resource")

	// Auth errors (2xxx)
	ErrTokenInvalid  = newOf(ErrUnauthenticated, 2001, "token invalid")
	ErrTokenExpired  = newOf(ErrUnauthenticated, 2002, "token expired")
	ErrTokenMissing  = newOf(ErrUnauthenticated, 2003, "token missing")
	ErrTokenMismatch = newOf(ErrUnauthenticated, 2004, "token role mismatch")
	ErrAgentOnly     = newOf(ErrPermissionDenied, 2005, "only agents may perform this action")
	ErrVisitorOnly   = newOf(ErrPermissionDenied, 2006, "only visitors may perform this action")

	// Site errors (3xxx)
	ErrSiteNotFound = newOf(ErrNotFound, 3001, "site not found")
	ErrSiteInactive = newOf(ErrValidation, 3002, "site is not active")

	// Conversation and message errors (4xxx)
	ErrMessageNotFound      = newOf(ErrNotFound, 4001, "message not found")
	ErrConversationNotFound = newOf(ErrNotFound, 4003, "conversation not found")
	ErrParticipantNotFound  = newOf(ErrNotFound, 4004, "participant not found")
	ErrConversationClosed   = newOf(ErrInvalidState, 4010, "conversation is closed")
	ErrNoAgentAssigned      = newOf(ErrInvalidState, 4011, "no agent assigned")
	ErrAlreadyRated         = newOf(ErrInvalidState, 4012, "conversation already rated")
	ErrMessageDeleted       = newOf(ErrInvalidState, 4013, "message has been deleted")
	ErrNotJoined            = newOf(ErrInvalidState, 4014, "connection has not joined the conversation")
	ErrAlreadyAssigned      = newOf(ErrInvalidState, 4015, "agent already assigned")
	ErrEmptyContent         = newOf(ErrValidation, 4020, "content is empty")
	ErrInvalidRating        = newOf(ErrValidation, 4021, "rating score must be between 1 and 5")
	ErrInvalidMessageType   = newOf(ErrValidation, 4022, "invalid message type")
	ErrInvalidReplyTo       = newOf(ErrValidation, 4023, "reply target is not in this conversation")
	ErrInvalidPriority      = newOf(ErrValidation, 4024, "invalid priority")
	ErrInvalidStatus        = newOf(ErrValidation, 4025, "invalid presence status")

	// WebSocket errors (5xxx)
	ErrConnOverLimit     = New(5001, "connection over max limit")
	ErrInvalidProtocol   = newOf(ErrValidation, 5003, "invalid protocol")
	ErrAlreadyRegistered = newOf(ErrInvalidState, 5005, "connection already registered")
)
