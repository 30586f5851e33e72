package domain

import "errors"

// Kind classifies protocol errors. It doubles as the wire error code.
type Kind string

const (
	KindAuth              Kind = "auth_error"
	KindNotSeated         Kind = "not_seated"
	KindIllegalMove       Kind = "illegal_move"
	KindGameOver          Kind = "game_over"
	KindInvalidOfferState Kind = "invalid_offer_state"
	KindNotFound          Kind = "not_found"
	KindNotStarted        Kind = "not_started"
	KindBadRequest        Kind = "bad_request"
	KindInternal          Kind = "internal"
)

// Error is a rejected intent. Two Errors match under errors.Is when their kinds match,
// so callers can attach context to the message and still compare against the sentinels.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrAuth              = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrNotSeated         = &Error{Kind: KindNotSeated, Message: "caller does not hold the required seat"}
	ErrIllegalMove       = &Error{Kind: KindIllegalMove, Message: "illegal move"}
	ErrGameOver          = &Error{Kind: KindGameOver, Message: "game already over"}
	ErrInvalidOfferState = &Error{Kind: KindInvalidOfferState, Message: "invalid draw offer state"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "game not found"}
	ErrNotStarted        = &Error{Kind: KindNotStarted, Message: "game has not started"}
	ErrBadRequest        = &Error{Kind: KindBadRequest, Message: "bad request"}
)

// Errf builds an Error of the given kind with a specific message.
func Errf(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
