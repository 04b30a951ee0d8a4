// Package drafterr holds the error kinds shared by every draft component.
// Call sites wrap a sentinel with detail, callers classify with errors.Is or KindOf.
package drafterr

import (
	"context"
	"errors"

	"connectrpc.com/connect"
)

// Kind names an error category in the draft engine.
type Kind string

const (
	KindInvalidConfiguration Kind = "INVALID_CONFIGURATION"
	KindDraftNotActive       Kind = "DRAFT_NOT_ACTIVE"
	KindOutOfTurn            Kind = "OUT_OF_TURN"
	KindPlayerAlreadyTaken   Kind = "PLAYER_ALREADY_TAKEN"
	KindStaleState           Kind = "STALE_STATE"
	KindPoolExhausted        Kind = "POOL_EXHAUSTED"
	KindTransientFailure     Kind = "TRANSIENT_FAILURE"
	KindNotFound             Kind = "NOT_FOUND"
	KindInvalidPick          Kind = "INVALID_PICK"
	KindNotDue               Kind = "NOT_DUE"
	KindUnknown              Kind = "UNKNOWN"
)

var (
	ErrInvalidConfiguration = errors.New("invalid draft configuration")
	ErrDraftNotActive       = errors.New("draft is not active")
	ErrOutOfTurn            = errors.New("participant is not on the clock")
	ErrPlayerAlreadyTaken   = errors.New("player already taken")
	ErrStaleState           = errors.New("draft state changed")
	ErrPoolExhausted        = errors.New("no eligible players remain")
	ErrTransient            = errors.New("transient store failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidPick          = errors.New("invalid pick")
	ErrNotDue               = errors.New("draft is not due to start")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidConfiguration, KindInvalidConfiguration},
	{ErrDraftNotActive, KindDraftNotActive},
	{ErrOutOfTurn, KindOutOfTurn},
	{ErrPlayerAlreadyTaken, KindPlayerAlreadyTaken},
	{ErrStaleState, KindStaleState},
	{ErrPoolExhausted, KindPoolExhausted},
	{ErrTransient, KindTransientFailure},
	{ErrNotFound, KindNotFound},
	{ErrInvalidPick, KindInvalidPick},
	{ErrNotDue, KindNotDue},
}

// KindOf classifies err. Context deadline errors count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransientFailure
	}
	return KindUnknown
}

// Retryable is true for the kinds a caller may retry after reloading state.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStaleState, KindTransientFailure:
		return true
	default:
		return false
	}
}

// Transient reports whether err is a store failure worth retrying with backoff.
func Transient(err error) bool {
	return KindOf(err) == KindTransientFailure
}

// Code maps a kind to the connect status code returned to clients.
func Code(err error) connect.Code {
	switch KindOf(err) {
	case KindInvalidConfiguration, KindInvalidPick:
		return connect.CodeInvalidArgument
	case KindDraftNotActive, KindNotDue:
		return connect.CodeFailedPrecondition
	case KindOutOfTurn:
		return connect.CodePermissionDenied
	case KindPlayerAlreadyTaken:
		return connect.CodeAlreadyExists
	case KindStaleState:
		return connect.CodeAborted
	case KindPoolExhausted:
		return connect.CodeResourceExhausted
	case KindTransientFailure:
		return connect.CodeUnavailable
	case KindNotFound:
		return connect.CodeNotFound
	default:
		return connect.CodeInternal
	}
}

// Message is the user-facing sentence for a kind.
func Message(err error) string {
	switch KindOf(err) {
	case KindInvalidConfiguration:
		return "the draft settings are not valid"
	case KindDraftNotActive:
		return "the draft is not accepting picks right now"
	case KindOutOfTurn:
		return "it is not your turn to pick"
	case KindPlayerAlreadyTaken:
		return "that player was just taken"
	case KindStaleState:
		return "the draft moved on, refresh and try again"
	case KindPoolExhausted:
		return "no eligible players remain in the pool"
	case KindTransientFailure:
		return "the draft is temporarily unavailable, try again"
	case KindNotFound:
		return "draft not found"
	case KindInvalidPick:
		return "that player is not in this draft's pool"
	case KindNotDue:
		return "the draft is not scheduled to start yet"
	default:
		return "internal error"
	}
}

// ToConnect wraps err for the transport boundary. The kind travels in the
// Draft-Error-Kind metadata so clients branch without parsing messages.
func ToConnect(err error) *connect.Error {
	cerr := connect.NewError(Code(err), errors.New(Message(err)))
	cerr.Meta().Set("Draft-Error-Kind", string(KindOf(err)))
	return cerr
}
