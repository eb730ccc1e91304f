// Package corerr is the error-kind taxonomy shared by every core package
// (election, token, voting, tally, store). It is the "result-type instead
// of exceptions" re-architecture called for in spec §9: core packages never
// panic for expected business-rule failures, they return an error wrapping
// one of these Kinds, and package api is the only place that kind gets
// translated to an HTTP status/code (fromCoreErr in api/kindmap.go).
package corerr

import (
	"errors"
	"fmt"
)

// Kind is a stable, append-only taxonomy of the ways a core operation can
// fail, exactly spec §7's table.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindClosed          Kind = "closed"
	KindDuplicateToken  Kind = "duplicate_token"
	KindNoToken         Kind = "no_token"
	KindTokenUnsigned   Kind = "token_unsigned"
	KindTokenSpent      Kind = "token_spent"
	KindAlreadyVoted    Kind = "already_voted"
	KindDuplicateBallot Kind = "duplicate_ballot"
	KindInvalidSig      Kind = "invalid_signature"
	KindBadInput        Kind = "bad_input"
	KindBadOption       Kind = "bad_option"
	KindKeyMaterial     Kind = "key_material"
	KindInternal        Kind = "internal"
)

// Error pairs a Kind with a human-readable detail. It implements error and
// supports errors.Is against the Kind sentinels below, and errors.Unwrap
// against the wrapped cause (if any).
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, corerr.NotFound) (or any other sentinel below)
// match every *Error of the same Kind, whatever its message.
func (e *Error) Is(target error) bool {
	if s, ok := target.(*Error); ok {
		return e.Kind == s.Kind
	}
	return false
}

// New builds an *Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given Kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind carried by err, or KindInternal if err does not
// carry one (an unexpected/unclassified failure).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// sentinels, one per Kind, so callers can write errors.Is(err, corerr.NotFound).
var (
	NotFound        = &Error{Kind: KindNotFound}
	Closed          = &Error{Kind: KindClosed}
	DuplicateToken  = &Error{Kind: KindDuplicateToken}
	NoToken         = &Error{Kind: KindNoToken}
	TokenUnsigned   = &Error{Kind: KindTokenUnsigned}
	TokenSpent      = &Error{Kind: KindTokenSpent}
	AlreadyVoted    = &Error{Kind: KindAlreadyVoted}
	DuplicateBallot = &Error{Kind: KindDuplicateBallot}
	InvalidSig      = &Error{Kind: KindInvalidSig}
	BadInput        = &Error{Kind: KindBadInput}
	BadOption       = &Error{Kind: KindBadOption}
	KeyMaterial     = &Error{Kind: KindKeyMaterial}
	Internal        = &Error{Kind: KindInternal}
)
