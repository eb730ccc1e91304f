package api

import (
	"github.com/civitas-vote/ballotauth/corerr"
	"github.com/civitas-vote/ballotauth/log"
)

// fromCoreErr translates a core package error (election/token/voting/tally)
// into the stable api.Error it should be reported as, per spec §7's
// propagation policy: every precondition failure gets a stable kind, never
// a free-form string, and internal errors are logged without leaking key
// material or voter-linking data.
func fromCoreErr(err error) Error {
	kind := corerr.KindOf(err)
	base, ok := kindTable[kind]
	if !ok {
		log.Errorw(err, "unclassified core error", "kind", kind)
		return ErrGenericInternalServerError.WithErr(err)
	}
	if base.HTTPstatus >= 500 {
		log.Errorw(err, "internal error", "kind", kind)
		return base
	}
	return base.WithErr(err)
}

var kindTable = map[corerr.Kind]Error{
	corerr.KindNotFound:        ErrResourceNotFound,
	corerr.KindClosed:          ErrClosed,
	corerr.KindDuplicateToken:  ErrDuplicateToken,
	corerr.KindNoToken:         ErrNoToken,
	corerr.KindTokenUnsigned:   ErrTokenUnsigned,
	corerr.KindTokenSpent:      ErrTokenSpent,
	corerr.KindAlreadyVoted:    ErrAlreadyVoted,
	corerr.KindDuplicateBallot: ErrDuplicateBallot,
	corerr.KindInvalidSig:      ErrInvalidSignature,
	corerr.KindBadInput:        ErrBadInput,
	corerr.KindBadOption:       ErrBadOption,
	corerr.KindKeyMaterial:     ErrKeyMaterial,
	corerr.KindInternal:        ErrGenericInternalServerError,
}
