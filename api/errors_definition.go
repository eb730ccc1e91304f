//nolint:lll
package api

import (
	"fmt"
	"net/http"

	"github.com/civitas-vote/ballotauth/corerr"
)

// The custom Error type satisfies the error interface. Error() returns a
// human-readable description of the error.
//
// Error codes in the 40001-49999 range are the caller's fault and return
// HTTP Status 400, 401, 403, 404 or 410, whatever is most appropriate. Codes
// 50001-59999 are the server's fault and return HTTP Status 500.
//
// NEVER change any of the current error codes, only append new errors
// after the current last 4XXXX or 5XXXX. If you notice there's a gap,
// don't fill it in -- that code was used for some error in the past and
// shouldn't be reused.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found"), Kind: corerr.KindNotFound}
	ErrMalformedBody      = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrBadInput           = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed input"), Kind: corerr.KindBadInput}
	ErrClosed             = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election is not open"), Kind: corerr.KindClosed}
	ErrDuplicateToken     = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("voter already requested a token for this election"), Kind: corerr.KindDuplicateToken}
	ErrNoToken            = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("no token found for this voter and election"), Kind: corerr.KindNoToken}
	ErrTokenUnsigned      = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("token has not been signed yet"), Kind: corerr.KindTokenUnsigned}
	ErrTokenSpent         = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("token has already been used"), Kind: corerr.KindTokenSpent}
	ErrAlreadyVoted       = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("voter has already voted in this election"), Kind: corerr.KindAlreadyVoted}
	ErrDuplicateBallot    = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("vote_hash already recorded"), Kind: corerr.KindDuplicateBallot}
	ErrInvalidSignature   = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature"), Kind: corerr.KindInvalidSig}
	ErrBadOption          = Error{Code: 40012, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("option does not belong to this election"), Kind: corerr.KindBadOption}
	ErrForbidden          = Error{Code: 40013, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("forbidden")}
	ErrLegacyGone         = Error{Code: 41001, HTTPstatus: http.StatusGone, Err: fmt.Errorf("this endpoint has been retired, use POST /voting/votes/complete")}
	ErrUnauthenticated    = Error{Code: 40100, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("missing or invalid voter identity")}

	ErrKeyMaterial                = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("election signing key missing or malformed"), Kind: corerr.KindKeyMaterial}
	ErrMarshalingServerJSONFailed = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error"), Kind: corerr.KindInternal}
)
