package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/civitas-vote/ballotauth/corerr"
	"github.com/civitas-vote/ballotauth/log"
)

// Error is used by handler functions to wrap errors, assigning a unique
// error code and the HTTP status that should be used (spec §7). Kind
// carries the corerr.Kind this wire error was translated from (empty for
// errors that never originate in a core package, e.g. a malformed body),
// so a client can branch on a stable machine-readable taxonomy instead of
// parsing the human-readable message.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
	Kind       corerr.Kind
}

// MarshalJSON returns a JSON object containing Err.Error(), Code and Kind
// (omitted when empty). Field HTTPstatus is ignored.
//
// Example output: {"error":"election is not open","code":40004,"kind":"closed"}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Err  string      `json:"error"`
			Code int         `json:"code"`
			Kind corerr.Kind `json:"kind,omitempty"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
			Kind: e.Kind,
		})
}

// Error returns the message contained in the Error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes e as JSON and writes it with the configured HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

// With returns a copy of e with s appended to e.Err.
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
		Kind:       e.Kind,
	}
}

// WithErr returns a copy of e with err.Error() appended to e.Err. When err
// wraps a corerr.Error (e.g. fromCoreErr's base lookup), e.Kind already
// carries its corerr.Kind; WithErr only enriches the message.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
		Kind:       e.Kind,
	}
}
