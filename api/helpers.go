package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/civitas-vote/ballotauth/log"
)

// httpWriteStatus writes data as a JSON response under the given HTTP
// status, logging the encoded body at debug level the way the teacher's
// request/response logging pair (see initRouter's logHandler) does for
// requests. httpWriteJSON and httpWriteCreated are thin status-bound
// wrappers so call sites read as "write a 200" / "write a 201" rather than
// repeating the status code at every call.
func httpWriteStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "status", status, "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteJSON writes data as a 200 OK JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	httpWriteStatus(w, http.StatusOK, data)
}

// httpWriteCreated writes data as a 201 Created JSON response (spec §6's
// POST /voting/blind-tokens and POST /voting/votes/complete).
func httpWriteCreated(w http.ResponseWriter, data any) {
	httpWriteStatus(w, http.StatusCreated, data)
}

// httpWriteOK writes an empty 200 OK response (spec §6's GET /ping).
func httpWriteOK(w http.ResponseWriter) {
	httpWriteStatus(w, http.StatusOK, struct{}{})
}

// decodeJSONBody decodes r's body into v, returning ErrMalformedBody on
// failure.
func decodeJSONBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return ErrMalformedBody.WithErr(err)
	}
	return nil
}
