package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/voting"
)

func castInputFrom(voterID int64, body castBallotRequest) voting.CastInput {
	return voting.CastInput{
		VoterID:            voterID,
		ElectionID:         body.ElectionID,
		OptionID:           body.OptionID,
		UnblindedSignature: body.UnblindedSignature,
		VoteHash:           body.VoteHash,
		EncryptedPayload:   body.EncryptedPayload,
		ReceiptHash:        body.ReceiptHash,
		ReceiptSignature:   body.ReceiptSignature,
	}
}

func electionIDParam(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, ElectionIDURLParam)
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// createElectionRequest is the body of POST /elections.
type createElectionRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Options     []struct {
		Text  string `json:"text"`
		Order int    `json:"order"`
	} `json:"options"`
	SigningKey string `json:"signing_key,omitempty"`
}

func (a *API) createElection(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}
	if !requireAdmin(w, v) {
		return
	}

	var body createElectionRequest
	if err := decodeJSONBody(r, &body); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	opts := make([]election.OptionInput, 0, len(body.Options))
	for _, o := range body.Options {
		opts = append(opts, election.OptionInput{Text: o.Text, Order: o.Order})
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	e, createdOpts, err := a.elections.CreateElection(ctx, election.Meta{
		Title:       body.Title,
		Description: body.Description,
		StartAt:     body.StartAt,
		EndAt:       body.EndAt,
	}, opts, body.SigningKey)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}

	httpWriteCreated(w, map[string]any{
		"election_id": e.ID,
		"title":       e.Title,
		"start_at":    e.StartAt,
		"end_at":      e.EndAt,
		"options":     createdOpts,
	})
}

func (a *API) getElection(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}
	ctx, cancel := ctxTimeout(r)
	defer cancel()
	e, opts, err := a.elections.GetWithOptions(ctx, id)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, map[string]any{
		"election_id": e.ID,
		"title":       e.Title,
		"description": e.Description,
		"start_at":    e.StartAt,
		"end_at":      e.EndAt,
		"is_active":   e.IsActive,
		"options":     opts,
	})
}

func (a *API) electionResults(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}
	if !requireAdmin(w, v) {
		return
	}
	id, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}
	ctx, cancel := ctxTimeout(r)
	defer cancel()
	result, err := a.tallies.Tally(ctx, id)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, result)
}

func (a *API) electionPublicKey(w http.ResponseWriter, r *http.Request) {
	id, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}
	ctx, cancel := ctxTimeout(r)
	defer cancel()
	pub, err := a.elections.PublicKeyOf(ctx, id)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, map[string]string{"public_key": pub})
}

// requestTokenRequest is the body of POST /voting/blind-tokens.
type requestTokenRequest struct {
	VoterID    int64  `json:"voter_id"`
	ElectionID int64  `json:"election_id"`
	BlindedHex string `json:"blinded_token"`
}

func (a *API) requestBlindToken(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}

	var body requestTokenRequest
	if err := decodeJSONBody(r, &body); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if body.VoterID != v.ID && !v.IsAdmin {
		ErrForbidden.With("voter_id mismatch").Write(w)
		return
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	tok, err := a.tokens.RequestToken(ctx, body.VoterID, body.ElectionID, body.BlindedHex)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}

	httpWriteCreated(w, map[string]any{
		"token_id":     tok.ID,
		"signed_token": *tok.SignedBlob,
		"election_id":  tok.ElectionID,
		"created_at":   tok.CreatedAt,
	})
}

func (a *API) myBlindToken(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}
	electionID, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	tok, err := a.tokens.Get(ctx, v.ID, electionID)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, tok)
}

// castBallotRequest is the body of POST /voting/votes/complete, exactly
// spec §4.5's eight cast_ballot fields (voter_id taken from the
// authenticated identity, not the body).
type castBallotRequest struct {
	ElectionID         int64  `json:"election_id"`
	OptionID           int64  `json:"option_id"`
	UnblindedSignature string `json:"unblinded_signature"`
	VoteHash           string `json:"vote_hash"`
	EncryptedPayload   string `json:"encrypted_payload"`
	ReceiptHash        string `json:"receipt_hash"`
	ReceiptSignature   string `json:"receipt_signature"`
}

func (a *API) castBallot(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}

	var body castBallotRequest
	if err := decodeJSONBody(r, &body); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	res, err := a.votes.Cast(ctx, castInputFrom(v.ID, body))
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}

	httpWriteCreated(w, map[string]any{
		"vote_id":      res.Ballot.ID,
		"election_id":  res.Ballot.ElectionID,
		"receipt_id":   res.Receipt.ID,
		"receipt_hash": res.Receipt.ReceiptHash,
		"voted_at":     res.Receipt.VotedAt,
	})
}

func (a *API) legacyCastBallot(w http.ResponseWriter, _ *http.Request) {
	ErrLegacyGone.Write(w)
}

func (a *API) myReceipt(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}
	electionID, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	receipt, err := a.votes.ReceiptOf(ctx, v.ID, electionID)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, receipt)
}

func (a *API) hasVoted(w http.ResponseWriter, r *http.Request) {
	v, ok := voterFromContext(r.Context())
	if !ok {
		ErrUnauthenticated.Write(w)
		return
	}
	electionID, ok := electionIDParam(r)
	if !ok {
		ErrBadInput.With("malformed election id").Write(w)
		return
	}

	ctx, cancel := ctxTimeout(r)
	defer cancel()
	voted, err := a.votes.HasVoted(ctx, v.ID, electionID)
	if err != nil {
		fromCoreErr(err).Write(w)
		return
	}
	httpWriteJSON(w, map[string]bool{"has_voted": voted})
}
