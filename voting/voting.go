// Package voting implements C5, the ballot submission engine: the single
// atomic cast_ballot transaction (spec §4.5), the hardest part of the
// system. It wraps a *store.Store the way the teacher's
// service.SequencerService wraps *storage.Storage, but the operation
// itself is expressed as one store.WithTx call, since the whole
// precondition-pipeline-then-mutate contract must be one unit of work.
package voting

import (
	"context"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
	"github.com/civitas-vote/ballotauth/crypto"
	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/log"
	"github.com/civitas-vote/ballotauth/store"
)

// Engine is C5.
type Engine struct {
	st *store.Store
}

// New constructs an Engine.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

// CastInput bundles the eight fields of spec §4.5's cast_ballot.
type CastInput struct {
	VoterID            int64
	ElectionID         int64
	OptionID           int64
	UnblindedSignature string
	VoteHash           string
	EncryptedPayload   string
	ReceiptHash        string
	ReceiptSignature   string
}

// CastResult is what cast_ballot returns on success.
type CastResult struct {
	Ballot  *store.Ballot
	Receipt *store.Receipt
}

// Cast runs the precondition pipeline and mutation phase of spec §4.5 in a
// single transaction. Any precondition failure or constraint violation
// rolls the transaction back entirely: no partial ballot, no partial
// receipt, no burnt token (spec §8, property 5).
func (e *Engine) Cast(ctx context.Context, in CastInput) (*CastResult, error) {
	if !crypto.IsHexSHA256(in.VoteHash) {
		return nil, corerr.New(corerr.KindBadInput, "vote_hash must be 64 lowercase hex characters")
	}
	if !crypto.IsHexSHA256(in.ReceiptHash) {
		return nil, corerr.New(corerr.KindBadInput, "receipt_hash must be 64 lowercase hex characters")
	}

	var result CastResult
	err := e.st.WithTx(ctx, func(q *store.Queries) error {
		now := time.Now().UTC() // sampled once per transaction, spec §4.5

		// 1. Election exists.
		el, err := q.GetElection(ctx, in.ElectionID)
		if err != nil {
			return err
		}

		// 2. Window open.
		if !election.WindowOpen(el, now) {
			return corerr.New(corerr.KindClosed, "election %d is not open", in.ElectionID)
		}

		// 3. Token present, SIGNED, not USED, for (voter, election).
		tok, err := q.GetBlindTokenByVoterElection(ctx, in.VoterID, in.ElectionID)
		if err != nil {
			return err // corerr.KindNoToken from store when absent
		}
		if !tok.Signed() {
			return corerr.New(corerr.KindTokenUnsigned, "token for voter %d election %d is not signed", in.VoterID, in.ElectionID)
		}
		if tok.Used {
			return corerr.New(corerr.KindTokenSpent, "token for voter %d election %d already used", in.VoterID, in.ElectionID)
		}

		// 4. Voter has no prior receipt for this election.
		voted, err := q.HasVoted(ctx, in.VoterID, in.ElectionID)
		if err != nil {
			return err
		}
		if voted {
			return corerr.New(corerr.KindAlreadyVoted, "voter %d already voted in election %d", in.VoterID, in.ElectionID)
		}

		// 5. vote_hash is globally unused.
		used, err := q.HasVoteHash(ctx, in.VoteHash)
		if err != nil {
			return err
		}
		if used {
			return corerr.New(corerr.KindDuplicateBallot, "vote_hash %s already recorded", in.VoteHash)
		}

		// 6. Option belongs to election.
		opt, err := q.GetOption(ctx, in.OptionID)
		if err != nil {
			return corerr.New(corerr.KindBadOption, "option %d not found", in.OptionID)
		}
		if opt.ElectionID != in.ElectionID {
			return corerr.New(corerr.KindBadOption, "option %d does not belong to election %d", in.OptionID, in.ElectionID)
		}

		// 7. Signature verification. The spec's source permissively logged
		// and continued on failure (spec §9, Open Question 2); this
		// implementation makes InvalidSignature a hard reject, as the spec
		// requires.
		pub, err := crypto.PublicKeyFromPrivate(el.SigningKey)
		if err != nil {
			return corerr.Wrap(corerr.KindKeyMaterial, err, "derive election %d public key", in.ElectionID)
		}
		if !crypto.VerifyBlindSignature(in.VoteHash, in.UnblindedSignature, pub) {
			log.Warnw("ballot signature failed verification", "election_id", in.ElectionID)
			return corerr.New(corerr.KindInvalidSig, "unblinded_signature does not verify for election %d", in.ElectionID)
		}

		// 8. Insert Ballot -- no voter reference.
		ballot, err := q.CreateBallot(ctx, &store.Ballot{
			ElectionID:         in.ElectionID,
			OptionID:           in.OptionID,
			UnblindedSignature: in.UnblindedSignature,
			VoteHash:           in.VoteHash,
			EncryptedPayload:   in.EncryptedPayload,
		})
		if err != nil {
			return err
		}

		// 9. Insert Receipt.
		receipt, err := q.CreateReceipt(ctx, &store.Receipt{
			VoterID:          in.VoterID,
			ElectionID:       in.ElectionID,
			ReceiptHash:      in.ReceiptHash,
			DigitalSignature: in.ReceiptSignature,
		})
		if err != nil {
			return err
		}

		// 10. Mark token used.
		if err := q.MarkTokenUsed(ctx, tok.ID, now); err != nil {
			return err
		}

		if err := q.AppendAudit(ctx, "ballot_cast", &in.ElectionID, &in.VoterID, ""); err != nil {
			return err
		}

		result = CastResult{Ballot: ballot, Receipt: receipt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("ballot cast", "election_id", in.ElectionID, "ballot_id", result.Ballot.ID, "receipt_id", result.Receipt.ID)
	return &result, nil
}

// HasVoted reports whether a voter has already cast a ballot in an
// election (spec §6 GET /voting/has-voted/{election_id}).
func (e *Engine) HasVoted(ctx context.Context, voterID, electionID int64) (bool, error) {
	return e.st.Q().HasVoted(ctx, voterID, electionID)
}

// ReceiptOf returns the voter's receipt for an election, if any (spec §6
// GET /voting/receipts/me/{election_id}).
func (e *Engine) ReceiptOf(ctx context.Context, voterID, electionID int64) (*store.Receipt, error) {
	return e.st.Q().GetReceiptByVoterElection(ctx, voterID, electionID)
}
