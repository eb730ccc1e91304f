// Package token implements C4, the token authority: accepts a voter's
// blinded nonce, issues an institutional signature over it, and tracks the
// token's used-ness. It wraps a *store.Store the way the teacher's
// service.SequencerService wraps *storage.Storage.
package token

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
	"github.com/civitas-vote/ballotauth/crypto"
	"github.com/civitas-vote/ballotauth/cryptopool"
	"github.com/civitas-vote/ballotauth/election"
	"github.com/civitas-vote/ballotauth/log"
	"github.com/civitas-vote/ballotauth/store"
)

// Authority is C4.
type Authority struct {
	st   *store.Store
	reg  *election.Registry
	pool *cryptopool.Pool

	// mu is a fast-path, in-memory guard per (voter_id, election_id),
	// mirroring the teacher's Storage.ballotLock sync.Mutex
	// (storage/storage.go): it only reduces wasted round-trips under
	// contention. The store's unique index on (voter_id, election_id)
	// remains the sole authoritative guard (spec §4.2/§4.4).
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs an Authority.
func New(st *store.Store, reg *election.Registry, pool *cryptopool.Pool) *Authority {
	return &Authority{st: st, reg: reg, pool: pool, locks: make(map[string]*sync.Mutex)}
}

func (a *Authority) lockFor(voterID, electionID int64) func() {
	key := lockKey(voterID, electionID)
	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func lockKey(voterID, electionID int64) string {
	return strconv.FormatInt(voterID, 10) + ":" + strconv.FormatInt(electionID, 10)
}

// RequestToken is spec §4.4 request_token: validates the election is open
// and the voter holds no prior token for it, inserts an UNSIGNED row, then
// immediately signs it, returning the SIGNED token. The insert's unique
// constraint is the authoritative duplicate guard; the in-memory lock above
// only avoids a wasted signature computation under a benign race.
func (a *Authority) RequestToken(ctx context.Context, voterID, electionID int64, blindedHex string) (*store.BlindToken, error) {
	if !crypto.IsLowerHex(blindedHex) {
		return nil, corerr.New(corerr.KindBadInput, "blinded_token must be lowercase hex")
	}

	unlock := a.lockFor(voterID, electionID)
	defer unlock()

	e, err := a.reg.GetElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !election.WindowOpen(e, time.Now().UTC()) {
		return nil, corerr.New(corerr.KindClosed, "election %d is not open", electionID)
	}

	var tok *store.BlindToken
	err = a.st.WithTx(ctx, func(q *store.Queries) error {
		var err error
		tok, err = q.CreateBlindToken(ctx, voterID, electionID, blindedHex)
		if err != nil {
			return err
		}
		return q.AppendAudit(ctx, "token_requested", &electionID, &voterID, "")
	})
	if err != nil {
		return nil, err
	}

	signed, err := cryptopool.RunTyped(ctx, a.pool, func() (string, error) {
		return crypto.BlindSign(blindedHex, e.SigningKey)
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.KindKeyMaterial, err, "sign blinded token")
	}

	err = a.st.WithTx(ctx, func(q *store.Queries) error {
		if err := q.SetSignedBlob(ctx, tok.ID, signed); err != nil {
			return err
		}
		return q.AppendAudit(ctx, "token_signed", &electionID, &voterID, "")
	})
	if err != nil {
		return nil, err
	}

	tok, err = a.st.Q().GetBlindToken(ctx, tok.ID)
	if err != nil {
		return nil, err
	}
	log.Infow("blind token signed", "election_id", electionID, "token_id", tok.ID)
	return tok, nil
}

// SignToken is the administrative override of spec §4.4 sign_token: allowed
// only from UNSIGNED, otherwise rejected as "already signed".
func (a *Authority) SignToken(ctx context.Context, tokenID int64, signedBlob string) (*store.BlindToken, error) {
	tok, err := a.st.Q().GetBlindToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if tok.Signed() {
		return nil, corerr.New(corerr.KindBadInput, "token %d already signed", tokenID)
	}
	err = a.st.WithTx(ctx, func(q *store.Queries) error {
		return q.SetSignedBlob(ctx, tokenID, signedBlob)
	})
	if err != nil {
		return nil, err
	}
	return a.st.Q().GetBlindToken(ctx, tokenID)
}

// MarkUsed transitions a token from SIGNED to USED (spec §4.4 mark_used),
// idempotency-checked: a second call fails with corerr.KindTokenSpent.
func (a *Authority) MarkUsed(ctx context.Context, tokenID int64) error {
	return a.st.WithTx(ctx, func(q *store.Queries) error {
		return q.MarkTokenUsed(ctx, tokenID, time.Now().UTC())
	})
}

// PendingFor returns every still-UNSIGNED token, optionally scoped to one
// election (spec §4.4 pending_for).
func (a *Authority) PendingFor(ctx context.Context, electionID *int64) ([]*store.BlindToken, error) {
	return a.st.Q().ListPendingTokens(ctx, electionID)
}

// Status is the restricted view spec §4.4 status returns to a token's
// owner or an admin.
type Status struct {
	Signed    bool
	Used      bool
	CreatedAt time.Time
}

// StatusOf returns the status of a token, restricted by the caller: if
// requesterIsAdmin is false, requesterVoterID must match the token's owner.
func (a *Authority) StatusOf(ctx context.Context, tokenID, requesterVoterID int64, requesterIsAdmin bool) (*Status, error) {
	tok, err := a.st.Q().GetBlindToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !requesterIsAdmin && tok.VoterID != requesterVoterID {
		return nil, corerr.New(corerr.KindNotFound, "token %d", tokenID)
	}
	return &Status{Signed: tok.Signed(), Used: tok.Used, CreatedAt: tok.CreatedAt}, nil
}

// Get returns the BlindToken for a (voter, election) pair, used by
// GET /voting/blind-tokens/me/{election_id} (spec §6).
func (a *Authority) Get(ctx context.Context, voterID, electionID int64) (*store.BlindToken, error) {
	return a.st.Q().GetBlindTokenByVoterElection(ctx, voterID, electionID)
}
