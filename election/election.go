// Package election implements C3, the election registry: lifecycle and
// time-window queries over elections and their options, and custodian of
// each election's per-election RSA signing keypair. It wraps a
// *store.Store exactly the way the teacher's service.APIService wraps a
// *storage.Storage (service/api_service.go).
package election

import (
	"context"
	"strings"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
	"github.com/civitas-vote/ballotauth/crypto"
	"github.com/civitas-vote/ballotauth/cryptopool"
	"github.com/civitas-vote/ballotauth/log"
	"github.com/civitas-vote/ballotauth/store"
)

// OptionInput is one option supplied to CreateElection, before an id is
// assigned.
type OptionInput struct {
	Text  string
	Order int
}

// Meta is the election metadata supplied to CreateElection.
type Meta struct {
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
}

// Registry is C3.
type Registry struct {
	st   *store.Store
	pool *cryptopool.Pool
}

// New constructs a Registry over st, dispatching keygen to pool.
func New(st *store.Store, pool *cryptopool.Pool) *Registry {
	return &Registry{st: st, pool: pool}
}

// CreateElection persists an election and its (>=2) options atomically
// (spec §4.3). If signingKey is empty, a fresh RSA-2048 keypair is
// generated on the crypto worker pool (spec §5). Option texts are
// rejected if they duplicate (case-insensitive, trimmed) another option of
// the same election, and orders must be unique within the election.
func (r *Registry) CreateElection(ctx context.Context, meta Meta, options []OptionInput, signingKey string) (*store.Election, []*store.Option, error) {
	if meta.Title == "" {
		return nil, nil, corerr.New(corerr.KindBadInput, "title is required")
	}
	if !meta.StartAt.Before(meta.EndAt) {
		return nil, nil, corerr.New(corerr.KindBadInput, "start_at must be before end_at")
	}
	if len(options) < 2 {
		return nil, nil, corerr.New(corerr.KindBadInput, "an election needs at least 2 options")
	}
	if err := checkOptionsWellFormed(options); err != nil {
		return nil, nil, err
	}

	if signingKey == "" {
		priv, _, err := cryptopool.RunTyped(ctx, r.pool, func() (string, error) {
			priv, _, err := crypto.GenerateInstitutionKeys()
			return priv, err
		})
		if err != nil {
			return nil, nil, corerr.Wrap(corerr.KindKeyMaterial, err, "generate institution keypair")
		}
		signingKey = priv
	}

	var election *store.Election
	var created []*store.Option
	err := r.st.WithTx(ctx, func(q *store.Queries) error {
		var err error
		election, err = q.CreateElection(ctx, &store.Election{
			Title:       meta.Title,
			Description: meta.Description,
			StartAt:     meta.StartAt,
			EndAt:       meta.EndAt,
			IsActive:    true,
			SigningKey:  signingKey,
		})
		if err != nil {
			return err
		}
		for _, o := range options {
			opt, err := q.CreateOption(ctx, election.ID, strings.TrimSpace(o.Text), o.Order)
			if err != nil {
				return err
			}
			created = append(created, opt)
		}
		return q.AppendAudit(ctx, "election_created", &election.ID, nil, meta.Title)
	})
	if err != nil {
		return nil, nil, err
	}
	log.Infow("election created", "election_id", election.ID, "options", len(created))
	return election, created, nil
}

// checkOptionsWellFormed enforces spec §3/§4.3's option invariants ahead of
// any write: non-empty trimmed text <=300 chars, order >= 1, and no
// case-insensitive duplicate text or duplicate order within the batch.
func checkOptionsWellFormed(options []OptionInput) error {
	seenText := make(map[string]bool, len(options))
	seenOrder := make(map[int]bool, len(options))
	for _, o := range options {
		text := strings.TrimSpace(o.Text)
		if text == "" {
			return corerr.New(corerr.KindBadInput, "option text must not be empty")
		}
		if len(text) > 300 {
			return corerr.New(corerr.KindBadInput, "option text exceeds 300 characters")
		}
		if o.Order < 1 {
			return corerr.New(corerr.KindBadInput, "option_order must be >= 1")
		}
		key := strings.ToLower(text)
		if seenText[key] {
			return corerr.New(corerr.KindBadInput, "duplicate option text %q", text)
		}
		seenText[key] = true
		if seenOrder[o.Order] {
			return corerr.New(corerr.KindBadInput, "duplicate option_order %d", o.Order)
		}
		seenOrder[o.Order] = true
	}
	return nil
}

// GetElection fetches an election by id (spec §4.3 get_election).
func (r *Registry) GetElection(ctx context.Context, id int64) (*store.Election, error) {
	return r.st.Q().GetElection(ctx, id)
}

// GetWithOptions fetches an election and its ordered options (spec §4.3
// get_with_options).
func (r *Registry) GetWithOptions(ctx context.Context, id int64) (*store.Election, []*store.Option, error) {
	election, err := r.st.Q().GetElection(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	opts, err := r.st.Q().ListOptions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return election, opts, nil
}

// ListActive returns elections with is_active = true and
// start_at <= now <= end_at, ordered by start_at (spec §4.3 list_active).
func (r *Registry) ListActive(ctx context.Context) ([]*store.Election, error) {
	return r.st.Q().ListActiveElections(ctx, time.Now().UTC())
}

// IsOpen reports whether an election's voting window is currently open
// (spec §4.3 is_open): is_active and start_at <= now <= end_at.
func (r *Registry) IsOpen(ctx context.Context, id int64) (bool, error) {
	e, err := r.st.Q().GetElection(ctx, id)
	if err != nil {
		return false, err
	}
	return WindowOpen(e, time.Now().UTC()), nil
}

// WindowOpen is the pure open/closed predicate (spec §4.3 is_open), shared
// by C3's own IsOpen and C5's cast precondition pipeline (spec §4.5 step
// 2), which samples now once per transaction rather than calling back into
// C3.
func WindowOpen(e *store.Election, now time.Time) bool {
	return e.IsActive && !now.Before(e.StartAt) && !now.After(e.EndAt)
}

// RegenerateKey overwrites an election's signing key and irreversibly
// invalidates every still-unsigned BlindToken for it (spec §4.3
// regenerate_key): a token signed under the old key can never verify
// again, so leaving it UNSIGNED would only let a voter request a signature
// that is guaranteed to fail verification later.
func (r *Registry) RegenerateKey(ctx context.Context, electionID int64) (*store.Election, error) {
	priv, _, err := cryptopool.RunTyped(ctx, r.pool, func() (string, error) {
		priv, _, err := crypto.GenerateInstitutionKeys()
		return priv, err
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.KindKeyMaterial, err, "generate institution keypair")
	}

	var invalidated int64
	err = r.st.WithTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetElection(ctx, electionID); err != nil {
			return err
		}
		if err := q.SetSigningKey(ctx, electionID, priv); err != nil {
			return err
		}
		n, err := q.DeleteUnsignedTokensForElection(ctx, electionID)
		if err != nil {
			return err
		}
		invalidated = n
		return q.AppendAudit(ctx, "key_regenerated", &electionID, nil, "")
	})
	if err != nil {
		return nil, err
	}
	log.Warnw("election signing key regenerated", "election_id", electionID, "unsigned_tokens_invalidated", invalidated)
	return r.st.Q().GetElection(ctx, electionID)
}

// PublicKeyOf derives the SubjectPublicKeyInfo PEM of an election's signing
// key (spec §4.3 public_key_of / §6 GET /elections/{id}/public-key).
func (r *Registry) PublicKeyOf(ctx context.Context, electionID int64) (string, error) {
	e, err := r.st.Q().GetElection(ctx, electionID)
	if err != nil {
		return "", err
	}
	pub, err := cryptopool.RunTyped(ctx, r.pool, func() (string, error) {
		return crypto.PublicKeyFromPrivate(e.SigningKey)
	})
	if err != nil {
		return "", corerr.Wrap(corerr.KindKeyMaterial, err, "derive public key for election %d", electionID)
	}
	return pub, nil
}
