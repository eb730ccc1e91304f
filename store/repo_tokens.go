package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateBlindToken inserts a new UNSIGNED BlindToken row. The
// (voter_id, election_id) unique index (spec §3) is the authoritative guard
// against a concurrent duplicate request; a race here surfaces as
// corerr.KindDuplicateToken, translated from the driver's constraint error.
func (q *Queries) CreateBlindToken(ctx context.Context, voterID, electionID int64, blindedHex string) (*BlindToken, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO blind_tokens (voter_id, election_id, blinded_nonce) VALUES (?, ?, ?)`,
		voterID, electionID, blindedHex)
	if err != nil {
		if isUniqueViolation(err, "blind_tokens.voter_id") {
			return nil, corerr.New(corerr.KindDuplicateToken, "voter %d already requested a token for election %d", voterID, electionID)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert blind token")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted token id")
	}
	return q.GetBlindToken(ctx, id)
}

// GetBlindToken fetches a BlindToken by id.
func (q *Queries) GetBlindToken(ctx context.Context, id int64) (*BlindToken, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, voter_id, election_id, blinded_nonce, signed_blob, used, created_at, used_at
		 FROM blind_tokens WHERE id = ?`, id)
	return scanBlindToken(row)
}

// GetBlindTokenByVoterElection fetches the (at most one) BlindToken for a
// (voter, election) pair.
func (q *Queries) GetBlindTokenByVoterElection(ctx context.Context, voterID, electionID int64) (*BlindToken, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, voter_id, election_id, blinded_nonce, signed_blob, used, created_at, used_at
		 FROM blind_tokens WHERE voter_id = ? AND election_id = ?`, voterID, electionID)
	return scanBlindToken(row)
}

// SetSignedBlob transitions a BlindToken from UNSIGNED to SIGNED (spec
// §4.4). It fails with corerr.KindBadInput ("already signed or missing") if
// signed_blob is already set or the token does not exist -- callers needing
// sign_token's administrative "already signed" semantics check
// BlindToken.Signed() before calling this.
func (q *Queries) SetSignedBlob(ctx context.Context, tokenID int64, blob string) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE blind_tokens SET signed_blob = ? WHERE id = ? AND signed_blob IS NULL`, blob, tokenID)
	if err != nil {
		return corerr.Wrap(corerr.KindInternal, err, "set signed blob")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return corerr.New(corerr.KindBadInput, "token %d already signed or missing", tokenID)
	}
	return nil
}

// MarkTokenUsed transitions a BlindToken from SIGNED to USED (spec §4.4/§4.5
// step 10). It is idempotency-checked: a second call on an already-used
// token affects zero rows and returns corerr.KindTokenSpent.
func (q *Queries) MarkTokenUsed(ctx context.Context, tokenID int64, usedAt time.Time) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE blind_tokens SET used = 1, used_at = ? WHERE id = ? AND used = 0 AND signed_blob IS NOT NULL`,
		usedAt.UTC(), tokenID)
	if err != nil {
		return corerr.Wrap(corerr.KindInternal, err, "mark token used")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return corerr.New(corerr.KindTokenSpent, "token %d already used or unsigned", tokenID)
	}
	return nil
}

// ListPendingTokens returns every still-UNSIGNED token, optionally scoped to
// one election (spec §4.4 pending_for).
func (q *Queries) ListPendingTokens(ctx context.Context, electionID *int64) ([]*BlindToken, error) {
	query := `SELECT id, voter_id, election_id, blinded_nonce, signed_blob, used, created_at, used_at
		 FROM blind_tokens WHERE signed_blob IS NULL`
	args := []any{}
	if electionID != nil {
		query += ` AND election_id = ?`
		args = append(args, *electionID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := q.ext.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "list pending tokens")
	}
	defer rows.Close()

	var out []*BlindToken
	for rows.Next() {
		t, err := scanBlindTokenRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "iterate pending tokens")
	}
	return out, nil
}

func scanBlindToken(row *sql.Row) (*BlindToken, error) {
	var t BlindToken
	var signedBlob sql.NullString
	var usedAtTime sql.NullTime
	if err := row.Scan(&t.ID, &t.VoterID, &t.ElectionID, &t.BlindedNonce, &signedBlob, &t.Used, &t.CreatedAt, &usedAtTime); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNoToken, "blind token")
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan blind token")
	}
	if signedBlob.Valid {
		t.SignedBlob = &signedBlob.String
	}
	if usedAtTime.Valid {
		ua := usedAtTime.Time.UTC()
		t.UsedAt = &ua
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func scanBlindTokenRows(rows *sql.Rows) (*BlindToken, error) {
	var t BlindToken
	var signedBlob sql.NullString
	var usedAtTime sql.NullTime
	if err := rows.Scan(&t.ID, &t.VoterID, &t.ElectionID, &t.BlindedNonce, &signedBlob, &t.Used, &t.CreatedAt, &usedAtTime); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan blind token")
	}
	if signedBlob.Valid {
		t.SignedBlob = &signedBlob.String
	}
	if usedAtTime.Valid {
		ua := usedAtTime.Time.UTC()
		t.UsedAt = &ua
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
