package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateElection inserts an election row. e.ID is ignored; the returned
// Election carries the assigned id and CreatedAt.
func (q *Queries) CreateElection(ctx context.Context, e *Election) (*Election, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO elections (title, description, start_at, end_at, is_active, signing_key)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.StartAt.UTC(), e.EndAt.UTC(), e.IsActive, e.SigningKey)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert election")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted election id")
	}
	return q.GetElection(ctx, id)
}

// GetElection fetches an election by id.
func (q *Queries) GetElection(ctx context.Context, id int64) (*Election, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, title, description, start_at, end_at, is_active, signing_key, created_at
		 FROM elections WHERE id = ?`, id)
	return scanElection(row)
}

// ListActiveElections returns elections with is_active = true and
// start_at <= now <= end_at, ordered by start_at, per spec §4.3 list_active.
func (q *Queries) ListActiveElections(ctx context.Context, now time.Time) ([]*Election, error) {
	rows, err := q.ext.QueryContext(ctx,
		`SELECT id, title, description, start_at, end_at, is_active, signing_key, created_at
		 FROM elections
		 WHERE is_active = 1 AND start_at <= ? AND end_at >= ?
		 ORDER BY start_at ASC`, now.UTC(), now.UTC())
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "list active elections")
	}
	defer rows.Close()

	var out []*Election
	for rows.Next() {
		e, err := scanElectionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "iterate active elections")
	}
	return out, nil
}

// SetSigningKey overwrites an election's signing key (spec §4.3
// regenerate_key). Callers are responsible for invalidating unsigned
// tokens; see election.Registry.RegenerateKey.
func (q *Queries) SetSigningKey(ctx context.Context, id int64, pem string) error {
	res, err := q.ext.ExecContext(ctx, `UPDATE elections SET signing_key = ? WHERE id = ?`, pem, id)
	if err != nil {
		return corerr.Wrap(corerr.KindInternal, err, "update signing key")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return corerr.New(corerr.KindNotFound, "election %d", id)
	}
	return nil
}

// DeleteUnsignedTokensForElection removes every still-UNSIGNED BlindToken
// for an election, the cascade regenerate_key triggers (spec §4.3/§4.4):
// a token signed under the old key can never verify again.
func (q *Queries) DeleteUnsignedTokensForElection(ctx context.Context, electionID int64) (int64, error) {
	res, err := q.ext.ExecContext(ctx,
		`DELETE FROM blind_tokens WHERE election_id = ? AND signed_blob IS NULL AND used = 0`, electionID)
	if err != nil {
		return 0, corerr.Wrap(corerr.KindInternal, err, "invalidate unsigned tokens")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanElection(row *sql.Row) (*Election, error) {
	var e Election
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartAt, &e.EndAt, &e.IsActive, &e.SigningKey, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNotFound, "election")
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan election")
	}
	e.StartAt, e.EndAt, e.CreatedAt = e.StartAt.UTC(), e.EndAt.UTC(), e.CreatedAt.UTC()
	return &e, nil
}

func scanElectionRows(rows *sql.Rows) (*Election, error) {
	var e Election
	if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.StartAt, &e.EndAt, &e.IsActive, &e.SigningKey, &e.CreatedAt); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan election")
	}
	e.StartAt, e.EndAt, e.CreatedAt = e.StartAt.UTC(), e.EndAt.UTC(), e.CreatedAt.UTC()
	return &e, nil
}
