package store

import (
	"context"
	"database/sql"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateBallot inserts the anonymous cast-vote record (spec §3/§4.5 step 8).
// No column here references a voter -- that is the anonymity invariant
// (spec §8.1) this type enforces by construction. A vote_hash collision
// surfaces as corerr.KindDuplicateBallot.
func (q *Queries) CreateBallot(ctx context.Context, b *Ballot) (*Ballot, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO votes (election_id, option_id, unblinded_signature, vote_hash, encrypted_payload)
		 VALUES (?, ?, ?, ?, ?)`,
		b.ElectionID, b.OptionID, b.UnblindedSignature, b.VoteHash, b.EncryptedPayload)
	if err != nil {
		if isUniqueViolation(err, "votes.vote_hash") {
			return nil, corerr.New(corerr.KindDuplicateBallot, "vote_hash %s already recorded", b.VoteHash)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert ballot")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted ballot id")
	}
	return q.GetBallot(ctx, id)
}

// GetBallot fetches a ballot by id. This is never called with a voter
// identity in hand -- see HasVoteHash and tally.Aggregator for the only
// query shapes the rest of the system needs.
func (q *Queries) GetBallot(ctx context.Context, id int64) (*Ballot, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, election_id, option_id, unblinded_signature, vote_hash, encrypted_payload, created_at
		 FROM votes WHERE id = ?`, id)
	var b Ballot
	if err := row.Scan(&b.ID, &b.ElectionID, &b.OptionID, &b.UnblindedSignature, &b.VoteHash, &b.EncryptedPayload, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNotFound, "ballot %d", id)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan ballot")
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// HasVoteHash reports whether vote_hash is already recorded, the
// precondition check spec §4.5 step 5 asks for ahead of the insert (the
// insert's unique constraint remains the authoritative guard under races).
func (q *Queries) HasVoteHash(ctx context.Context, voteHash string) (bool, error) {
	var one int
	err := q.ext.QueryRowContext(ctx, `SELECT 1 FROM votes WHERE vote_hash = ?`, voteHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, corerr.Wrap(corerr.KindInternal, err, "check vote hash")
	}
	return true, nil
}

// TallyByElection counts ballots per option_id for an election (spec §4.6).
func (q *Queries) TallyByElection(ctx context.Context, electionID int64) (map[int64]int64, error) {
	rows, err := q.ext.QueryContext(ctx,
		`SELECT option_id, COUNT(*) FROM votes WHERE election_id = ? GROUP BY option_id`, electionID)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "tally ballots")
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var optionID, count int64
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, corerr.Wrap(corerr.KindInternal, err, "scan tally row")
		}
		counts[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "iterate tally")
	}
	return counts, nil
}
