package store

import (
	"context"
	"database/sql"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateReceipt inserts the voter-linked "has voted" witness (spec §3/§4.5
// step 9). The (voter_id, election_id) unique index is the uniqueness
// oracle for "has this voter already voted" -- Ballots are never queried
// per voter, per spec §3's note that doing so would break anonymity.
func (q *Queries) CreateReceipt(ctx context.Context, r *Receipt) (*Receipt, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO voting_receipts (voter_id, election_id, receipt_hash, digital_signature)
		 VALUES (?, ?, ?, ?)`,
		r.VoterID, r.ElectionID, r.ReceiptHash, r.DigitalSignature)
	if err != nil {
		if isUniqueViolation(err, "voting_receipts.voter_id") {
			return nil, corerr.New(corerr.KindAlreadyVoted, "voter %d already voted in election %d", r.VoterID, r.ElectionID)
		}
		if isUniqueViolation(err, "voting_receipts.receipt_hash") {
			return nil, corerr.New(corerr.KindInternal, "receipt_hash collision")
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert receipt")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted receipt id")
	}
	return q.GetReceipt(ctx, id)
}

// GetReceipt fetches a receipt by id.
func (q *Queries) GetReceipt(ctx context.Context, id int64) (*Receipt, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, voter_id, election_id, receipt_hash, digital_signature, voted_at
		 FROM voting_receipts WHERE id = ?`, id)
	return scanReceipt(row)
}

// GetReceiptByVoterElection fetches the (at most one) receipt for a
// (voter, election) pair, used by /voting/receipts/me and /voting/has-voted
// (spec §6).
func (q *Queries) GetReceiptByVoterElection(ctx context.Context, voterID, electionID int64) (*Receipt, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, voter_id, election_id, receipt_hash, digital_signature, voted_at
		 FROM voting_receipts WHERE voter_id = ? AND election_id = ?`, voterID, electionID)
	return scanReceipt(row)
}

// HasVoted reports whether a receipt already exists for (voter, election),
// the precondition check spec §4.5 step 4 asks for.
func (q *Queries) HasVoted(ctx context.Context, voterID, electionID int64) (bool, error) {
	var one int
	err := q.ext.QueryRowContext(ctx,
		`SELECT 1 FROM voting_receipts WHERE voter_id = ? AND election_id = ?`, voterID, electionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, corerr.Wrap(corerr.KindInternal, err, "check has-voted")
	}
	return true, nil
}

func scanReceipt(row *sql.Row) (*Receipt, error) {
	var r Receipt
	if err := row.Scan(&r.ID, &r.VoterID, &r.ElectionID, &r.ReceiptHash, &r.DigitalSignature, &r.VotedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNotFound, "receipt")
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan receipt")
	}
	r.VotedAt = r.VotedAt.UTC()
	return &r, nil
}
