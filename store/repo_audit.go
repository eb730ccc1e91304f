package store

import (
	"context"

	"github.com/civitas-vote/ballotauth/corerr"
)

// AppendAudit records one state-transition event (SPEC_FULL.md §3's
// audit_log supplement, grounded in original_source's dropped audit model).
// A ballot-cast event MUST be logged with voterID nil -- this package never
// accepts a (voterID, electionID, ballotID) triple together, preserving the
// anonymity invariant (spec §8.1) for this table too.
func (q *Queries) AppendAudit(ctx context.Context, eventKind string, electionID, voterID *int64, detail string) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO audit_log (event_kind, election_id, voter_id, detail) VALUES (?, ?, ?, ?)`,
		eventKind, electionID, voterID, detail)
	if err != nil {
		return corerr.Wrap(corerr.KindInternal, err, "append audit log")
	}
	return nil
}
