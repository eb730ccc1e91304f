package store

import (
	"context"
	"database/sql"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateOption inserts one ballot option. The election-registry layer
// (package election) is responsible for the case-insensitive duplicate-text
// and duplicate-order checks spec §4.3 requires before calling this.
func (q *Queries) CreateOption(ctx context.Context, electionID int64, text string, order int) (*Option, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO options (election_id, option_text, option_order) VALUES (?, ?, ?)`,
		electionID, text, order)
	if err != nil {
		if isUniqueViolation(err, "options.election_id") {
			return nil, corerr.New(corerr.KindBadInput, "duplicate option_order %d in election %d", order, electionID)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert option")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted option id")
	}
	return q.GetOption(ctx, id)
}

// GetOption fetches one option by id.
func (q *Queries) GetOption(ctx context.Context, id int64) (*Option, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, election_id, option_text, option_order FROM options WHERE id = ?`, id)
	var o Option
	if err := row.Scan(&o.ID, &o.ElectionID, &o.OptionText, &o.OptionOrder); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNotFound, "option %d", id)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan option")
	}
	return &o, nil
}

// ListOptions returns every option of an election, ordered by option_order
// (spec §4.6's tally ordering and spec §4.3's get_with_options both rely on
// this order).
func (q *Queries) ListOptions(ctx context.Context, electionID int64) ([]*Option, error) {
	rows, err := q.ext.QueryContext(ctx,
		`SELECT id, election_id, option_text, option_order FROM options
		 WHERE election_id = ? ORDER BY option_order ASC`, electionID)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "list options")
	}
	defer rows.Close()

	var out []*Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.ElectionID, &o.OptionText, &o.OptionOrder); err != nil {
			return nil, corerr.Wrap(corerr.KindInternal, err, "scan option")
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "iterate options")
	}
	return out, nil
}
