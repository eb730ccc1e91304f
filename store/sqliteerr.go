package store

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure, optionally on the named column/index (matched against the
// driver's error text, e.g. "UNIQUE constraint failed: blind_tokens.voter_id,
// blind_tokens.election_id"). Repositories use this to translate a raced
// insert into the spec §7 error kind the caller actually asked about,
// rather than a generic Internal error.
func isUniqueViolation(err error, col string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	if sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	if col == "" {
		return true
	}
	return strings.Contains(sqliteErr.Error(), col)
}
