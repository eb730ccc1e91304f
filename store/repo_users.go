package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/civitas-vote/ballotauth/corerr"
)

// CreateUser inserts a new voter. It is not part of the voting protocol
// core (enrollment is spec §1's explicit out-of-scope "user enrollment and
// profile CRUD") but the store needs it to seed fixtures and tests for
// C3-C6, which all reference voter_id by foreign key.
func (q *Queries) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error) {
	res, err := q.ext.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)`,
		username, passwordHash, isAdmin)
	if err != nil {
		if isUniqueViolation(err, "users.username") {
			return nil, corerr.New(corerr.KindBadInput, "username %q already taken", username)
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, corerr.Wrap(corerr.KindInternal, err, "read inserted user id")
	}
	return q.GetUser(ctx, id)
}

// GetUser fetches a voter by id.
func (q *Queries) GetUser(ctx context.Context, id int64) (*User, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, username, password_hash, public_key, is_admin, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername fetches a voter by their login username.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := q.ext.QueryRowContext(ctx,
		`SELECT id, username, password_hash, public_key, is_admin, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// SetUserPublicKey persists a voter's optional published public key (spec
// §3), used only for client-side signature verification outside the core.
func (q *Queries) SetUserPublicKey(ctx context.Context, id int64, pubPEM string) error {
	res, err := q.ext.ExecContext(ctx, `UPDATE users SET public_key = ? WHERE id = ?`, pubPEM, id)
	if err != nil {
		return corerr.Wrap(corerr.KindInternal, err, "update user public key")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return corerr.New(corerr.KindNotFound, "user %d", id)
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var pubKey sql.NullString
	var createdAt time.Time
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &pubKey, &u.IsAdmin, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, corerr.New(corerr.KindNotFound, "user")
		}
		return nil, corerr.Wrap(corerr.KindInternal, err, "scan user")
	}
	if pubKey.Valid {
		u.PublicKey = &pubKey.String
	}
	u.CreatedAt = createdAt
	return &u, nil
}
