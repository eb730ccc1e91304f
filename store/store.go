// Package store is the persistence layer (C2): a thin repository
// abstraction over a transactional relational store, per spec §4.2. The
// teacher repo's own storage package is an embedded key-value abstraction
// over go.vocdoni.io/dvote/db; this spec needs relational semantics (six
// tables, multi-column unique constraints, atomic multi-row commits across
// Ballot/Receipt/BlindToken), so the repository *shape* is kept -- one
// logical unit of work per business operation, exactly one Commit/Rollback
// -- while the backing engine is database/sql over SQLite, migrated with
// goose (see DESIGN.md).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/civitas-vote/ballotauth/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the database handle. It is safe for concurrent use: every
// exported write path runs inside WithTx, and database/sql's connection
// pool already serializes access to the underlying SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (and, if necessary, creates and migrates) the SQLite database
// at dsn. dsn is passed verbatim to the sqlite3 driver, so callers can
// attach query parameters such as _foreign_keys=on (spec §3's cascades
// depend on foreign keys being enforced).
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// "database is locked" errors under concurrent casts and lets the
	// store's own unique-constraint checks be the sole serialization point
	// spec §4.2/§5 rely on.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogAdapter{})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// dbExec is satisfied by both *sql.DB and *sql.Tx, so Queries methods work
// identically whether or not they are running inside WithTx.
type dbExec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles the repository methods (repo_users.go, repo_elections.go, ...)
// bound to either the pooled *sql.DB (read-only, out-of-transaction calls
// via Store.Q) or a single *sql.Tx (inside WithTx).
type Queries struct {
	ext dbExec
}

// Q returns a Queries bound directly to the database, for reads that do not
// need transactional isolation (e.g. C6's tally, C3's list_active).
func (s *Store) Q() *Queries {
	return &Queries{ext: s.db}
}

// WithTx is the unit-of-work contract spec §4.2 calls for: fn runs inside a
// single transaction; if fn returns an error (or panics), the transaction
// is rolled back and the error (or panic) propagates; otherwise it commits.
// This is the core's sole atomicity boundary, most importantly for C5's
// cast_ballot (spec §4.5).
func (s *Store) WithTx(ctx context.Context, fn func(*Queries) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&Queries{ext: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warnw("rollback failed", "error", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type gooseLogAdapter struct{}

func (gooseLogAdapter) Fatal(v ...any)                 { log.Fatalf("%v", fmt.Sprint(v...)) }
func (gooseLogAdapter) Fatalf(format string, v ...any) { log.Fatalf(format, v...) }
func (gooseLogAdapter) Print(v ...any)                 { log.Infof("%v", fmt.Sprint(v...)) }
func (gooseLogAdapter) Println(v ...any)               { log.Infof("%v", fmt.Sprint(v...)) }
func (gooseLogAdapter) Printf(format string, v ...any) { log.Infof(format, v...) }
