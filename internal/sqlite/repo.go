// Package sqlite is the entity store: users, feeds, and the subscriptions between them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

var (
	_ feedhub.Queries    = Repo{}
	_ feedhub.UnitOfWork = Tx{}
)

// Open connects to the database file at path.
//
// Transactions take the write lock up front so that two writers never both read a missing
// row and then race to insert it. Foreign keys are turned on for every connection, which is
// what makes deleting a user or feed cascade to its subscriptions.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}

	return dbx, nil
}

// queries holds every statement and runs them against either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

// Repo runs queries straight against the pool, each in its own implicit transaction.
type Repo struct {
	queries

	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{queries: queries{ext: db}, db: db}
}

// Begin starts a unit of work. The caller owns ending it.
func (r Repo) Begin(ctx context.Context) (feedhub.UnitOfWork, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapErr("beginning transaction", err)
	}

	return Tx{queries: queries{ext: tx}, tx: tx}, nil
}

// Tx is a unit of work backed by a sql transaction.
type Tx struct {
	queries

	tx *sqlx.Tx
}

func (t Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return wrapErr("committing transaction", err)
	}

	return nil
}

func (t Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}

	return nil
}

// Ping checks the database can still be reached.
func (r Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("error pinging database: %w", err)
	}

	return nil
}
