package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

const userNamespace = "-usr"

// EnsureUser creates the user keyed by email, or returns the one that's already there.
//
// A github id is filled in on an existing user that doesn't have one yet.
func (r queries) EnsureUser(ctx context.Context, usr feedhub.User) (feedhub.User, error) {
	const q = `INSERT INTO users (id, email, github_id, created_at, updated_at)
	VALUES (:id, :email, :github_id, :created_at, :updated_at)
	ON CONFLICT (email) DO UPDATE SET github_id = COALESCE(users.github_id, excluded.github_id);`

	now := time.Now().UTC()
	usr.ID = uuid.NewString() + userNamespace
	usr.CreatedAt, usr.UpdatedAt = now, now
	if _, err := sqlx.NamedExecContext(ctx, r.ext, q, usr); err != nil {
		return feedhub.User{}, wrapErr("ensuring user", err)
	}

	return r.UserByEmail(ctx, usr.Email)
}

func (r queries) User(ctx context.Context, id string) (feedhub.User, error) {
	const q = `SELECT * FROM users WHERE id = ?;`

	var usr feedhub.User
	err := sqlx.GetContext(ctx, r.ext, &usr, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedhub.User{}, feedhub.ErrNotFound
	}
	if err != nil {
		return feedhub.User{}, wrapErr("fetching user", err)
	}

	return usr, nil
}

func (r queries) UserByEmail(ctx context.Context, email string) (feedhub.User, error) {
	const q = `SELECT * FROM users WHERE email = ?;`

	var usr feedhub.User
	err := sqlx.GetContext(ctx, r.ext, &usr, q, email)
	if errors.Is(err, sql.ErrNoRows) {
		return feedhub.User{}, feedhub.ErrNotFound
	}
	if err != nil {
		return feedhub.User{}, wrapErr("fetching user by email", err)
	}

	return usr, nil
}

// DeleteUser removes the user and, through the foreign keys, all of their subscriptions.
func (r queries) DeleteUser(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = ?;`

	if _, err := r.ext.ExecContext(ctx, q, id); err != nil {
		return wrapErr("deleting user", err)
	}

	return nil
}
