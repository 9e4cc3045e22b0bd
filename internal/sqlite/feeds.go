package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

const feedNamespace = "-fd"

func (r queries) Feed(ctx context.Context, id string) (feedhub.Feed, error) {
	const q = `SELECT * FROM feeds WHERE id = ?;`

	var feed feedhub.Feed
	err := sqlx.GetContext(ctx, r.ext, &feed, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedhub.Feed{}, feedhub.ErrNotFound
	}
	if err != nil {
		return feedhub.Feed{}, wrapErr("fetching feed", err)
	}

	return feed, nil
}

// FeedByURL looks a feed up by its normalized url.
func (r queries) FeedByURL(ctx context.Context, url string) (feedhub.Feed, error) {
	const q = `SELECT * FROM feeds WHERE url = ?;`

	var feed feedhub.Feed
	err := sqlx.GetContext(ctx, r.ext, &feed, q, url)
	if errors.Is(err, sql.ErrNoRows) {
		return feedhub.Feed{}, feedhub.ErrNotFound
	}
	if err != nil {
		return feedhub.Feed{}, wrapErr("fetching feed by url", err)
	}

	return feed, nil
}

// InsertFeed stores a new feed with a fresh id. A url that's already registered is an
// [feedhub.ErrConflict].
func (r queries) InsertFeed(ctx context.Context, f feedhub.Feed) (feedhub.Feed, error) {
	const q = `INSERT INTO feeds (id, url, name, description, created_at, updated_at)
	VALUES (:id, :url, :name, :description, :created_at, :updated_at);`

	now := time.Now().UTC()
	f.ID = fmt.Sprintf("%s%s", uuid.NewString(), feedNamespace)
	f.CreatedAt, f.UpdatedAt = now, now
	if _, err := sqlx.NamedExecContext(ctx, r.ext, q, f); err != nil {
		return feedhub.Feed{}, wrapErr("inserting feed", err)
	}

	return r.Feed(ctx, f.ID)
}

// DeleteFeed removes the feed along with everyone's subscription to it.
func (r queries) DeleteFeed(ctx context.Context, id string) error {
	const q = `DELETE FROM feeds WHERE id = ?;`

	if _, err := r.ext.ExecContext(ctx, q, id); err != nil {
		return wrapErr("deleting feed", err)
	}

	return nil
}

// AllFeeds pages through every registered feed, oldest first.
func (r queries) AllFeeds(ctx context.Context, page feedhub.Page) ([]feedhub.Feed, error) {
	query, args, err := sq.Select("*").
		From("feeds").
		OrderBy("created_at", "id").
		Limit(page.Limit).
		Offset(page.Offset).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	feeds := []feedhub.Feed{}
	if err := sqlx.SelectContext(ctx, r.ext, &feeds, query, args...); err != nil {
		return nil, wrapErr("selecting feeds", err)
	}

	return feeds, nil
}

// CountFeeds returns the total number of feeds in the database.
func (r queries) CountFeeds(ctx context.Context) (int, error) {
	const q = "SELECT COUNT(*) FROM feeds;"

	var count int
	if err := sqlx.GetContext(ctx, r.ext, &count, q); err != nil {
		return 0, wrapErr("counting feeds", err)
	}

	return count, nil
}
