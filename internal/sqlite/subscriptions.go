package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

func (r queries) Subscription(ctx context.Context, userID string, feedID string) (feedhub.Subscription, error) {
	const q = `SELECT * FROM subscriptions WHERE user_id = ? AND feed_id = ?;`

	var sub feedhub.Subscription
	err := sqlx.GetContext(ctx, r.ext, &sub, q, userID, feedID)
	if errors.Is(err, sql.ErrNoRows) {
		return feedhub.Subscription{}, feedhub.ErrNotFound
	}
	if err != nil {
		return feedhub.Subscription{}, wrapErr("selecting subscription", err)
	}

	return sub, nil
}

// InsertSubscription links the user to the feed. An existing link is an [feedhub.ErrConflict].
func (r queries) InsertSubscription(ctx context.Context, userID string, feedID string) error {
	const q = `INSERT INTO subscriptions (user_id, feed_id, created_at) VALUES (?, ?, ?);`

	if _, err := r.ext.ExecContext(ctx, q, userID, feedID, time.Now().UTC()); err != nil {
		return wrapErr("creating subscription", err)
	}

	return nil
}

// DeleteSubscription unlinks the user from the feed, reporting whether there was a link to remove.
func (r queries) DeleteSubscription(ctx context.Context, userID string, feedID string) (bool, error) {
	const q = `DELETE FROM subscriptions WHERE user_id = ? AND feed_id = ?;`

	res, err := r.ext.ExecContext(ctx, q, userID, feedID)
	if err != nil {
		return false, wrapErr("deleting subscription", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("deleting subscription", err)
	}

	return n > 0, nil
}

// FollowedFeeds pages through the feeds a user follows, in the order they followed them.
func (r queries) FollowedFeeds(ctx context.Context, userID string, page feedhub.Page) ([]feedhub.Feed, error) {
	query, args, err := sq.Select("feeds.*").
		From("feeds").
		Join("subscriptions ON subscriptions.feed_id = feeds.id").
		Where(sq.Eq{"subscriptions.user_id": userID}).
		OrderBy("subscriptions.created_at", "feeds.id").
		Limit(page.Limit).
		Offset(page.Offset).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	feeds := []feedhub.Feed{}
	if err := sqlx.SelectContext(ctx, r.ext, &feeds, query, args...); err != nil {
		return nil, wrapErr("selecting followed feeds", err)
	}

	return feeds, nil
}

func (r queries) CountFollowedFeeds(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM subscriptions WHERE user_id = ?;`

	var count int
	if err := sqlx.GetContext(ctx, r.ext, &count, q, userID); err != nil {
		return 0, wrapErr("counting followed feeds", err)
	}

	return count, nil
}
