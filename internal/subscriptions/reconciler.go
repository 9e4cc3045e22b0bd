package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

// Outcome is what a reconciliation did to reach the desired state.
type Outcome int

const (
	Created Outcome = iota + 1
	AlreadyExisted
	Removed
	NotFollowing
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExisted:
		return "already_existed"
	case Removed:
		return "removed"
	case NotFollowing:
		return "not_following"
	default:
		return "unknown"
	}
}

// Reconciler keeps exactly zero or one subscription between a user and a feed.
type Reconciler struct{}

// EnsureFollowing makes sure the user follows the feed.
//
// Following a feed twice is not an error here: the second call reports [AlreadyExisted]
// and writes nothing.
func (Reconciler) EnsureFollowing(ctx context.Context, q feedhub.Queries, userID, feedID string) (Outcome, error) {
	if err := requireFeed(ctx, q, feedID); err != nil {
		return 0, err
	}

	_, err := q.Subscription(ctx, userID, feedID)
	if err == nil {
		return AlreadyExisted, nil
	}
	if !errors.Is(err, feedhub.ErrNotFound) {
		return 0, &feedhub.StoreError{Op: "looking up subscription", Err: err}
	}

	err = q.InsertSubscription(ctx, userID, feedID)
	switch {
	case errors.Is(err, feedhub.ErrConflict):
		// Lost a race to the same link, so it must be there now
		if _, err := q.Subscription(ctx, userID, feedID); err != nil {
			return 0, &feedhub.StoreError{Op: "re-reading subscription", Err: err}
		}
		return AlreadyExisted, nil
	case errors.Is(err, feedhub.ErrNotFound):
		return 0, fmt.Errorf("user %s: %w", userID, feedhub.ErrUserNotFound)
	case err != nil:
		return 0, &feedhub.StoreError{Op: "creating subscription", Err: err}
	}

	return Created, nil
}

// EnsureUnfollowing makes sure the user doesn't follow the feed, reporting [NotFollowing]
// when there was nothing to remove.
func (Reconciler) EnsureUnfollowing(ctx context.Context, q feedhub.Queries, userID, feedID string) (Outcome, error) {
	if err := requireFeed(ctx, q, feedID); err != nil {
		return 0, err
	}

	removed, err := q.DeleteSubscription(ctx, userID, feedID)
	if err != nil {
		return 0, &feedhub.StoreError{Op: "removing subscription", Err: err}
	}
	if !removed {
		return NotFollowing, nil
	}

	return Removed, nil
}

func requireFeed(ctx context.Context, q feedhub.FeedRepo, feedID string) error {
	_, err := q.Feed(ctx, feedID)
	if errors.Is(err, feedhub.ErrNotFound) {
		return fmt.Errorf("feed %s: %w", feedID, feedhub.ErrNotFound)
	}
	if err != nil {
		return &feedhub.StoreError{Op: "looking up feed", Err: err}
	}

	return nil
}
