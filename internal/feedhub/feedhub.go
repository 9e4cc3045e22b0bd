// Package feedhub holds the domain types shared by the store, the reconciliation core, and
// the transports in front of them.
package feedhub

import (
	"context"
	"time"
)

type (
	// User is an account that can follow feeds.
	User struct {
		ID        string    `db:"id"`
		Email     string    `db:"email"`
		GithubID  *string   `db:"github_id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	// Feed is a registered content source, unique by its normalized URL.
	Feed struct {
		ID          string    `db:"id"`
		URL         string    `db:"url"`
		Name        string    `db:"name"`
		Description *string   `db:"description"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	// Subscription links a user to a feed. The pair is its identity.
	Subscription struct {
		UserID    string    `db:"user_id"`
		FeedID    string    `db:"feed_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	// FeedInput is the metadata a caller supplies when referencing a feed by URL.
	//
	// It's used both for single creates and for entries parsed out of an OPML document.
	FeedInput struct {
		URL         string `json:"url" validate:"required,max=2083"`
		Name        string `json:"name" validate:"required,max=255"`
		Description string `json:"description" validate:"max=500"`
	}

	// ImportSummary is the result of a bulk import.
	ImportSummary struct {
		Imported int
		Skipped  int
		// How many of the imported feeds were registered by this import
		FeedsCreated int
	}

	// Page bounds a listing.
	Page struct {
		Offset uint64
		Limit  uint64
	}
)

// Holds the feed methods on the store.
type FeedRepo interface {
	Feed(ctx context.Context, id string) (Feed, error)
	FeedByURL(ctx context.Context, url string) (Feed, error)
	InsertFeed(ctx context.Context, feed Feed) (Feed, error)
	DeleteFeed(ctx context.Context, id string) error
	AllFeeds(ctx context.Context, page Page) ([]Feed, error)
	CountFeeds(ctx context.Context) (int, error)
}

// Holds the user <-> feed link methods on the store.
type SubscriptionRepo interface {
	Subscription(ctx context.Context, userID, feedID string) (Subscription, error)
	InsertSubscription(ctx context.Context, userID, feedID string) error
	DeleteSubscription(ctx context.Context, userID, feedID string) (bool, error)
	FollowedFeeds(ctx context.Context, userID string, page Page) ([]Feed, error)
	CountFollowedFeeds(ctx context.Context, userID string) (int, error)
}

type UserRepo interface {
	EnsureUser(ctx context.Context, usr User) (User, error)
	User(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Queries is everything that can be read or written within a unit of work.
type Queries interface {
	FeedRepo
	SubscriptionRepo
	UserRepo
}

// UnitOfWork is a single transaction against the store.
//
// Whoever begins it must end it with Commit or Rollback. Rollback after a Commit is a no-op.
type UnitOfWork interface {
	Queries

	Commit() error
	Rollback() error
}
