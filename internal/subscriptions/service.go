// Package subscriptions reconciles what feeds a user wants to follow with what's stored.
//
// Every operation on [Service] runs as one unit of work: it either commits everything it
// wrote or nothing at all.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/feedhub/internal/feedhub"
	"github.com/jdholdren/feedhub/internal/metrics"
)

// Store is where units of work come from. Reads that don't need one go straight to it.
type Store interface {
	feedhub.Queries

	Begin(ctx context.Context) (feedhub.UnitOfWork, error)
}

type Options struct {
	// Reject profane names on feeds being registered
	ModerateFeedNames bool
	// How many times a unit of work is replayed when the store is busy
	MaxRetries uint64
	RetryBase  time.Duration
}

type Service struct {
	store      Store
	registry   Registry
	reconciler Reconciler
	importer   Importer
	opts       Options
}

func NewService(store Store, opts Options) *Service {
	if opts.RetryBase <= 0 {
		opts.RetryBase = 50 * time.Millisecond
	}

	registry := NewRegistry(opts.ModerateFeedNames)
	return &Service{
		store:    store,
		registry: registry,
		importer: NewImporter(registry),
		opts:     opts,
	}
}

// FollowFeed subscribes the user to an existing feed and returns it.
func (s *Service) FollowFeed(ctx context.Context, userID, feedID string) (feedhub.Feed, error) {
	var feed feedhub.Feed
	err := s.inUnit(ctx, "follow", func(ctx context.Context, q feedhub.Queries) error {
		outcome, err := s.reconciler.EnsureFollowing(ctx, q, userID, feedID)
		if err != nil {
			return err
		}
		if outcome == AlreadyExisted {
			return feedhub.ErrAlreadyFollowing
		}

		feed, err = q.Feed(ctx, feedID)
		if err != nil {
			return &feedhub.StoreError{Op: "reading followed feed", Err: err}
		}
		return nil
	})
	if err != nil {
		return feedhub.Feed{}, err
	}

	metrics.Reconciliations.WithLabelValues(Created.String()).Inc()
	slog.DebugContext(ctx, "followed feed", "user_id", userID, "feed_id", feedID)

	return feed, nil
}

// UnfollowFeed removes the user's subscription to the feed.
func (s *Service) UnfollowFeed(ctx context.Context, userID, feedID string) error {
	err := s.inUnit(ctx, "unfollow", func(ctx context.Context, q feedhub.Queries) error {
		outcome, err := s.reconciler.EnsureUnfollowing(ctx, q, userID, feedID)
		if err != nil {
			return err
		}
		if outcome == NotFollowing {
			return feedhub.ErrNotFollowing
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Reconciliations.WithLabelValues(Removed.String()).Inc()
	slog.DebugContext(ctx, "unfollowed feed", "user_id", userID, "feed_id", feedID)

	return nil
}

// CreateAndFollow registers the feed if nobody has yet, then follows it.
//
// When the feed is already registered its stored name and description win over the input's.
func (s *Service) CreateAndFollow(ctx context.Context, userID string, in feedhub.FeedInput) (feedhub.Feed, error) {
	// Bad input never opens a transaction
	in, err := in.Normalize()
	if err != nil {
		return feedhub.Feed{}, err
	}

	var (
		feed    feedhub.Feed
		created bool
	)
	err = s.inUnit(ctx, "create_and_follow", func(ctx context.Context, q feedhub.Queries) error {
		var err error
		feed, created, err = s.registry.ResolveOrCreate(ctx, q, in)
		if err != nil {
			return err
		}

		outcome, err := s.reconciler.EnsureFollowing(ctx, q, userID, feed.ID)
		if err != nil {
			return err
		}
		if outcome == AlreadyExisted {
			return feedhub.ErrAlreadyFollowing
		}
		return nil
	})
	if err != nil {
		return feedhub.Feed{}, err
	}

	if created {
		metrics.FeedsCreated.Inc()
	}
	metrics.Reconciliations.WithLabelValues(Created.String()).Inc()
	slog.InfoContext(ctx, "created and followed feed", "user_id", userID, "feed_id", feed.ID, "feed_created", created)

	return feed, nil
}

// ImportOPMLEntries follows every entry for the user in one go.
//
// Nothing is written unless every entry goes through.
func (s *Service) ImportOPMLEntries(ctx context.Context, userID string, entries []feedhub.FeedInput) (feedhub.ImportSummary, error) {
	// Bad entries never open a transaction
	prepared, err := prepareEntries(entries)
	if err != nil {
		return feedhub.ImportSummary{}, err
	}

	var summary feedhub.ImportSummary
	err = s.inUnit(ctx, "import", func(ctx context.Context, q feedhub.Queries) error {
		var err error
		summary, err = s.importer.importPrepared(ctx, q, userID, prepared)
		return err
	})
	if err != nil {
		return feedhub.ImportSummary{}, err
	}

	metrics.FeedsCreated.Add(float64(summary.FeedsCreated))
	metrics.RecordImport(summary.Imported, summary.Skipped)
	slog.InfoContext(ctx, "imported feeds",
		"user_id", userID,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
		"feeds_created", summary.FeedsCreated,
	)

	return summary, nil
}

// ListFollowedFeeds returns a page of the user's feeds, oldest subscription first, and how
// many they follow in total.
func (s *Service) ListFollowedFeeds(ctx context.Context, userID string, offset, limit int) ([]feedhub.Feed, int, error) {
	page, err := toPage(offset, limit)
	if err != nil {
		return nil, 0, err
	}

	feeds, err := s.store.FollowedFeeds(ctx, userID, page)
	if err != nil {
		return nil, 0, &feedhub.StoreError{Op: "listing followed feeds", Err: err}
	}
	total, err := s.store.CountFollowedFeeds(ctx, userID)
	if err != nil {
		return nil, 0, &feedhub.StoreError{Op: "counting followed feeds", Err: err}
	}

	return feeds, total, nil
}

// ListAllFeeds returns a page of every registered feed and the total registered.
func (s *Service) ListAllFeeds(ctx context.Context, offset, limit int) ([]feedhub.Feed, int, error) {
	page, err := toPage(offset, limit)
	if err != nil {
		return nil, 0, err
	}

	feeds, err := s.store.AllFeeds(ctx, page)
	if err != nil {
		return nil, 0, &feedhub.StoreError{Op: "listing feeds", Err: err}
	}
	total, err := s.store.CountFeeds(ctx)
	if err != nil {
		return nil, 0, &feedhub.StoreError{Op: "counting feeds", Err: err}
	}

	return feeds, total, nil
}

func (s *Service) Feed(ctx context.Context, feedID string) (feedhub.Feed, error) {
	feed, err := s.store.Feed(ctx, feedID)
	if errors.Is(err, feedhub.ErrNotFound) {
		return feedhub.Feed{}, fmt.Errorf("feed %s: %w", feedID, feedhub.ErrNotFound)
	}
	if err != nil {
		return feedhub.Feed{}, &feedhub.StoreError{Op: "looking up feed", Err: err}
	}

	return feed, nil
}

// EnsureUser returns the user with the email, creating them on first sight.
func (s *Service) EnsureUser(ctx context.Context, email string, githubID *string) (feedhub.User, error) {
	if email == "" {
		return feedhub.User{}, &feedhub.ValidationError{Field: "email", Reason: "is required"}
	}

	usr, err := s.store.EnsureUser(ctx, feedhub.User{Email: email, GithubID: githubID})
	if err != nil {
		return feedhub.User{}, &feedhub.StoreError{Op: "ensuring user", Err: err}
	}

	return usr, nil
}

func (s *Service) User(ctx context.Context, userID string) (feedhub.User, error) {
	usr, err := s.store.User(ctx, userID)
	if errors.Is(err, feedhub.ErrNotFound) {
		return feedhub.User{}, fmt.Errorf("user %s: %w", userID, feedhub.ErrUserNotFound)
	}
	if err != nil {
		return feedhub.User{}, &feedhub.StoreError{Op: "looking up user", Err: err}
	}

	return usr, nil
}

// inUnit runs fn in a unit of work, replaying the whole thing while the store reports busy.
func (s *Service) inUnit(ctx context.Context, operation string, fn func(context.Context, feedhub.Queries) error) error {
	start := time.Now()

	attempt := 0
	backoff := retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			metrics.UnitRetries.WithLabelValues(operation).Inc()
			slog.WarnContext(ctx, "retrying unit of work on busy store", "operation", operation, "attempt", attempt)
		}
		attempt++

		err := s.unit(ctx, fn)
		if errors.Is(err, feedhub.ErrBusy) {
			return retry.RetryableError(err)
		}
		return err
	})

	metrics.RecordUnit(operation, err, time.Since(start).Seconds())
	return err
}

func (s *Service) unit(ctx context.Context, fn func(context.Context, feedhub.Queries) error) error {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return &feedhub.StoreError{Op: "beginning unit of work", Err: err}
	}
	// No-op once committed
	defer func() {
		if err := uow.Rollback(); err != nil {
			slog.ErrorContext(ctx, "error rolling back unit of work", "err", err)
		}
	}()

	if err := fn(ctx, uow); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return &feedhub.StoreError{Op: "committing unit of work", Err: err}
	}

	return nil
}

func toPage(offset, limit int) (feedhub.Page, error) {
	if offset < 0 {
		return feedhub.Page{}, &feedhub.ValidationError{Field: "offset", Reason: "must not be negative"}
	}
	if limit < 1 {
		return feedhub.Page{}, &feedhub.ValidationError{Field: "limit", Reason: "must be at least 1"}
	}

	return feedhub.Page{Offset: uint64(offset), Limit: uint64(limit)}, nil
}
