package subscriptions

import (
	"context"
	"errors"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

// Registry resolves feed urls to feeds, registering the ones it hasn't seen yet.
//
// It's the only thing that creates feeds, and it never makes two for the same normalized url.
type Registry struct {
	moderateNames bool
}

func NewRegistry(moderateNames bool) Registry {
	return Registry{moderateNames: moderateNames}
}

// ResolveOrCreate returns the feed registered at the input's url, creating it from the
// input when there isn't one. The bool reports whether it was created.
//
// The name and description only matter on creation: a feed that already exists is
// returned untouched, whatever metadata this caller brought along.
func (r Registry) ResolveOrCreate(ctx context.Context, q feedhub.FeedRepo, in feedhub.FeedInput) (feedhub.Feed, bool, error) {
	in, err := in.Normalize()
	if err != nil {
		return feedhub.Feed{}, false, err
	}

	feed, err := q.FeedByURL(ctx, in.URL)
	if err == nil {
		return feed, false, nil
	}
	if !errors.Is(err, feedhub.ErrNotFound) {
		return feedhub.Feed{}, false, &feedhub.StoreError{Op: "resolving feed", Err: err}
	}

	if r.moderateNames {
		if err := feedhub.ModerateName(in.Name); err != nil {
			return feedhub.Feed{}, false, err
		}
	}

	feed, err = q.InsertFeed(ctx, feedhub.Feed{
		URL:         in.URL,
		Name:        in.Name,
		Description: optional(in.Description),
	})
	if errors.Is(err, feedhub.ErrConflict) {
		// Someone else registered it between the lookup and the insert
		feed, err = q.FeedByURL(ctx, in.URL)
		if err != nil {
			return feedhub.Feed{}, false, &feedhub.StoreError{Op: "re-resolving feed", Err: err}
		}

		return feed, false, nil
	}
	if err != nil {
		return feedhub.Feed{}, false, &feedhub.StoreError{Op: "registering feed", Err: err}
	}

	return feed, true, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
