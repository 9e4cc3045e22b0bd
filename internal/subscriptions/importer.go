package subscriptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

// Importer follows every feed in a batch of entries for one user.
type Importer struct {
	registry   Registry
	reconciler Reconciler
}

func NewImporter(registry Registry) Importer {
	return Importer{registry: registry}
}

// Import registers and follows each entry in order.
//
// Entries are raw, as parsed: they're filtered and normalized here first. Entries already
// followed count as skipped. Any error aborts the batch, and the caller is expected to roll
// back whatever was written before it.
func (im Importer) Import(ctx context.Context, q feedhub.Queries, userID string, entries []feedhub.FeedInput) (feedhub.ImportSummary, error) {
	prepared, err := prepareEntries(entries)
	if err != nil {
		return feedhub.ImportSummary{}, err
	}

	return im.importPrepared(ctx, q, userID, prepared)
}

// importPrepared is [Importer.Import] over entries that already went through prepareEntries.
func (im Importer) importPrepared(ctx context.Context, q feedhub.Queries, userID string, prepared []feedhub.FeedInput) (feedhub.ImportSummary, error) {
	var summary feedhub.ImportSummary
	for _, entry := range prepared {
		feed, created, err := im.registry.ResolveOrCreate(ctx, q, entry)
		if err != nil {
			return feedhub.ImportSummary{}, err
		}
		if created {
			summary.FeedsCreated++
		}

		outcome, err := im.reconciler.EnsureFollowing(ctx, q, userID, feed.ID)
		if err != nil {
			return feedhub.ImportSummary{}, err
		}

		switch outcome {
		case Created:
			summary.Imported++
		case AlreadyExisted:
			summary.Skipped++
		}
	}

	return summary, nil
}

// prepareEntries drops the entries without a url and normalizes the rest.
//
// A bad entry rejects the whole batch, reported by its position in entries.
func prepareEntries(entries []feedhub.FeedInput) ([]feedhub.FeedInput, error) {
	prepared := make([]feedhub.FeedInput, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.URL) == "" {
			continue
		}

		// Names that are nothing but markup clean down to empty too
		normalized, err := entry.NormalizeWithDefaultName(feedhub.UntitledFeed)
		if err != nil {
			return nil, entryError(i, err)
		}
		prepared = append(prepared, normalized)
	}
	if len(prepared) == 0 {
		return nil, feedhub.ErrNoEntries
	}

	return prepared, nil
}

func entryError(i int, err error) error {
	if verr, ok := err.(*feedhub.ValidationError); ok {
		return &feedhub.ValidationError{
			Field:  fmt.Sprintf("entries[%d].%s", i, verr.Field),
			Reason: verr.Reason,
		}
	}

	return fmt.Errorf("error preparing entry %d: %w", i, err)
}
