// Package opml reads feed subscriptions out of OPML documents.
package opml

import (
	"fmt"
	"io"
	"strings"

	"github.com/gilliek/go-opml/opml"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

// MaxDocumentSize bounds how much of an upload is read.
const MaxDocumentSize = 10 << 20

// Parse reads an OPML document and returns an entry per outline that points at a feed.
//
// Outlines are walked depth first in document order, so feeds nested in folders come right
// after their folder. Outlines without an xmlUrl are folders or links and are left out.
func Parse(r io.Reader) ([]feedhub.FeedInput, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading opml: %w", err)
	}
	if len(b) > MaxDocumentSize {
		return nil, &feedhub.ParseError{Err: fmt.Errorf("document is larger than %d bytes", MaxDocumentSize)}
	}

	doc, err := opml.NewOPML(b)
	if err != nil {
		return nil, &feedhub.ParseError{Err: err}
	}

	entries := []feedhub.FeedInput{}
	walk(doc.Body.Outlines, func(o opml.Outline) {
		if strings.TrimSpace(o.XMLURL) == "" {
			return
		}

		entries = append(entries, feedhub.FeedInput{
			URL:         o.XMLURL,
			Name:        name(o),
			Description: o.Description,
		})
	})

	return entries, nil
}

func walk(outlines []opml.Outline, fn func(opml.Outline)) {
	for _, o := range outlines {
		fn(o)
		walk(o.Outlines, fn)
	}
}

func name(o opml.Outline) string {
	switch {
	case strings.TrimSpace(o.Title) != "":
		return o.Title
	case strings.TrimSpace(o.Text) != "":
		return o.Text
	default:
		return feedhub.UntitledFeed
	}
}
