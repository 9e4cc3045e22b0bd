package opml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

const subscriptions = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>My subscriptions</title></head>
  <body>
    <outline text="Go Blog" title="The Go Blog" type="rss" xmlUrl="https://go.dev/blog/feed.atom" htmlUrl="https://go.dev/blog"/>
    <outline text="Tech" title="Tech">
      <outline text="Hacker News" type="rss" xmlUrl="https://news.ycombinator.com/rss" description="Links for the curious"/>
      <outline text="Nested folder">
        <outline type="rss" xmlUrl="https://example.com/deep.xml"/>
      </outline>
    </outline>
    <outline text="Just a link" type="link" url="https://example.com"/>
    <outline text="Blank" xmlUrl="  "/>
    <outline text="Last" xmlUrl="https://example.com/last.xml"/>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(subscriptions))
	require.NoError(t, err)

	assert.Equal(t, []feedhub.FeedInput{
		{URL: "https://go.dev/blog/feed.atom", Name: "The Go Blog"},
		{URL: "https://news.ycombinator.com/rss", Name: "Hacker News", Description: "Links for the curious"},
		{URL: "https://example.com/deep.xml", Name: feedhub.UntitledFeed},
		{URL: "https://example.com/last.xml", Name: "Last"},
	}, entries)
}

func TestParse_NoFeeds(t *testing.T) {
	entries, err := Parse(strings.NewReader(`<opml version="2.0"><head/><body><outline text="Empty folder"/></body></opml>`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParse_Malformed(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":        "",
		"not xml":      "this is not xml",
		"unclosed tag": `<opml version="2.0"><body><outline xmlUrl="https://example.com/rss">`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))

			var perr *feedhub.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestParse_TooLarge(t *testing.T) {
	doc := `<opml version="2.0"><body>` + strings.Repeat(" ", MaxDocumentSize) + `</body></opml>`

	_, err := Parse(strings.NewReader(doc))
	var perr *feedhub.ParseError
	assert.ErrorAs(t, err, &perr)
}
