// Package feed reads EDGAR's "current events" Atom feed and turns its
// entries into filing references the pipeline can process like index lines.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/form13f/internal/sec"
)

// DefaultURL is EDGAR's latest-filings endpoint.
const DefaultURL = "https://www.sec.gov/cgi-bin/browse-edgar"

// DefaultCount is the number of entries requested; EDGAR caps it at 100.
const DefaultCount = 100

// Getter retrieves a URL.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Feed fetches and parses the current-filings feed.
type Feed struct {
	getter  Getter
	baseURL string
	parser  *gofeed.Parser
}

// New creates a Feed. An empty baseURL selects DefaultURL.
func New(g Getter, baseURL string) *Feed {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Feed{
		getter:  g,
		baseURL: baseURL,
		parser:  gofeed.NewParser(),
	}
}

// URL builds the feed query for formType.
func (f *Feed) URL(formType string, count int) string {
	q := url.Values{}
	q.Set("action", "getcurrent")
	q.Set("type", formType)
	q.Set("company", "")
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("start", "0")
	q.Set("count", strconv.Itoa(count))
	q.Set("output", "atom")
	return f.baseURL + "?" + q.Encode()
}

// Filings fetches the feed and returns the references for formType in
// feed order (newest first).
func (f *Feed) Filings(ctx context.Context, formType string) (iter.Seq[sec.Filing], error) {
	raw, err := f.getter.Get(ctx, f.URL(formType, DefaultCount))
	if err != nil {
		return nil, fmt.Errorf("fetch current filings feed: %w", err)
	}
	parsed, err := f.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse current filings feed: %w", err)
	}
	return Entries(parsed, formType), nil
}

// "13F-HR - Acme Capital Partners (0000123456) (Filer)"
var titleRe = regexp.MustCompile(`^\s*(\S+)\s+-\s+(.+?)\s+\((\d+)\)\s+\(([^)]+)\)\s*$`)

// ".../edgar/data/123456/000012345621000001/0000123456-21-000001-index.htm"
var linkRe = regexp.MustCompile(`edgar/data/(\d+)/\d+/([0-9-]+)-index\.html?$`)

// Entries converts feed items to filings. Only entries whose form
// contains formType and whose role is Filer are kept.
func Entries(parsed *gofeed.Feed, formType string) iter.Seq[sec.Filing] {
	return func(yield func(sec.Filing) bool) {
		for _, item := range parsed.Items {
			f, ok := entry(item, formType)
			if !ok {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func entry(item *gofeed.Item, formType string) (sec.Filing, bool) {
	m := titleRe.FindStringSubmatch(item.Title)
	if m == nil || !strings.Contains(m[1], formType) || !strings.EqualFold(m[4], "Filer") {
		return sec.Filing{}, false
	}
	l := linkRe.FindStringSubmatch(item.Link)
	if l == nil {
		return sec.Filing{}, false
	}
	return sec.Filing{
		CIK:  m[3],
		Name: m[2],
		Path: fmt.Sprintf("edgar/data/%s/%s.txt", l[1], l[2]),
	}, true
}
