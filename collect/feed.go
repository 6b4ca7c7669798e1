package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/prcontext"
)

const feedBodyCap = 4000

var redmineIssueRe = regexp.MustCompile(`(?i)^(https?://[^/]+)/issues/(\d+)$`)
var codeHostIssueRe = regexp.MustCompile(`(?i)^https?://[^/]+/([^/]+)/([^/]+)/(issues|pull)/(\d+)$`)

// FeedCollector parses RSS/Atom feeds and enriches each entry: Redmine-style
// trackers get a journals-aware JSON fetch, code-hosting issue/PR links
// delegate to the same meta+comments+PR-context path the issue collector
// uses, and everything else falls back to HTML-stripped summary text.
type FeedCollector struct {
	parser    *gofeed.Parser
	http      *http.Client
	forge     *forge.Client
	prBuilder *prcontext.Builder
}

// NewFeedCollector constructs a FeedCollector. forgeClient and prBuilder may
// be nil when the feed is known never to link into the configured
// code-hosting platform; in that case code-hosting URLs fall back to
// HTML-stripped text like any other entry.
func NewFeedCollector(forgeClient *forge.Client, prBuilder *prcontext.Builder) *FeedCollector {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return nil
		},
	}
	parser := gofeed.NewParser()
	parser.Client = client
	return &FeedCollector{parser: parser, http: client, forge: forgeClient, prBuilder: prBuilder}
}

// Collect parses feed.URL and returns enriched items published within
// cutoff.
func (fc *FeedCollector) Collect(ctx context.Context, feed model.FeedRef, cutoff time.Time) ([]model.Item, error) {
	parsed, err := fc.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, err
	}

	source := feed.DisplayName
	if source == "" {
		source = feed.URL
	}

	var items []model.Item
	for _, entry := range parsed.Items {
		publishedAt := entryTime(entry)
		if publishedAt.Before(cutoff) {
			continue
		}
		body := fc.enrich(ctx, entry)
		items = append(items, model.Item{
			Title:       entry.Title,
			URL:         entry.Link,
			PublishedAt: publishedAt,
			Body:        truncate(body, feedBodyCap),
			Source:      source,
		})
	}
	return items, nil
}

func entryTime(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return time.Time{}
}

func (fc *FeedCollector) enrich(ctx context.Context, entry *gofeed.Item) string {
	if m := redmineIssueRe.FindStringSubmatch(entry.Link); m != nil {
		if body, ok := fc.fetchRedmineIssue(ctx, m[1], m[2]); ok {
			return body
		}
	}
	if m := codeHostIssueRe.FindStringSubmatch(entry.Link); m != nil && fc.forge != nil {
		number := parseIntSafe(m[4])
		if body, ok := fc.fetchCodeHostEntry(ctx, model.RepoRef{Owner: m[1], Name: m[2]}, number); ok {
			return body
		}
	}
	return stripHTML(entry.Description + "\n" + entry.Content)
}

type redmineJournal struct {
	Notes string `json:"notes"`
	User  struct {
		Name string `json:"name"`
	} `json:"user"`
	CreatedOn string `json:"created_on"`
}

type redmineIssueEnvelope struct {
	Issue struct {
		Description string           `json:"description"`
		Journals    []redmineJournal `json:"journals"`
	} `json:"issue"`
}

func (fc *FeedCollector) fetchRedmineIssue(ctx context.Context, base, id string) (string, bool) {
	url := fmt.Sprintf("%s/issues/%s.json?include=journals", base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	resp, err := fc.http.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	var env redmineIssueEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", env.Issue.Description)
	for _, j := range env.Issue.Journals {
		if strings.TrimSpace(j.Notes) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%s): %s\n", j.User.Name, j.CreatedOn, j.Notes)
	}
	return b.String(), true
}

func (fc *FeedCollector) fetchCodeHostEntry(ctx context.Context, repo model.RepoRef, number int) (string, bool) {
	meta, found, err := fc.forge.FetchIssueMeta(ctx, repo, number)
	if err != nil || !found {
		return "", false
	}
	comments, err := fc.forge.FetchComments(ctx, repo, number, 0)
	if err != nil {
		comments = nil
	}
	var prContext string
	if fc.prBuilder != nil {
		if meta.IsPullRequest {
			prContext, _ = fc.prBuilder.BuildForSelfPR(ctx, repo, number)
		} else {
			prContext, _ = fc.prBuilder.BuildFromReferences(ctx, repo, meta.Body, comments)
		}
	}
	return formatIssueBody(meta, comments, prContext), true
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func parseIntSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
