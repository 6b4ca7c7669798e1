package collect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/digestengine/cache"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/prcontext"
)

func TestCollect_FallsBackToHTMLStrippedSummary(t *testing.T) {
	var feedURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>feed</title>
			<item><title>Entry one</title><link>https://blog.example.test/1</link>
			<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
			<pubDate>Mon, 15 Feb 2026 00:00:00 GMT</pubDate></item>
		</channel></rss>`)
	}))
	defer srv.Close()
	feedURL = srv.URL

	fc := NewFeedCollector(nil, nil)
	items, err := fc.Collect(t.Context(), model.FeedRef{URL: feedURL}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Entry one", items[0].Title)
	assert.Contains(t, items[0].Body, "Hello world")
	assert.NotContains(t, items[0].Body, "<b>")
}

func TestCollect_RedmineEntryFetchesJournals(t *testing.T) {
	trackerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/issues/99.json" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"issue": map[string]interface{}{
					"description": "root cause analysis",
					"journals": []map[string]interface{}{
						{"notes": "investigating", "user": map[string]interface{}{"name": "alice"}, "created_on": "2026-02-01"},
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer trackerSrv.Close()

	host := trackerSrv.Listener.Addr().String()
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>feed</title>
			<item><title>Issue #99</title><link>http://%s/issues/99</link>
			<description>summary</description>
			<pubDate>Mon, 15 Feb 2026 00:00:00 GMT</pubDate></item>
		</channel></rss>`, host)
	}))
	defer feedSrv.Close()

	fc := NewFeedCollector(nil, nil)
	items, err := fc.Collect(t.Context(), model.FeedRef{URL: feedSrv.URL}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Body, "root cause analysis")
	assert.Contains(t, items[0].Body, "investigating")
}

func TestCollect_CodeHostEntryDelegatesToIssueBodyFormatting(t *testing.T) {
	codeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget/issues/5":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number": 5, "title": "Memory leak", "body": "leaks on close", "state": "open",
				"updated_at": "2026-02-01T00:00:00Z",
			})
		case "/repos/acme/widget/issues/5/comments":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"body": "confirmed"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer codeSrv.Close()

	hc := httpclient.New(httpclient.Config{BaseURL: codeSrv.URL})
	fgc := forge.New(hc, cache.New(nil))
	pb := prcontext.New(fgc, false, 0)

	host := codeSrv.Listener.Addr().String()
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>feed</title>
			<item><title>acme/widget#5</title><link>http://%s/acme/widget/issues/5</link>
			<description>summary</description>
			<pubDate>Mon, 15 Feb 2026 00:00:00 GMT</pubDate></item>
		</channel></rss>`, host)
	}))
	defer feedSrv.Close()

	fc := NewFeedCollector(fgc, pb)
	items, err := fc.Collect(t.Context(), model.FeedRef{URL: feedSrv.URL}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Body, "leaks on close")
	assert.Contains(t, items[0].Body, "confirmed")
}

func TestCollect_EntriesBeforeCutoffAreDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<rss version="2.0"><channel><title>feed</title>
			<item><title>Old entry</title><link>https://blog.example.test/old</link>
			<description>stale</description>
			<pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate></item>
		</channel></rss>`)
	}))
	defer srv.Close()

	fc := NewFeedCollector(nil, nil)
	items, err := fc.Collect(t.Context(), model.FeedRef{URL: srv.URL}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseIntSafe(t *testing.T) {
	assert.Equal(t, 42, parseIntSafe("42"))
	assert.Equal(t, 0, parseIntSafe("x"))
}
