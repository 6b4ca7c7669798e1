package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/digestengine/cache"
	"github.com/evalgo/digestengine/collect"
	"github.com/evalgo/digestengine/config"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/prcontext"
)

func testOptions() config.RuntimeOptions {
	return config.RuntimeOptions{
		LookbackDays:      7,
		MinImportance:     config.ImportanceMedium,
		CollectParallel:   true,
		MaxCollectThreads: 4,
		MaxRepoThreads:    3,
	}
}

func item(title, source, url string, publishedAt time.Time, body string) model.Item {
	return model.Item{Title: title, Source: source, URL: url, PublishedAt: publishedAt, Body: body}
}

func TestDeduplicateReleaseVersions_KeepsHighestPriorityInBucket(t *testing.T) {
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []model.Item{
		item("widget v1.2.0 released", "acme/widget", "https://github.com/acme/widget/releases/v1.2.0", t1, "short"),
		item("widget v1.2.0 released", "acme/widget", "https://www.npmjs.com/package/widget/v/1.2.0", t1, "much longer description of the same release"),
	}
	out := deduplicateReleaseVersions(items)
	assert.Len(t, out, 1)
	assert.Contains(t, out[0].URL, "github.com")
}

func TestDeduplicateReleaseVersions_TiebreaksOnBodyLengthThenPublishedAt(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []model.Item{
		item("widget v1.2.0 released", "a", "https://example.test/a", older, "short"),
		item("widget v1.2.0 released", "a", "https://example.test/b", newer, "short"),
	}
	out := deduplicateReleaseVersions(items)
	assert.Len(t, out, 1)
	assert.Equal(t, "https://example.test/b", out[0].URL)
}

func TestDeduplicateReleaseVersions_PassesThroughNonReleaseTitles(t *testing.T) {
	t1 := time.Now()
	items := []model.Item{
		item("[Issue] Crash on startup", "acme/widget", "https://example.test/1", t1, "x"),
		item("widget v1.0.0 released", "acme/widget", "https://example.test/2", t1, "y"),
	}
	out := deduplicateReleaseVersions(items)
	assert.Len(t, out, 2)
}

func TestSortItems_OrdersByPublishedAtTitleSourceURL(t *testing.T) {
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []model.Item{
		item("B", "src", "https://example.test/b", t2, ""),
		item("A", "src", "https://example.test/a", t1, ""),
		item("C", "src", "https://example.test/c", t1, ""),
	}
	sortItems(items)
	assert.Equal(t, []string{"A", "C", "B"}, []string{items[0].Title, items[1].Title, items[2].Title})
}

func TestSortItems_TiebreaksOnTitleThenSourceThenURL(t *testing.T) {
	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []model.Item{
		item("same", "zeta", "https://example.test/1", t1, ""),
		item("same", "alpha", "https://example.test/2", t1, ""),
	}
	sortItems(items)
	assert.Equal(t, "alpha", items[0].Source)
}

func TestReleaseDedupeKey_MatchesExpectedShape(t *testing.T) {
	key, ok := releaseDedupeKey(item("widget v1.2.0 released", "", "", time.Time{}, ""))
	assert.True(t, ok)
	assert.Equal(t, "widget@v1.2.0@release", key)

	_, ok = releaseDedupeKey(item("widget v1.2.0 published", "", "", time.Time{}, ""))
	assert.False(t, ok)
}

func TestRunCategory_EmptyConfigReturnsNilAndNoData(t *testing.T) {
	co := New(nil, nil, nil, nil, nil, nil)
	out := co.RunCategory(t.Context(), model.CategoryConfig{Name: model.CategoryBackend}, testOptions(), time.Now())
	assert.Nil(t, out)
}

func TestRunCategory_ConcurrentMatchesSequential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/releases"):
			repo := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/repos/"), "/releases")
			tag := "v1.0.0"
			if repo == "acme/beta" {
				tag = "v2.0.0"
			}
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"tag_name": tag, "published_at": "2026-02-01T00:00:00Z", "body": "release notes"},
			})
		case strings.HasSuffix(r.URL.Path, "/issues"):
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := model.CategoryConfig{
		Name: model.CategoryBackend,
		Repos: []model.RepoRef{
			{Owner: "acme", Name: "alpha"},
			{Owner: "acme", Name: "beta"},
			{Owner: "acme", Name: "gamma"},
		},
	}
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	buildOrchestrator := func() *CategoryOrchestrator {
		hc := httpclient.New(httpclient.Config{BaseURL: srv.URL})
		fc := forge.New(hc, cache.New(nil))
		pb := prcontext.New(fc, false, 0)
		return New(collect.NewReleaseCollector(fc, pb, 0), collect.NewIssueCollector(fc, pb, 0), nil, nil, nil, nil)
	}

	concurrentOpts := testOptions()
	sequentialOpts := testOptions()
	sequentialOpts.CollectParallel = false

	concurrent := buildOrchestrator().RunCategory(t.Context(), cfg, concurrentOpts, cutoff)
	sequential := buildOrchestrator().RunCategory(t.Context(), cfg, sequentialOpts, cutoff)

	require.Equal(t, len(sequential), len(concurrent))
	for i := range sequential {
		assert.Equal(t, sequential[i].Title, concurrent[i].Title)
		assert.Equal(t, sequential[i].URL, concurrent[i].URL)
	}
}
