package collect

import (
	"encoding/json"
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

func newReleaseFixtures(t *testing.T, handler http.HandlerFunc) (*ReleaseCollector, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	hc := httpclient.New(httpclient.Config{BaseURL: srv.URL})
	fc := forge.New(hc, cache.New(nil))
	pb := prcontext.New(fc, true, 0)
	return NewReleaseCollector(fc, pb, 0), srv
}

// TestCollect_S1SelectsLatestReleaseWithComparePRContext replicates the
// seed scenario: two releases in window, v1.2.0 newer than v1.1.0, and the
// release body references a PR by bracket notation.
func TestCollect_S1SelectsLatestReleaseWithComparePRContext(t *testing.T) {
	cc, srv := newReleaseFixtures(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/acme/widget/releases":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"tag_name": "v1.2.0", "name": "v1.2.0", "body": "fixes [#42]", "published_at": "2026-02-15T00:00:00Z", "html_url": "https://example.test/acme/widget/releases/v1.2.0"},
				{"tag_name": "v1.1.0", "name": "v1.1.0", "body": "initial", "published_at": "2026-01-01T00:00:00Z"},
			})
		case r.URL.Path == "/repos/acme/widget/compare/v1.1.0...v1.2.0":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"ahead_by": 3, "commits": []map[string]interface{}{{}, {}, {}},
				"files":    []map[string]interface{}{{"additions": 10, "deletions": 2}},
				"html_url": "https://example.test/acme/widget/compare/v1.1.0...v1.2.0",
			})
		case r.URL.Path == "/repos/acme/widget/issues/42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number": 42, "title": "Fix widget", "state": "closed",
				"pull_request": map[string]interface{}{}, "updated_at": "2026-02-14T00:00:00Z",
			})
		case r.URL.Path == "/repos/acme/widget/pulls/42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"base": map[string]interface{}{"ref": "main"}, "head": map[string]interface{}{"ref": "fix-widget"},
				"commits": 2, "additions": 10, "deletions": 2, "changed_files": 1,
			})
		case r.URL.Path == "/repos/acme/widget/pulls/42/files":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"filename": "widget.go"}})
		case r.URL.Path == "/repos/acme/widget/contents/CHANGELOG.md":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer srv.Close()

	repo := model.RepoRef{Owner: "acme", Name: "widget"}
	item, err := cc.Collect(t.Context(), repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Contains(t, item.Title, "v1.2.0")
	assert.Contains(t, item.Body, "Compare: v1.1.0...v1.2.0")
	assert.Contains(t, item.Body, "PR #42")
}

func TestCollect_NoCandidatesInWindowYieldsNil(t *testing.T) {
	cc, srv := newReleaseFixtures(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"tag_name": "v0.9.0", "published_at": "2020-01-01T00:00:00Z"},
		})
	})
	defer srv.Close()

	repo := model.RepoRef{Owner: "acme", Name: "widget"}
	item, err := cc.Collect(t.Context(), repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCollect_TagsOnlyStrategyFallsBackToTreeURL(t *testing.T) {
	cc, srv := newReleaseFixtures(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget/tags":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"name": "v2.0.0", "commit": map[string]interface{}{"sha": "abc123"}},
			})
		case "/repos/acme/widget/commits/abc123":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"commit": map[string]interface{}{"author": map[string]interface{}{"date": "2026-03-01T00:00:00Z"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer srv.Close()

	repo := model.RepoRef{Owner: "acme", Name: "widget", Strategy: model.StrategyTagsOnly}
	item, err := cc.Collect(t.Context(), repo, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Contains(t, item.URL, "/acme/widget/tree/v2.0.0")
}

func TestRankCandidate_InvalidVersionsSortLast(t *testing.T) {
	valid := releaseCandidate{tag: "v1.0.0", version: parseVersion("v1.0.0")}
	invalid := releaseCandidate{tag: "nightly", version: nil}
	assert.True(t, rankCandidate(valid, invalid))
	assert.False(t, rankCandidate(invalid, valid))
}

func TestBuildReleaseContext_TruncatesToCap(t *testing.T) {
	cc, srv := newReleaseFixtures(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	repo := model.RepoRef{Owner: "acme", Name: "widget"}
	bigBody := ""
	for i := 0; i < releaseBodyCap+1000; i++ {
		bigBody += "a"
	}
	current := releaseCandidate{tag: "v1.0.0", body: bigBody}
	body, err := cc.buildReleaseContext(t.Context(), repo, current, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(body), releaseBodyCap+len("..."))
}
