package prcontext

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/digestengine/cache"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
)

func newTestBuilder(t *testing.T, handler http.HandlerFunc, deepCrawl bool) (*Builder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	hc := httpclient.New(httpclient.Config{BaseURL: srv.URL})
	f := forge.New(hc, cache.New(nil))
	return New(f, deepCrawl, 0), srv
}

// TestBuildFromReferences_S1 mirrors the spec's seed scenario: issue #42 is a
// PR and should produce a "Linked PR #42" block; issue #43 is a plain issue
// and should not.
func TestBuildFromReferences_S1(t *testing.T) {
	b, srv := newTestBuilder(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget/issues/42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number": 42, "title": "widget PR", "state": "merged",
				"pull_request": map[string]interface{}{},
			})
		case "/repos/acme/widget/pulls/42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"base": map[string]string{"ref": "main"}, "head": map[string]string{"ref": "feature"},
				"commits": 1, "additions": 5, "deletions": 1,
			})
		case "/repos/acme/widget/pulls/42/files":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"filename": "widget.go"}})
		case "/repos/acme/widget/issues/43":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number": 43, "title": "a bug", "state": "open",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, true)
	defer srv.Close()

	repo := model.RepoRef{Owner: "acme", Name: "widget"}
	out, err := b.BuildFromReferences(t.Context(), repo, "fixes [#42] and closes #43", nil)
	require.NoError(t, err)

	assert.Contains(t, out, "Linked PR/Issue references:")
	assert.Contains(t, out, "Linked PR #42:")
	assert.Contains(t, out, "PR #42: widget PR")
	assert.NotContains(t, out, "Linked PR #43")
}

func TestBuildFromReferences_DisabledWhenNotDeepCrawl(t *testing.T) {
	b, srv := newTestBuilder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, false)
	defer srv.Close()

	out, err := b.BuildFromReferences(t.Context(), model.RepoRef{Owner: "a", Name: "b"}, "fixes #1", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuildForSelfPR(t *testing.T) {
	b, srv := newTestBuilder(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widget/issues/7":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"number": 7, "title": "self PR", "state": "open",
				"pull_request": map[string]interface{}{},
			})
		case "/repos/acme/widget/pulls/7":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{})
		case "/repos/acme/widget/pulls/7/files":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, true)
	defer srv.Close()

	out, err := b.BuildForSelfPR(t.Context(), model.RepoRef{Owner: "acme", Name: "widget"}, 7)
	require.NoError(t, err)
	assert.Contains(t, out, "PR Compare:")
	assert.Contains(t, out, "PR #7: self PR")
}

func TestBuildFromReferences_NoReferencesYieldsEmpty(t *testing.T) {
	b, srv := newTestBuilder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, true)
	defer srv.Close()

	out, err := b.BuildFromReferences(t.Context(), model.RepoRef{Owner: "a", Name: "b"}, "nothing to see here", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
