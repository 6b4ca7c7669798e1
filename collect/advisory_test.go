package collect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
)

func TestAdvisoryCollect_FiltersByPublishedAtAndEcosystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advisories", r.URL.Path)
		assert.Equal(t, "npm", r.URL.Query().Get("ecosystem"))
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"ghsa_id": "GHSA-1", "summary": "ReDoS in parser", "description": "details", "severity": "high",
				"published_at": "2026-02-10T00:00:00Z", "html_url": "https://example.test/advisories/GHSA-1"},
			{"ghsa_id": "GHSA-2", "summary": "old issue", "description": "details", "severity": "low",
				"published_at": "2020-01-01T00:00:00Z", "html_url": "https://example.test/advisories/GHSA-2"},
		})
	}))
	defer srv.Close()

	hc := httpclient.New(httpclient.Config{BaseURL: srv.URL})
	ac := NewAdvisoryCollector(hc)

	items, err := ac.Collect(t.Context(), model.AdvisoryRef{Ecosystem: "npm"}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Title, "ReDoS in parser")
	assert.Contains(t, items[0].Body, "high")
}

func TestAdvisoryCollect_NotFoundYieldsNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hc := httpclient.New(httpclient.Config{BaseURL: srv.URL})
	ac := NewAdvisoryCollector(hc)

	items, err := ac.Collect(t.Context(), model.AdvisoryRef{Ecosystem: "npm"}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
