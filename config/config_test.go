package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRuntimeOptions_DefaultsWithoutToken(t *testing.T) {
	t.Setenv("DIGEST_PLATFORM_TOKEN", "")
	opts := LoadRuntimeOptions("DIGEST")
	assert.Equal(t, 2, opts.MaxCollectThreads)
	assert.Equal(t, 2, opts.MaxRepoThreads)
}

func TestLoadRuntimeOptions_DefaultsWithToken(t *testing.T) {
	t.Setenv("DIGEST_PLATFORM_TOKEN", "secret-token-value")
	opts := LoadRuntimeOptions("DIGEST")
	assert.Equal(t, 4, opts.MaxCollectThreads)
	assert.Equal(t, 3, opts.MaxRepoThreads)
}

func TestRuntimeOptions_Validate_RejectsBadImportance(t *testing.T) {
	opts := RuntimeOptions{LookbackDays: 7, MinImportance: "urgent", MaxCollectThreads: 1, MaxRepoThreads: 1}
	assert.Error(t, opts.Validate())
}

func TestImportance_Meets(t *testing.T) {
	assert.True(t, ImportanceMedium.Meets(ImportanceHigh))
	assert.False(t, ImportanceHigh.Meets(ImportanceLow))
	assert.True(t, ImportanceLow.Meets(ImportanceLow))
}

func TestCutoff_UsesFixedUTC8Midnight(t *testing.T) {
	opts := RuntimeOptions{LookbackDays: 7}
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC) // 2026-03-11 07:00 UTC+8
	cutoff := opts.Cutoff(now)
	assert.Equal(t, time.Date(2026, 3, 3, 16, 0, 0, 0, time.UTC), cutoff)
}

func TestLoadSourceDocument_ParsesCategories(t *testing.T) {
	yamlDoc := []byte(`
categories:
  backend:
    repos:
      - owner: acme
        name: widget
        strategy: releases_only
`)
	doc, err := LoadSourceDocument(yamlDoc)
	require.NoError(t, err)
	require.Contains(t, doc.Categories, "backend")
	require.Len(t, doc.Categories["backend"].Repos, 1)
	assert.Equal(t, "widget", doc.Categories["backend"].Repos[0].Name)
}

func TestLoadSourceDocument_RejectsUnknownKeys(t *testing.T) {
	yamlDoc := []byte(`
categories:
  backend:
    repos:
      - owner: acme
        name: widget
        bogus_field: true
`)
	_, err := LoadSourceDocument(yamlDoc)
	assert.Error(t, err)
}

func TestSourceDocument_ToModel(t *testing.T) {
	doc := &SourceDocument{
		Categories: map[string]CategoryDoc{
			"devops": {Repos: []RepoDoc{{Owner: "acme", Name: "infra"}}},
		},
	}
	models := doc.ToModel()
	require.Len(t, models, 1)
	assert.Equal(t, "acme/infra", models[0].Repos[0].FullName())
}
