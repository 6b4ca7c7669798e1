package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evalgo/digestengine/config"
	"github.com/evalgo/digestengine/model"
)

func TestFilterByImportance_DropsBelowThreshold(t *testing.T) {
	items := map[model.Category][]model.Item{
		model.CategoryBackend: {
			{Title: "critical fix", Importance: "critical"},
			{Title: "low noise", Importance: "low"},
			{Title: "unannotated", Importance: ""},
		},
	}

	out := filterByImportance(items, config.ImportanceMedium)

	titles := make([]string, 0, len(out[model.CategoryBackend]))
	for _, it := range out[model.CategoryBackend] {
		titles = append(titles, it.Title)
	}
	assert.ElementsMatch(t, []string{"critical fix", "unannotated"}, titles)
}

func TestFilterByImportance_LowThresholdKeepsEverything(t *testing.T) {
	items := map[model.Category][]model.Item{
		model.CategoryFrontend: {
			{Title: "a", Importance: "low"},
			{Title: "b", Importance: "critical"},
		},
	}

	out := filterByImportance(items, config.ImportanceLow)
	assert.Len(t, out[model.CategoryFrontend], 2)
}

func TestSplitRecipients(t *testing.T) {
	cases := map[string][]string{
		"a@example.test,b@example.test":   {"a@example.test", "b@example.test"},
		" a@example.test , b@example.test": {"a@example.test", "b@example.test"},
		"":                                nil,
		"only@example.test":                {"only@example.test"},
		"a@example.test,,b@example.test":   {"a@example.test", "b@example.test"},
	}

	for in, want := range cases {
		assert.Equal(t, want, splitRecipients(in))
	}
}
