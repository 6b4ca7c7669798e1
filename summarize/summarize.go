// Package summarize declares the boundary to the out-of-core LLM
// summarization collaborator the engine hands its flattened, sorted
// category->items map to. No LLM call lives here; Collaborator is an
// interface so an implementation can be plugged in. NoOp is the only
// implementation in this module, and the digest entry point uses it on
// every run.
package summarize

import (
	"context"

	"github.com/evalgo/digestengine/model"
)

// Collaborator condenses and annotates items per category, returning an
// equal-or-smaller map with each item's Importance populated.
type Collaborator interface {
	Summarize(ctx context.Context, items map[model.Category][]model.Item) (map[model.Category][]model.Item, error)
}

// NoOp returns its input unchanged; the digest entry point uses it for dry
// runs and regular runs alike.
type NoOp struct{}

// Summarize implements Collaborator by passing items through untouched.
func (NoOp) Summarize(_ context.Context, items map[model.Category][]model.Item) (map[model.Category][]model.Item, error) {
	return items, nil
}
