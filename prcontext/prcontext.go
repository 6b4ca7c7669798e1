// Package prcontext implements PrContextBuilder: assembling a per-item
// textual "context" string out of zero or more labeled compare blocks. It is
// the single consolidated reference-resolution path the release collector,
// issue collector, and feed enrichers all share, following the source's own
// direction to collapse the "resolve a reference -> fetch meta -> fetch
// compare -> format" cycle into one capability rather than the repeated
// helper duplication a straight port of the original would carry over. New
// code, grounded in method shape and dependency-injection style on the
// teacher's notification sender (notification/rapidmail.go takes its SMTP
// client as a constructor argument rather than reaching for a global).
package prcontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/evalgo/digestengine/compare"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/refs"
)

// Builder produces PR-context blocks for items, resolving references through
// a forge.Client and its underlying RunCache.
type Builder struct {
	forge        *forge.Client
	deepPRCrawl  bool
	commentLimit int
}

// New constructs a Builder. commentLimit is stored on the Builder but no
// block reads it: the blocks hold PR metadata and the changed-file list
// only, and no comments are fetched for them.
func New(f *forge.Client, deepPRCrawl bool, commentLimit int) *Builder {
	return &Builder{forge: f, deepPRCrawl: deepPRCrawl, commentLimit: commentLimit}
}

// referenceLimit returns the cap applied to extracted reference counts: the
// token-less path is bounded to protect the unauthenticated rate budget.
func (b *Builder) referenceLimit() int {
	if b.forge.TokenPresent() {
		return 0
	}
	return refs.DefaultUnauthenticatedLimit
}

// BuildForSelfPR returns the single "PR Compare" block for an item that is
// itself a pull request. Returns "" when deep-crawl is disabled.
func (b *Builder) BuildForSelfPR(ctx context.Context, repo model.RepoRef, prNumber int) (string, error) {
	if !b.deepPRCrawl {
		return "", nil
	}
	block, found, err := b.buildBlock(ctx, repo, prNumber)
	if err != nil || !found {
		return "", err
	}
	return "PR Compare:\n" + block, nil
}

// BuildFromReferences assembles ref_text from body plus comments, extracts
// referenced numbers, and appends a "Linked PR #N" block for every reference
// that turns out to be a pull request. References that resolve to plain
// issues are fetched (to populate the cache and keep resolution uniform) but
// contribute no block, matching the spec's own worked example. Returns ""
// when deep-crawl is disabled or no reference resolves to a PR.
func (b *Builder) BuildFromReferences(ctx context.Context, repo model.RepoRef, body string, comments []string) (string, error) {
	if !b.deepPRCrawl {
		return "", nil
	}

	refText := body
	for _, c := range comments {
		refText += "\n" + c
	}

	numbers := refs.Extract(refText, repo.Owner, repo.Name, b.referenceLimit())
	if len(numbers) == 0 {
		return "", nil
	}

	var blocks []string
	for _, n := range numbers {
		meta, found, err := b.forge.FetchIssueMeta(ctx, repo, n)
		if err != nil || !found || !meta.IsPullRequest {
			continue
		}
		block, found, err := b.buildBlock(ctx, repo, n)
		if err != nil || !found {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Linked PR #%d:\n%s", n, block))
	}
	if len(blocks) == 0 {
		return "", nil
	}
	return "Linked PR/Issue references:\n" + strings.Join(blocks, "\n\n"), nil
}

func (b *Builder) buildBlock(ctx context.Context, repo model.RepoRef, number int) (string, bool, error) {
	meta, found, err := b.forge.FetchIssueMeta(ctx, repo, number)
	if err != nil || !found {
		return "", false, err
	}

	filenames, err := b.forge.FetchPRFiles(ctx, repo, number)
	if err != nil {
		filenames = nil
	}
	files := make([]compare.FileChange, 0, len(filenames))
	for _, f := range filenames {
		files = append(files, compare.FileChange{Path: f})
	}

	pr := compare.PullRequest{
		Number:       meta.Number,
		Title:        meta.Title,
		State:        meta.State,
		BaseRef:      meta.BaseRef,
		HeadRef:      meta.HeadRef,
		CommitsCount: meta.CommitsCount,
		Additions:    meta.Additions,
		Deletions:    meta.Deletions,
		CompareURL:   meta.HTMLURL,
	}
	return compare.Format(pr, files, "PR", nil), true, nil
}
