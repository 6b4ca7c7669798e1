package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/prcontext"
)

const issueBodyCap = 4000

var notableLabelTokens = []string{"security", "breaking-change", "bug", "critical", "important", "release", "announcement"}

// IssueCollector fetches recently-updated issues and PRs for a repo and
// retains the notable ones.
type IssueCollector struct {
	forge        *forge.Client
	prBuilder    *prcontext.Builder
	commentLimit int
}

// NewIssueCollector constructs an IssueCollector. commentLimit caps the
// number of comments fetched per item when the forge client is token-less.
func NewIssueCollector(f *forge.Client, pb *prcontext.Builder, commentLimit int) *IssueCollector {
	return &IssueCollector{forge: f, prBuilder: pb, commentLimit: commentLimit}
}

// Collect returns one Item per notable issue/PR updated since cutoff.
func (ic *IssueCollector) Collect(ctx context.Context, repo model.RepoRef, cutoff time.Time) ([]model.Item, error) {
	metas, err := ic.forge.FetchIssuesSince(ctx, repo, cutoff)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	for _, meta := range metas {
		if !isNotable(meta) {
			continue
		}
		item, err := ic.buildItem(ctx, repo, meta)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func isNotable(meta forge.IssueMeta) bool {
	score := meta.CommentsCount + meta.ReactionsTotal
	if score >= 3 {
		return true
	}
	for _, label := range meta.Labels {
		lower := strings.ToLower(label)
		for _, token := range notableLabelTokens {
			if strings.Contains(lower, token) {
				return true
			}
		}
	}
	return false
}

func (ic *IssueCollector) buildItem(ctx context.Context, repo model.RepoRef, meta forge.IssueMeta) (model.Item, error) {
	comments, err := ic.forge.FetchComments(ctx, repo, meta.Number, ic.commentLimit)
	if err != nil {
		comments = nil
	}

	var prContext string
	if meta.IsPullRequest {
		prContext, _ = ic.prBuilder.BuildForSelfPR(ctx, repo, meta.Number)
	} else {
		prContext, _ = ic.prBuilder.BuildFromReferences(ctx, repo, meta.Body, comments)
	}

	return model.Item{
		Title:       formatItemTitle(meta),
		URL:         meta.HTMLURL,
		PublishedAt: meta.UpdatedAt,
		Body:        truncate(formatIssueBody(meta, comments, prContext), issueBodyCap),
		Source:      repo.Label(),
	}, nil
}

func formatItemTitle(meta forge.IssueMeta) string {
	kind := "Issue"
	if meta.IsPullRequest {
		kind = "PR"
	}
	return fmt.Sprintf("[%s] %s", kind, meta.Title)
}

// formatIssueBody is the shared "header + description + comments +
// PR-context" body assembly both IssueCollector and the feed collector's
// code-hosting enrichment path use, per the consolidated reference-resolution
// design.
func formatIssueBody(meta forge.IssueMeta, comments []string, prContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s | Comments: %d | Reactions: %d | Updated: %s\n\n",
		meta.State, meta.CommentsCount, meta.ReactionsTotal, meta.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Description:\n%s\n", meta.Body)

	if len(comments) > 0 {
		fmt.Fprintf(&b, "\nComments (%d):\n", len(comments))
		for i, c := range comments {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}

	if prContext != "" {
		fmt.Fprintf(&b, "\n%s\n", prContext)
	}

	return b.String()
}
