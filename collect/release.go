// Package collect implements the five source collectors: releases, issues,
// advisories, feeds, and registries. Each collector is a pure function of
// its inputs (repo/feed/registry config, cutoff, and the shared forge client
// and PR-context builder) so concurrent and sequential execution over the
// same fixtures are required to agree, per the determinism invariant.
package collect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/evalgo/digestengine/compare"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/prcontext"
)

const releaseBodyCap = 6000

type releaseCandidate struct {
	tag         string
	version     *semver.Version
	publishedAt time.Time
	body        string
	htmlURL     string
	fromRelease bool
}

// ReleaseCollector selects at most one item per repo: the most recent
// release or tag within the cutoff window, ranked by semantic version.
type ReleaseCollector struct {
	forge        *forge.Client
	prBuilder    *prcontext.Builder
	commentLimit int
}

// NewReleaseCollector constructs a ReleaseCollector.
func NewReleaseCollector(f *forge.Client, pb *prcontext.Builder, commentLimit int) *ReleaseCollector {
	return &ReleaseCollector{forge: f, prBuilder: pb, commentLimit: commentLimit}
}

// Collect returns the repo's latest item within cutoff, or nil if none
// qualifies (an empty result is not an error).
func (rc *ReleaseCollector) Collect(ctx context.Context, repo model.RepoRef, cutoff time.Time) (*model.Item, error) {
	candidates, err := rc.gatherCandidates(ctx, repo)
	if err != nil {
		return nil, err
	}

	var inWindow []releaseCandidate
	for _, c := range candidates {
		if !c.publishedAt.Before(cutoff) {
			inWindow = append(inWindow, c)
		}
	}
	if len(inWindow) == 0 {
		return nil, nil
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		return rankCandidate(inWindow[i], inWindow[j])
	})

	current := inWindow[0]
	var previous *releaseCandidate
	if len(inWindow) > 1 {
		previous = &inWindow[1]
	}

	body, err := rc.buildReleaseContext(ctx, repo, current, previous)
	if err != nil {
		return nil, err
	}

	url := current.htmlURL
	if url == "" {
		url = rc.forge.TreeURL(repo, current.tag)
	}

	return &model.Item{
		Title:       fmt.Sprintf("%s %s released", repo.Label(), current.tag),
		URL:         url,
		PublishedAt: current.publishedAt,
		Body:        body,
		Source:      repo.Label(),
	}, nil
}

func (rc *ReleaseCollector) gatherCandidates(ctx context.Context, repo model.RepoRef) ([]releaseCandidate, error) {
	switch repo.Strategy {
	case model.StrategyReleasesOnly:
		return rc.releaseCandidates(ctx, repo)
	case model.StrategyTagsOnly:
		return rc.tagCandidates(ctx, repo)
	default:
		releases, err := rc.releaseCandidates(ctx, repo)
		if err != nil {
			return nil, err
		}
		if len(releases) > 0 {
			return releases, nil
		}
		return rc.tagCandidates(ctx, repo)
	}
}

func (rc *ReleaseCollector) releaseCandidates(ctx context.Context, repo model.RepoRef) ([]releaseCandidate, error) {
	releases, err := rc.forge.FetchReleases(ctx, repo)
	if err != nil {
		return nil, err
	}
	out := make([]releaseCandidate, 0, len(releases))
	for _, r := range releases {
		out = append(out, releaseCandidate{
			tag:         r.TagName,
			version:     parseVersion(r.TagName),
			publishedAt: r.PublishedAt,
			body:        r.Body,
			htmlURL:     r.HTMLURL,
			fromRelease: true,
		})
	}
	return out, nil
}

func (rc *ReleaseCollector) tagCandidates(ctx context.Context, repo model.RepoRef) ([]releaseCandidate, error) {
	tags, err := rc.forge.FetchTags(ctx, repo)
	if err != nil {
		return nil, err
	}
	out := make([]releaseCandidate, 0, len(tags))
	for _, t := range tags {
		date, err := rc.forge.FetchTagCommitDate(ctx, repo, t.Commit.SHA)
		if err != nil {
			continue
		}
		out = append(out, releaseCandidate{
			tag:         t.Name,
			version:     parseVersion(t.Name),
			publishedAt: date,
		})
	}
	return out, nil
}

func parseVersion(tag string) *semver.Version {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return nil
	}
	return v
}

// rankCandidate reports whether a ranks strictly above b: highest valid
// semver wins, invalid tags sort last, ties break on publication time.
func rankCandidate(a, b releaseCandidate) bool {
	if a.version == nil && b.version == nil {
		return a.publishedAt.After(b.publishedAt)
	}
	if a.version == nil {
		return false
	}
	if b.version == nil {
		return true
	}
	if cmp := a.version.Compare(b.version); cmp != 0 {
		return cmp > 0
	}
	return a.publishedAt.After(b.publishedAt)
}

func (rc *ReleaseCollector) buildReleaseContext(ctx context.Context, repo model.RepoRef, current releaseCandidate, previous *releaseCandidate) (string, error) {
	var sections []string
	if current.body != "" {
		sections = append(sections, current.body)
	}

	if previous != nil {
		if cr, ok, err := rc.forge.FetchCompareSummary(ctx, repo, previous.tag, current.tag); err == nil && ok {
			sections = append(sections, compare.FormatRange(previous.tag, current.tag, compare.RangeStats{
				FilesChanged: cr.FilesChanged,
				CommitsCount: cr.CommitsCount,
				Additions:    cr.Additions,
				Deletions:    cr.Deletions,
				URL:          cr.HTMLURL,
			}))
		}
	}

	combined := strings.Join(sections, "\n\n")
	if refBlock, err := rc.prBuilder.BuildFromReferences(ctx, repo, combined, nil); err == nil && refBlock != "" {
		sections = append(sections, refBlock)
	}

	if excerpt, ok := rc.fetchChangelogExcerpt(ctx, repo, current.tag); ok {
		sections = append(sections, excerpt)
	}

	return truncate(strings.Join(sections, "\n\n"), releaseBodyCap), nil
}

func (rc *ReleaseCollector) fetchChangelogExcerpt(ctx context.Context, repo model.RepoRef, tag string) (string, bool) {
	files := repo.ReleaseNotesFiles
	if len(files) == 0 {
		files = model.DefaultChangelogFiles
	}
	for _, path := range files {
		content, found, err := rc.forge.FetchFileContent(ctx, repo, path)
		if err != nil || !found {
			continue
		}
		if section, ok := ExtractChangelogSection(content, tag); ok {
			return section, true
		}
	}
	return "", false
}
