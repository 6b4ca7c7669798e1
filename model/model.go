// Package model defines the canonical data types shared by every collector,
// enricher, and the orchestrator: the Item emitted to summarization, the
// configuration records describing sources, and the per-run identifiers used
// for correlation across logs.
package model

import "time"

// Category groups sources that are collected and rendered together.
type Category string

const (
	CategoryFrontend Category = "frontend"
	CategoryBackend  Category = "backend"
	CategoryDevOps   Category = "devops"
)

// ReleaseStrategy controls which upstream endpoints ReleaseCollector consults.
type ReleaseStrategy string

const (
	// StrategyAuto prefers releases, falling back to tags when none exist.
	StrategyAuto ReleaseStrategy = "auto"
	// StrategyReleasesOnly never looks at the tag list.
	StrategyReleasesOnly ReleaseStrategy = "releases_only"
	// StrategyTagsOnly ignores the releases endpoint entirely.
	StrategyTagsOnly ReleaseStrategy = "tags_only"
)

// RepoRef identifies a repository tracked by the release and issue collectors.
//
// ReleaseNotesFiles defaults to the standard set of likely changelog paths
// when empty: CHANGELOG.md, CHANGES.md, Changes.md, HISTORY.md,
// RELEASE_NOTES.md (see DefaultChangelogFiles).
type RepoRef struct {
	Owner             string
	Name              string
	DisplayName       string
	Strategy          ReleaseStrategy
	ReleaseNotesFiles []string
}

// FullName returns the "owner/name" form used in API paths.
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// Label returns the display name, falling back to FullName.
func (r RepoRef) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.FullName()
}

// DefaultChangelogFiles is the fallback set consulted by the release
// collector's changelog-excerpt step when a RepoRef specifies none.
var DefaultChangelogFiles = []string{
	"CHANGELOG.md",
	"CHANGES.md",
	"Changes.md",
	"HISTORY.md",
	"RELEASE_NOTES.md",
}

// FeedRef identifies a syndication feed tracked by the feed collector.
type FeedRef struct {
	URL         string
	DisplayName string
}

// RegistryRef identifies a package-registry source. RegistryCollector
// handles the "npm" and "pypi" ecosystems; any other ecosystem yields no
// items.
type RegistryRef struct {
	Ecosystem   string
	PackageName string
	DisplayName string
}

// AdvisoryRef identifies an advisory-database ecosystem to poll.
type AdvisoryRef struct {
	Ecosystem   string
	DisplayName string
}

// Item is the canonical unit of output. It is immutable once constructed and
// flows unchanged from a collector through the orchestrator to summarization.
type Item struct {
	Title       string
	URL         string
	PublishedAt time.Time
	Body        string
	Source      string

	// Importance is set by a summarization collaborator (e.g. "critical",
	// "high", "medium", "low"); empty until summarization runs.
	Importance string
}

// RunID is a short opaque identifier stamped at invocation and threaded
// through every log line for correlation, mirroring the teacher's request-id
// logging convention (see common.RunLogger).
type RunID string

// CategoryConfig is the per-category source configuration consumed by the
// orchestrator: the set of repos, feeds, registries, and advisory ecosystems
// to poll, independent of every other category.
type CategoryConfig struct {
	Name       Category
	Repos      []RepoRef
	Feeds      []FeedRef
	Registries []RegistryRef
	Advisories []AdvisoryRef
}
