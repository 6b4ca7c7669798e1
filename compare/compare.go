// Package compare implements CompareFormatter: rendering a normalized
// plain-text diff summary for a pull request given its metadata and changed
// file list. New code — no teacher file formats forge diffs — built in the
// style of the teacher's notification rendering (notification/rapidmail.go
// builds a plain-text body from structured fields field by field) and tested
// table-driven like forge/gitlab_test.go.
package compare

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PullRequest is the subset of PR metadata CompareFormatter needs. Fields
// left at their zero value render as zero/omitted rather than fabricated.
type PullRequest struct {
	Number       int
	Title        string
	State        string
	BaseRef      string
	HeadRef      string
	CommitsCount int
	Additions    int
	Deletions    int
	CompareURL   string
}

// FileChange is one entry in a PR's changed-file list.
type FileChange struct {
	Path string
}

// Format renders the stable plain-text compare block for pr and its changed
// files, tagged with section. When filters is non-empty, only files whose
// path matches at least one filter (case-insensitive) are listed; if none
// match, the unfiltered list is used instead so a block never hides every
// file under an overly narrow filter set.
func Format(pr PullRequest, files []FileChange, section string, filters []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PR #%d: %s\n", pr.Number, pr.Title)
	fmt.Fprintf(&b, "state=%s base=%s head=%s\n", pr.State, pr.BaseRef, pr.HeadRef)
	fmt.Fprintf(&b, "files=%d, commits=%d, +%d/-%d\n", len(files), pr.CommitsCount, pr.Additions, pr.Deletions)
	if pr.CompareURL != "" {
		fmt.Fprintf(&b, "%s\n", pr.CompareURL)
	}

	shown := filterFiles(files, filters)
	for _, f := range shown {
		fmt.Fprintf(&b, "- [%s] %s\n", section, f.Path)
	}

	return strings.TrimRight(b.String(), "\n")
}

func filterFiles(files []FileChange, filters []string) []FileChange {
	if len(filters) == 0 {
		return files
	}

	var res []*regexp.Regexp
	for _, pattern := range filters {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		res = append(res, re)
	}
	if len(res) == 0 {
		return files
	}

	var matched []FileChange
	for _, f := range files {
		for _, re := range res {
			if re.MatchString(f.Path) {
				matched = append(matched, f)
				break
			}
		}
	}
	if len(matched) == 0 {
		return files
	}
	return matched
}

// SortFiles orders a file-change list by path, in place. Format does not
// call it; files are listed in the order they are passed.
func SortFiles(files []FileChange) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// RangeStats is the aggregate stat line for a commit-range compare (used by
// the release collector, which compares two tags rather than a PR's base and
// head).
type RangeStats struct {
	FilesChanged int
	CommitsCount int
	Additions    int
	Deletions    int
	URL          string
}

// FormatRange renders the compare block the release collector appends to a
// release body: a "Compare: base...head" identity line, the same aggregate
// stats line CompareFormatter uses for PRs, and the compare URL if present.
func FormatRange(base, head string, stats RangeStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compare: %s...%s\n", base, head)
	fmt.Fprintf(&b, "files=%d, commits=%d, +%d/-%d\n", stats.FilesChanged, stats.CommitsCount, stats.Additions, stats.Deletions)
	if stats.URL != "" {
		fmt.Fprintf(&b, "%s\n", stats.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
