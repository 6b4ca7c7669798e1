// Package refs implements ReferenceExtractor: parsing free text into the
// ordered, unique set of issue/PR numbers referenced within a given
// repository, rejecting lookalike non-platform tracker identifiers. This is
// new code — no teacher file does text-reference extraction — built in the
// teacher's functional style (small pure functions over strings, see
// common/utils.go) and tested the way forge/gitlab_test.go tests string
// formatting: table-driven with stretchr/testify.
package refs

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultUnauthenticatedLimit is the single configuration constant for the
// non-token reference cap described in the spec's open questions: the
// source hard-codes this as a small constant in several places, here it is
// one exported value, read by prcontext.Builder when its forge client has no
// token.
const DefaultUnauthenticatedLimit = 5

var keywordContextRe = regexp.MustCompile(
	`(?i)\b(?:pull request|pr|pull|issue|fix(?:es|ed)?|close[sd]?|resolve[sd]?|ref(?:er|erence[sd]?|erences)?)\b([^#\n]{0,50})#(\d{1,7})\b`,
)

var bracketRe = regexp.MustCompile(`\[(?:PR\s+)?#(\d{1,7})\]`)

var ghTokenRe = regexp.MustCompile(`\bGH-(\d{1,7})\b`)

var nonTrackerBeforeHashRe = regexp.MustCompile(`(?i)\b(?:ticket|jira|trac|redmine)(?:[\s:-]*ref)?\b[\s:-]*$`)

type candidate struct {
	pos    int
	number int
}

// Extract returns the ordered, unique list of issue/PR numbers referenced in
// text for the given owner/repo, applying limit (0 = unlimited) after
// dedup. It never includes numbers matched by a non-platform-tracker prefix
// immediately preceding "#N" (e.g. "ticket #999").
func Extract(text, owner, repo string, limit int) []int {
	var candidates []candidate

	candidates = append(candidates, urlMatches(text, owner, repo)...)
	candidates = append(candidates, ghTokenMatches(text)...)
	candidates = append(candidates, hashMatches(text, bracketRe, 1)...)
	candidates = append(candidates, keywordHashMatches(text)...)

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].pos < candidates[j].pos })

	seen := make(map[int]bool)
	var out []int
	for _, c := range candidates {
		if seen[c.number] {
			continue
		}
		seen[c.number] = true
		out = append(out, c.number)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func urlMatches(text, owner, repo string) []candidate {
	pattern := fmt.Sprintf(`(?i)https?://[^\s/]+/%s/%s/(?:issues|pull)/(\d{1,7})\b`, regexp.QuoteMeta(owner), regexp.QuoteMeta(repo))
	re := regexp.MustCompile(pattern)
	return hashlessMatches(text, re, 1)
}

func ghTokenMatches(text string) []candidate {
	return hashlessMatches(text, ghTokenRe, 1)
}

func hashlessMatches(text string, re *regexp.Regexp, group int) []candidate {
	var out []candidate
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2*group], m[2*group+1]
		n := parseInt(text[start:end])
		out = append(out, candidate{pos: m[0], number: n})
	}
	return out
}

// hashMatches handles patterns whose match includes a literal '#' before the
// number, applying the non-tracker-prefix rejection relative to the '#'
// position within the original text.
func hashMatches(text string, re *regexp.Regexp, group int) []candidate {
	var out []candidate
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		numStart, numEnd := m[2*group], m[2*group+1]
		hashPos := numStart - 1 // the '#' immediately precedes the digits
		if hashPos >= 0 && isNonTrackerBefore(text, hashPos) {
			continue
		}
		out = append(out, candidate{pos: m[0], number: parseInt(text[numStart:numEnd])})
	}
	return out
}

func keywordHashMatches(text string) []candidate {
	var out []candidate
	for _, m := range keywordContextRe.FindAllStringSubmatchIndex(text, -1) {
		numStart, numEnd := m[4], m[5]
		hashPos := numStart - 1
		if hashPos >= 0 && isNonTrackerBefore(text, hashPos) {
			continue
		}
		out = append(out, candidate{pos: m[0], number: parseInt(text[numStart:numEnd])})
	}
	return out
}

func isNonTrackerBefore(text string, hashPos int) bool {
	start := hashPos - 30
	if start < 0 {
		start = 0
	}
	return nonTrackerBeforeHashRe.MatchString(text[start:hashPos])
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
