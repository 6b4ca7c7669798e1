package collect

import (
	"regexp"
	"strings"
)

const changelogExcerptCap = 2500

var versionHeadingRe = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)

// ExtractChangelogSection locates the heading for tag within a changelog
// file's content and returns the text from that heading up to (but not
// including) the next version-like heading, truncated to 2,500 characters.
// Both ATX (`# X`) and setext (underlined) headings up to level 6 are
// recognized. Candidates tried, in order: tag, tag with a leading "v"
// stripped, and "v"+tag when tag has no leading "v".
func ExtractChangelogSection(content, tag string) (string, bool) {
	candidates := headingCandidates(tag)
	lines := strings.Split(content, "\n")

	start := -1
	for i, line := range lines {
		if matchesAnyHeading(line, lines, i, candidates) {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}

	// Any version-like heading ends the section, so a pre-release heading
	// directly after the matched one (1.2.0-rc.2 after 1.2.0-rc.1) ends it too.
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if isHeadingLine(lines, i) && versionHeadingRe.MatchString(lines[i]) {
			end = i
			break
		}
	}

	section := strings.Join(lines[start:end], "\n")
	return truncate(section, changelogExcerptCap), true
}

func headingCandidates(tag string) []string {
	out := []string{tag}
	if strings.HasPrefix(tag, "v") || strings.HasPrefix(tag, "V") {
		out = append(out, tag[1:])
	} else {
		out = append(out, "v"+tag)
	}
	return out
}

func matchesAnyHeading(line string, lines []string, i int, candidates []string) bool {
	for _, c := range candidates {
		if matchesATXHeading(line, c) {
			return true
		}
		if matchesSetextHeading(lines, i, c) {
			return true
		}
	}
	return false
}

func matchesATXHeading(line, candidate string) bool {
	re := regexp.MustCompile(`(?i)^#{1,6}\s*` + regexp.QuoteMeta(candidate) + `\b`)
	return re.MatchString(strings.TrimSpace(line))
}

func matchesSetextHeading(lines []string, i int, candidate string) bool {
	trimmed := strings.TrimSpace(lines[i])
	if !strings.EqualFold(trimmed, candidate) {
		return false
	}
	if i+1 >= len(lines) {
		return false
	}
	underline := strings.TrimSpace(lines[i+1])
	if underline == "" {
		return false
	}
	return isAllRune(underline, '=') || isAllRune(underline, '-')
}

func isHeadingLine(lines []string, i int) bool {
	trimmed := strings.TrimSpace(lines[i])
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	if i+1 < len(lines) {
		underline := strings.TrimSpace(lines[i+1])
		if underline != "" && (isAllRune(underline, '=') || isAllRune(underline, '-')) {
			return true
		}
	}
	return false
}

func isAllRune(s string, r rune) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c != r {
			return false
		}
	}
	return true
}

// truncate cuts s to at most n bytes without splitting a multi-byte UTF-8
// rune, appending an ellipsis when truncation occurred.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
