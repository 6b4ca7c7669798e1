package collect

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestExtractChangelogSection_ATXHeading(t *testing.T) {
	content := "# Changelog\n\n## v1.2.0\n\n- added widgets\n\n## v1.1.0\n\n- old stuff\n"
	section, ok := ExtractChangelogSection(content, "v1.2.0")
	assert.True(t, ok)
	assert.Contains(t, section, "added widgets")
	assert.NotContains(t, section, "old stuff")
}

func TestExtractChangelogSection_SetextHeading(t *testing.T) {
	content := "v1.2.0\n------\n\n- added widgets\n\nv1.1.0\n------\n\n- old stuff\n"
	section, ok := ExtractChangelogSection(content, "1.2.0")
	assert.True(t, ok)
	assert.Contains(t, section, "added widgets")
	assert.NotContains(t, section, "old stuff")
}

func TestExtractChangelogSection_LeadingVStripped(t *testing.T) {
	content := "## 1.2.0\n\n- fixed bug\n"
	section, ok := ExtractChangelogSection(content, "v1.2.0")
	assert.True(t, ok)
	assert.Contains(t, section, "fixed bug")
}

func TestExtractChangelogSection_NotFound(t *testing.T) {
	content := "## v1.1.0\n\n- old stuff\n"
	_, ok := ExtractChangelogSection(content, "v9.9.9")
	assert.False(t, ok)
}

func TestExtractChangelogSection_TruncatesLongSection(t *testing.T) {
	body := strings.Repeat("x", changelogExcerptCap+500)
	content := "## v1.2.0\n\n" + body + "\n"
	section, ok := ExtractChangelogSection(content, "v1.2.0")
	assert.True(t, ok)
	assert.LessOrEqual(t, len(section), changelogExcerptCap+len("..."))
	assert.True(t, strings.HasSuffix(section, "..."))
}

func TestTruncate_DoesNotSplitMultibyteRune(t *testing.T) {
	s := "héllo wörld" + strings.Repeat("€", 10)
	out := truncate(s, 12)
	assert.True(t, utf8.ValidString(strings.TrimSuffix(out, "...")))
}
