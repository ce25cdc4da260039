package fallback

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy = bluemonday.StrictPolicy()

	reFence      = regexp.MustCompile("(?m)^\\s*```[^\\n]*$")
	reHeading    = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	reQuote      = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	reBullet     = regexp.MustCompile(`(?m)^(\s*)[*+]\s+`)
	reRule       = regexp.MustCompile(`(?m)^\s{0,3}([-*_])(\s*([-*_])){2,}\s*$`)
	reImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	reBold       = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	reItalic     = regexp.MustCompile(`(^|[\s(])[*_](\S(?:[^*_\n]*?\S)?)[*_]`)
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// StripMarkup turns model output into plain text: HTML tags are removed and
// markdown syntax is reduced to its text. Bullet items become "- " lines.
func StripMarkup(s string) string {
	s = html.UnescapeString(htmlPolicy.Sanitize(s))

	s = reFence.ReplaceAllString(s, "")
	s = reRule.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reQuote.ReplaceAllString(s, "")
	s = reBullet.ReplaceAllString(s, "$1- ")
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reBold.ReplaceAllString(s, "$2")
	s = reItalic.ReplaceAllString(s, "$1$2")
	s = reInlineCode.ReplaceAllString(s, "$1")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
