// Package textutil cleans generated text before it is parsed, persisted or rendered.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	boldPattern     = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	mojibakePattern = regexp.MustCompile(`Ø[=>][\x{00C0}-\x{00FF}]`)
	spaceRun        = regexp.MustCompile(`[ \t]{2,}`)
)

// pictographic covers Extended_Pictographic, the emoji presentation
// selectors and the joiners and tags used to build emoji sequences.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00A9, Hi: 0x00AE, Stride: 5},
		{Lo: 0x200D, Hi: 0x200D, Stride: 1},
		{Lo: 0x203C, Hi: 0x2049, Stride: 13},
		{Lo: 0x20E3, Hi: 0x20E3, Stride: 1},
		{Lo: 0x2122, Hi: 0x2139, Stride: 23},
		{Lo: 0x2194, Hi: 0x2199, Stride: 1},
		{Lo: 0x21A9, Hi: 0x21AA, Stride: 1},
		{Lo: 0x231A, Hi: 0x231B, Stride: 1},
		{Lo: 0x2328, Hi: 0x2328, Stride: 1},
		{Lo: 0x2388, Hi: 0x2388, Stride: 1},
		{Lo: 0x23CF, Hi: 0x23CF, Stride: 1},
		{Lo: 0x23E9, Hi: 0x23FA, Stride: 1},
		{Lo: 0x24C2, Hi: 0x24C2, Stride: 1},
		{Lo: 0x25AA, Hi: 0x25AB, Stride: 1},
		{Lo: 0x25B6, Hi: 0x25B6, Stride: 1},
		{Lo: 0x25C0, Hi: 0x25C0, Stride: 1},
		{Lo: 0x25FB, Hi: 0x25FE, Stride: 1},
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols and dingbats
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1}, // arrows, stars
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303D, Hi: 0x303D, Stride: 1},
		{Lo: 0x3297, Hi: 0x3299, Stride: 2},
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1FFFF, Stride: 1}, // emoji, symbols, flags
		{Lo: 0xE0020, Hi: 0xE007F, Stride: 1}, // tag sequences
	},
	LatinOffset: 1,
}

// IsPictographic reports whether r is an emoji, pictograph, dingbat,
// variation selector or emoji joiner.
func IsPictographic(r rune) bool {
	return unicode.Is(pictographic, r)
}

// StripEmoji removes pictographic code points and collapses the gaps they leave.
func StripEmoji(s string) string {
	if !strings.ContainsFunc(s, IsPictographic) {
		return s
	}
	out := strings.Map(func(r rune) rune {
		if IsPictographic(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = spaceRun.ReplaceAllString(line, " ")
	}
	return strings.Join(lines, "\n")
}

// StripBold removes ** and __ emphasis markers, keeping the enclosed text.
func StripBold(s string) string {
	s = boldPattern.ReplaceAllString(s, "$1$2")
	return strings.ReplaceAll(s, "**", "")
}

// CleanForRender prepares a line for the PDF renderer.
func CleanForRender(s string) string {
	s = StripBold(s)
	s = mojibakePattern.ReplaceAllString(s, "")
	s = StripEmoji(s)
	return strings.TrimSpace(s)
}
