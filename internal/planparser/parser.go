// Package planparser splits generated plan markdown into titled sections.
package planparser

import (
	"regexp"
	"strings"

	"github.com/pageza/platecoach/backend/internal/textutil"
)

// Section is one canonical part of a plan with its raw markdown lines.
type Section struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// ParsedPlan is the sectioned view of a plan's text. Raw is always the input verbatim.
type ParsedPlan struct {
	Sections []Section `json:"sections"`
	Raw      string    `json:"raw"`
}

var (
	markdownHeading = regexp.MustCompile(`^\s{0,3}#{1,3}\s+(.+?)\s*#*\s*$`)
	boldLine        = regexp.MustCompile(`^\s*(?:\d+[.)]\s*)?\*\*([^*].*?)\*\*\s*:?\s*$`)
	leadingOrdinal  = regexp.MustCompile(`^\d+[.)]\s*`)
	bareOrdinal     = regexp.MustCompile(`^\d+[.)]$`)
)

// Parse scans raw for canonical section headings. Text before the first
// recognised heading is dropped, and a plan with no recognised headings
// yields no sections.
func Parse(raw string) *ParsedPlan {
	plan := &ParsedPlan{Raw: raw, Sections: []Section{}}

	var current *Section
	seen := make(map[string]bool)
	flush := func() {
		if current == nil {
			return
		}
		if lines := tidyLines(current.Lines); len(lines) > 0 {
			current.Lines = lines
			plan.Sections = append(plan.Sections, *current)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if title, ok := headingTitle(line); ok {
			if canon, ok := CanonicalTitle(title); ok && !seen[canon] {
				seen[canon] = true
				flush()
				current = &Section{Title: canon}
				continue
			}
		}
		if current != nil {
			current.Lines = append(current.Lines, line)
		}
	}
	flush()

	return plan
}

// headingTitle reports whether line is a candidate heading and returns its clean title.
func headingTitle(line string) (string, bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return CleanTitle(m[1]), true
	}
	if m := boldLine.FindStringSubmatch(line); m != nil {
		return CleanTitle(m[1]), true
	}
	return "", false
}

// CleanTitle strips heading markers, ordinals, bold, trailing colons and emoji from a heading.
func CleanTitle(s string) string {
	s = textutil.StripEmoji(s)
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "# ")
	s = textutil.StripBold(s)
	s = strings.TrimSpace(s)
	s = leadingOrdinal.ReplaceAllString(s, "")
	s = strings.TrimRight(s, ": \t")
	return strings.Join(strings.Fields(s), " ")
}

// tidyLines trims, drops blank lines and joins an orphan "3." with the line after it.
func tidyLines(lines []string) []string {
	var kept []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}

	out := make([]string, 0, len(kept))
	for i := 0; i < len(kept); i++ {
		if bareOrdinal.MatchString(kept[i]) && i+1 < len(kept) {
			out = append(out, kept[i]+" "+kept[i+1])
			i++
			continue
		}
		out = append(out, kept[i])
	}
	return out
}
