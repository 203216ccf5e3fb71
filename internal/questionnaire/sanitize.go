package questionnaire

import (
	"regexp"
	"strings"
)

var (
	scriptBlock    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	serverTemplate = regexp.MustCompile(`(?s)<%.*?%>`)
	mustache       = regexp.MustCompile(`(?s)\{\{.*?\}\}`)
	interpolation  = regexp.MustCompile(`(?s)\$\{.*?\}`)
	htmlTag        = regexp.MustCompile(`<[^>]*>`)
)

// Sanitize strips control characters (except newline and tab), script
// blocks, template syntax and HTML tags, then trims. Applying it to its own
// output is a no-op.
func Sanitize(s string) string {
	for {
		next := sanitizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func sanitizeOnce(s string) string {
	s = strings.Map(func(r rune) rune {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = scriptBlock.ReplaceAllString(s, "")
	s = serverTemplate.ReplaceAllString(s, "")
	s = mustache.ReplaceAllString(s, "")
	s = interpolation.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
