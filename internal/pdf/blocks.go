package pdf

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type lineKind int

const (
	kindParagraph lineKind = iota
	kindDivider
	kindSubheading
	kindHeading
	kindBoldHeading
	kindCapsHeading
	kindStepHeading
	kindBullet
)

var (
	dividerLine  = regexp.MustCompile(`^(?:-{3,}|_{3,}|\*{3,})$`)
	subheading   = regexp.MustCompile(`^#{2,3}\s+(.+)$`)
	heading      = regexp.MustCompile(`^#\s+(.+)$`)
	boldOnly     = regexp.MustCompile(`^\*\*([^*]+)\*\*:?$`)
	stepPrefix   = regexp.MustCompile(`(?i)^step\s+\d+\b`)
	bulletPrefix = regexp.MustCompile(`^[-•*]\s+(.+)$`)
	numbered     = regexp.MustCompile(`^\d+[.)]\s+(.+)$`)
	tableSep     = regexp.MustCompile(`^\|?\s*:?-{2,}:?\s*(?:\|\s*:?-{2,}:?\s*)*\|?$`)
)

const capsHeadingMaxRunes = 60

// classify returns the layout kind of a content line and the text to draw.
// Checks run in priority order.
func classify(line string) (lineKind, string) {
	line = strings.TrimSpace(line)
	switch {
	case dividerLine.MatchString(line):
		return kindDivider, ""
	case subheading.MatchString(line):
		return kindSubheading, subheading.FindStringSubmatch(line)[1]
	case heading.MatchString(line):
		return kindHeading, heading.FindStringSubmatch(line)[1]
	case boldOnly.MatchString(line):
		return kindBoldHeading, boldOnly.FindStringSubmatch(line)[1]
	case isCapsHeading(line):
		return kindCapsHeading, line
	case stepPrefix.MatchString(line):
		return kindStepHeading, line
	case bulletPrefix.MatchString(line):
		return kindBullet, bulletPrefix.FindStringSubmatch(line)[1]
	case numbered.MatchString(line):
		return kindBullet, numbered.FindStringSubmatch(line)[1]
	}
	return kindParagraph, line
}

func isCapsHeading(line string) bool {
	if utf8.RuneCountInString(line) > capsHeadingMaxRunes {
		return false
	}
	first, _ := utf8.DecodeRuneInString(line)
	if !unicode.IsLetter(first) {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 3
}

// block is either a single line or a table run.
type block struct {
	line  string
	table *table
}

type table struct {
	header []string
	rows   [][]string
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// groupBlocks collects contiguous pipe-delimited rows into tables before
// any per-line classification happens.
func groupBlocks(lines []string) []block {
	var blocks []block
	for i := 0; i < len(lines); {
		if !isTableRow(lines[i]) {
			blocks = append(blocks, block{line: lines[i]})
			i++
			continue
		}

		j := i
		for j < len(lines) && isTableRow(lines[j]) {
			j++
		}
		blocks = append(blocks, block{table: buildTable(lines[i:j])})
		i = j
	}
	return blocks
}

func buildTable(rows []string) *table {
	t := &table{header: splitCells(rows[0])}
	cols := len(t.header)
	for _, row := range rows[1:] {
		if tableSep.MatchString(strings.TrimSpace(row)) {
			continue
		}
		cells := splitCells(row)
		fixed := make([]string, cols)
		copy(fixed, cells)
		t.rows = append(t.rows, fixed)
	}
	return t
}
