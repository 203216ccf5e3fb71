package planparser

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sections.yaml
var sectionsYAML []byte

type sectionDef struct {
	Title string   `yaml:"title"`
	Names []string `yaml:"names"`

	pattern *regexp.Regexp
}

type sectionTable struct {
	Sections []sectionDef `yaml:"sections"`
}

var canonical = mustLoadSections(sectionsYAML)

func mustLoadSections(data []byte) []sectionDef {
	defs, err := loadSections(data)
	if err != nil {
		panic(err)
	}
	return defs
}

func loadSections(data []byte) ([]sectionDef, error) {
	var table sectionTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse section table: %w", err)
	}
	if len(table.Sections) == 0 {
		return nil, fmt.Errorf("section table is empty")
	}

	for i := range table.Sections {
		def := &table.Sections[i]
		if def.Title == "" || len(def.Names) == 0 {
			return nil, fmt.Errorf("section %d needs a title and at least one name", i)
		}
		alts := make([]string, len(def.Names))
		for j, name := range def.Names {
			alts[j] = strings.Join(strings.Fields(regexp.QuoteMeta(name)), `\s+`)
		}
		// optional "7-day " prefix, optional " guide" or " & advice" suffix
		expr := `(?i)^(?:\d+\s*-?\s*days?\s+)?(?:` + strings.Join(alts, "|") + `)(?:\s+guide|\s*(?:&|and)\s*advice)?$`
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", def.Title, err)
		}
		def.pattern = re
	}
	return table.Sections, nil
}

// PromptHeadings returns the canonical section titles in prompt order. The
// generation prompt asks for exactly these headings so the parser can find them.
func PromptHeadings() []string {
	titles := make([]string, len(canonical))
	for i, def := range canonical {
		titles[i] = def.Title
	}
	return titles
}

// CanonicalTitle maps a cleaned heading title to its canonical section title.
func CanonicalTitle(clean string) (string, bool) {
	for _, def := range canonical {
		if def.pattern.MatchString(clean) {
			return def.Title, true
		}
	}
	return "", false
}
