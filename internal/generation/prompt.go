package generation

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/pageza/platecoach/backend/internal/planparser"
	"github.com/pageza/platecoach/backend/internal/questionnaire"
)

//go:embed prompt.md
var promptTemplate string

const systemPrompt = "You are a registered dietitian writing practical, evidence-based nutrition plans for personal trainers' clients. Follow the requested output format exactly."

var planPrompt = template.Must(template.New("plan").Funcs(template.FuncMap{
	"human": func(s string) string { return strings.ReplaceAll(s, "_", " ") },
}).Parse(promptTemplate))

type promptData struct {
	Q            *questionnaire.ClientQuestionnaire
	BusinessName string
	Headings     []string
}

// BuildPrompt renders the generation prompt. The output depends only on its inputs.
func BuildPrompt(q *questionnaire.ClientQuestionnaire, businessName string) (string, error) {
	var buf bytes.Buffer
	err := planPrompt.Execute(&buf, promptData{
		Q:            q,
		BusinessName: businessName,
		Headings:     planparser.PromptHeadings(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
