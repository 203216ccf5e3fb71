package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/platecoach/backend/internal/planparser"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	q := sampleQuestionnaire()
	a, err := BuildPrompt(&q, "Kim Fitness")
	require.NoError(t, err)
	b, err := BuildPrompt(&q, "Kim Fitness")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildPromptContents(t *testing.T) {
	q := sampleQuestionnaire()
	q.Dislikes = ""
	prompt, err := BuildPrompt(&q, "Kim Fitness")
	require.NoError(t, err)

	for _, want := range []string{
		"7-day personalised nutrition plan",
		"of Kim Fitness",
		"CLIENT PROFILE", "GOALS", "DIETARY CONSTRAINTS", "PRACTICAL CONSTRAINTS", "OUTPUT FORMAT",
		"Activity level: moderately active",
		"Primary goal: fat loss",
		"Allergies: peanuts",
		"Dislikes: none reported",
		"Meals per day: 3",
	} {
		assert.Contains(t, prompt, want)
	}
	for _, heading := range planparser.PromptHeadings() {
		assert.Contains(t, prompt, "\n# "+heading+"\n")
	}
}

func TestBuildPromptWithoutBusinessName(t *testing.T) {
	q := sampleQuestionnaire()
	prompt, err := BuildPrompt(&q, "")
	require.NoError(t, err)
	assert.Contains(t, prompt, "for a coaching client.\n")
}
