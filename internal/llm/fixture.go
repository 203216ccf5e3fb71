package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pageza/platecoach/backend/internal/planparser"
)

var fixtureBodies = map[string]string{
	"Nutritional Analysis": "Daily calories: 1,850 kcal\nProtein: 140 g | Carbs: 180 g | Fat: 62 g",
	"Meal Plan": "## Day 1\n- **Breakfast:** Greek yoghurt, berries and oats\n- **Lunch:** Chicken and quinoa salad\n- **Dinner:** Salmon, sweet potato and greens\n\n" +
		"## Day 2\n- **Breakfast:** Veggie omelette\n- **Lunch:** Turkey wrap\n- **Dinner:** Beef stir fry",
	"Shopping List":           "| Item | Quantity |\n|------|----------|\n| Eggs | 12 |\n| Chicken breast | 1 kg |\n| Oats | 500 g |",
	"Meal Prep Tips":          "1. Batch cook grains on Sunday\n2. Portion proteins into containers",
	"Nutrition Tips":          "- Prioritise protein at every meal\n- Eat slowly",
	"Hydration & Supplements": "Aim for 2.5 L of water daily.",
}

// FixtureProvider returns a canned, well-formed plan. It stands in for a real
// backend in development and tests.
type FixtureProvider struct{}

// NewFixtureProvider creates a fixture provider
func NewFixtureProvider() *FixtureProvider {
	return &FixtureProvider{}
}

func (FixtureProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, title := range planparser.PromptHeadings() {
		fmt.Fprintf(&sb, "# %s\n%s\n\n", title, fixtureBodies[title])
	}
	text := sb.String()

	return &Result{
		Text:         text,
		InputTokens:  len(req.System+req.Prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}
