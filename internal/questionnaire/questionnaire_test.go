package questionnaire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/platecoach/backend/internal/apperrors"
)

func validRaw() map[string]any {
	return map[string]any{
		"name":               "Sarah",
		"age":                float64(30),
		"gender":             "female",
		"height_cm":          float64(168),
		"weight_kg":          float64(72),
		"goal_weight_kg":     float64(65),
		"activity_level":     "moderately_active",
		"goal":               "fat_loss",
		"diet_type":          "omnivore",
		"allergies":          "peanuts",
		"weekly_budget":      float64(70),
		"cooking_skill":      "intermediate",
		"prep_time_minutes":  float64(30),
		"meals_per_day":      float64(3),
		"plan_duration_days": float64(7),
		"meal_variety":       "balanced",
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Fields
}

func TestValidateAcceptsCompleteQuestionnaire(t *testing.T) {
	q, err := Validate(validRaw())
	require.NoError(t, err)

	assert.Equal(t, "Sarah", q.Name)
	assert.Equal(t, 30, q.Age)
	assert.Equal(t, "moderately_active", q.ActivityLevel)
	assert.Equal(t, "peanuts", q.Allergies)
	assert.Equal(t, "", q.Dislikes)
	assert.Equal(t, 7, q.PlanDurationDays)
}

func TestValidateCoercesNumbers(t *testing.T) {
	raw := validRaw()
	raw["age"] = " 42 "
	raw["weight_kg"] = json.Number("80.0")
	raw["meals_per_day"] = "4"

	q, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, 42, q.Age)
	assert.Equal(t, 80, q.WeightKG)
	assert.Equal(t, 4, q.MealsPerDay)
}

func TestValidateRejectsNonNumeric(t *testing.T) {
	raw := validRaw()
	raw["age"] = "thirty"
	raw["height_cm"] = true

	fields := fieldErrors(t, mustFail(t, raw))
	assert.Equal(t, "must be a number", fields["age"])
	assert.Equal(t, "must be a number", fields["height_cm"])
}

func TestValidateRejectsFractions(t *testing.T) {
	raw := validRaw()
	raw["age"] = "100.9"
	raw["meals_per_day"] = 3.5
	raw["weight_kg"] = json.Number("15.9")

	fields := fieldErrors(t, mustFail(t, raw))
	assert.Equal(t, "must be a whole number", fields["age"])
	assert.Equal(t, "must be a whole number", fields["meals_per_day"])
	assert.Equal(t, "must be a whole number", fields["weight_kg"])
}

func TestValidateBounds(t *testing.T) {
	bounds := []struct {
		field    string
		min, max int
	}{
		{"age", 16, 100},
		{"weight_kg", 40, 200},
		{"goal_weight_kg", 40, 200},
		{"height_cm", 140, 220},
		{"weekly_budget", 10, 1000},
		{"meals_per_day", 2, 6},
		{"plan_duration_days", 3, 30},
		{"prep_time_minutes", 10, 120},
	}

	for _, b := range bounds {
		t.Run(b.field, func(t *testing.T) {
			for _, ok := range []int{b.min, b.max} {
				raw := validRaw()
				raw[b.field] = float64(ok)
				_, err := Validate(raw)
				assert.NoError(t, err, "boundary %d should pass", ok)
			}

			raw := validRaw()
			raw[b.field] = float64(b.min - 1)
			assert.Contains(t, fieldErrors(t, mustFail(t, raw))[b.field], "at least")

			raw = validRaw()
			raw[b.field] = float64(b.max + 1)
			assert.Contains(t, fieldErrors(t, mustFail(t, raw))[b.field], "at most")
		})
	}
}

func TestValidateEnums(t *testing.T) {
	raw := validRaw()
	raw["gender"] = "unknown"
	raw["diet_type"] = "carnivore"
	raw["goal"] = "FAT_LOSS"

	fields := fieldErrors(t, mustFail(t, raw))
	assert.Equal(t, "must be one of: male, female, other", fields["gender"])
	assert.Contains(t, fields["diet_type"], "must be one of:")
	assert.NotContains(t, fields, "goal")
}

func TestValidateMissingFields(t *testing.T) {
	raw := validRaw()
	delete(raw, "meal_variety")
	delete(raw, "age")

	fields := fieldErrors(t, mustFail(t, raw))
	assert.Equal(t, "is required", fields["meal_variety"])
	assert.Equal(t, "is required", fields["age"])
}

func TestValidateName(t *testing.T) {
	raw := validRaw()
	raw["name"] = "   \t "
	assert.Equal(t, "is required", fieldErrors(t, mustFail(t, raw))["name"])

	raw["name"] = "<b></b>"
	assert.Equal(t, "is required", fieldErrors(t, mustFail(t, raw))["name"])

	raw["name"] = strings.Repeat("a", 101)
	assert.Equal(t, "must be at most 100 characters", fieldErrors(t, mustFail(t, raw))["name"])

	raw["name"] = strings.Repeat("a", 100)
	_, err := Validate(raw)
	assert.NoError(t, err)
}

func TestValidateFreeTextLength(t *testing.T) {
	raw := validRaw()
	raw["preferences"] = strings.Repeat("x", 501)
	assert.Equal(t, "must be at most 500 characters", fieldErrors(t, mustFail(t, raw))["preferences"])

	raw["preferences"] = strings.Repeat("x", 500)
	_, err := Validate(raw)
	assert.NoError(t, err)
}

func TestValidateSanitizesText(t *testing.T) {
	raw := validRaw()
	raw["name"] = "  <b>Sarah</b><script>alert(1)</script> "
	raw["dislikes"] = "olives {{ .Secret }} and ${env.KEY} <% exec %>\x00"

	q, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sarah", q.Name)
	assert.Equal(t, "olives  and", q.Dislikes)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"keep\nnewline\tand tab", "keep\nnewline\tand tab"},
		{"bell\x07 char\x7f", "bell char"},
		{"<SCRIPT type=x>bad()</script>ok", "ok"},
		{"<div class=\"a\">text</div>", "text"},
		{"<scr<script></script>ipt>alert(1)</script>", "alert(1)"},
		{"{{{{x}}}}y", "}}y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"  Sarah  ",
		"<<b>b>bold</b>",
		"a {{ {{x}} }} b",
		"$${x}{y}",
		"<%<%x%>%>",
		"<scr<script>x</script>ipt>y</script>",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func mustFail(t *testing.T, raw map[string]any) error {
	t.Helper()
	_, err := Validate(raw)
	require.Error(t, err)
	return err
}
