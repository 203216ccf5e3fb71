// Package questionnaire turns an untyped client questionnaire into a
// sanitized, bounds-checked ClientQuestionnaire.
package questionnaire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pageza/platecoach/backend/internal/apperrors"
)

// ClientQuestionnaire is the validated profile that drives plan generation.
// It is immutable once accepted and reused verbatim on retry.
type ClientQuestionnaire struct {
	Name             string `json:"name" validate:"required,max=100"`
	Age              int    `json:"age" validate:"min=16,max=100"`
	Gender           string `json:"gender" validate:"oneof=male female other"`
	HeightCM         int    `json:"height_cm" validate:"min=140,max=220"`
	WeightKG         int    `json:"weight_kg" validate:"min=40,max=200"`
	GoalWeightKG     int    `json:"goal_weight_kg" validate:"min=40,max=200"`
	ActivityLevel    string `json:"activity_level" validate:"oneof=sedentary lightly_active moderately_active very_active extremely_active"`
	Goal             string `json:"goal" validate:"oneof=fat_loss muscle_gain maintenance recomposition performance general_health"`
	DietType         string `json:"diet_type" validate:"oneof=omnivore vegetarian vegan pescatarian keto paleo mediterranean gluten_free dairy_free"`
	Allergies        string `json:"allergies" validate:"max=500"`
	Dislikes         string `json:"dislikes" validate:"max=500"`
	Preferences      string `json:"preferences" validate:"max=500"`
	WeeklyBudget     int    `json:"weekly_budget" validate:"min=10,max=1000"`
	CookingSkill     string `json:"cooking_skill" validate:"oneof=beginner intermediate advanced"`
	PrepTimeMinutes  int    `json:"prep_time_minutes" validate:"min=10,max=120"`
	MealsPerDay      int    `json:"meals_per_day" validate:"min=2,max=6"`
	PlanDurationDays int    `json:"plan_duration_days" validate:"min=3,max=30"`
	MealVariety      string `json:"meal_variety" validate:"oneof=high_variety balanced batch_cooking"`
}

var (
	textFields    = []string{"name", "allergies", "dislikes", "preferences"}
	enumFields    = []string{"gender", "activity_level", "goal", "diet_type", "cooking_skill", "meal_variety"}
	numericFields = []string{"age", "height_cm", "weight_kg", "goal_weight_kg", "weekly_budget", "prep_time_minutes", "meals_per_day", "plan_duration_days"}
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate sanitizes and checks raw, returning either a questionnaire or a
// *apperrors.ValidationError holding the first message per field.
func Validate(raw map[string]any) (*ClientQuestionnaire, error) {
	verr := apperrors.NewValidationError()
	clean := make(map[string]any, len(textFields)+len(enumFields)+len(numericFields))

	for _, key := range textFields {
		v, ok := raw[key]
		if !ok || v == nil {
			clean[key] = ""
			continue
		}
		s, ok := v.(string)
		if !ok {
			verr.Add(key, "must be a string")
			continue
		}
		clean[key] = Sanitize(s)
	}

	for _, key := range enumFields {
		v, ok := raw[key]
		if !ok || v == nil {
			verr.Add(key, "is required")
			continue
		}
		s, ok := v.(string)
		if !ok {
			verr.Add(key, "must be a string")
			continue
		}
		clean[key] = strings.ToLower(Sanitize(s))
	}

	for _, key := range numericFields {
		v, ok := raw[key]
		if !ok || v == nil {
			verr.Add(key, "is required")
			continue
		}
		n, err := coerceInt(v)
		if errors.Is(err, errNotWhole) {
			verr.Add(key, "must be a whole number")
			continue
		}
		if err != nil {
			verr.Add(key, "must be a number")
			continue
		}
		clean[key] = n
	}

	q := &ClientQuestionnaire{}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to encode questionnaire: %w", err)
	}
	if err := json.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("failed to decode questionnaire: %w", err)
	}

	if err := structValidator().Struct(q); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, fmt.Errorf("failed to validate questionnaire: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), message(fe))
		}
	}

	if verr.HasErrors() {
		return nil, verr
	}
	return q, nil
}

func message(fe validator.FieldError) string {
	isText := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if isText {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if isText {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

var errNotWhole = errors.New("not a whole number")

// coerceInt accepts JSON numbers and numeric-looking strings holding a whole
// number. "80.0" is 80; "80.9" is rejected with errNotWhole.
func coerceInt(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	if f != math.Trunc(f) {
		return 0, errNotWhole
	}
	return int(f), nil
}
