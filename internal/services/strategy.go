package services

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/types"
)

const (
	ContextNone        = "none"
	ContextPortion     = "portion"
	ContextIngredients = "ingredients"
)

// AnalysisContext tags which strategy applies for one analysis invocation.
// Exactly one of the variants is active, selected by BuildAnalysisContext.
type AnalysisContext struct {
	Kind        string
	WeightGrams float64
	Items       []types.FoodItem
}

// PromptSpec is the outbound vision request: prompts plus the structured
// output schema the model must satisfy.
type PromptSpec struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]any
}

// NutritionEstimate is a parsed vision result. PerHundredGrams is the
// canonical unit regardless of strategy.
type NutritionEstimate struct {
	PerHundredGrams      types.Nutrition
	EstimatedWeightGrams float64
	Confidence           float64
}

// AnalysisStrategy is a pure transformer: (meal snapshot, context) -> prompt
// and (raw response) -> estimate. Strategies never mutate the meal.
type AnalysisStrategy interface {
	Name() string
	BuildRequest(meal *types.Meal, actx AnalysisContext) PromptSpec
	Parse(raw map[string]any) (*NutritionEstimate, error)
}

// BuildAnalysisContext derives the context from what is known about the
// meal: persisted ingredients win, then a declared weight, then nothing.
func BuildAnalysisContext(meal *types.Meal, items []types.FoodItem) AnalysisContext {
	if len(items) > 0 {
		return AnalysisContext{Kind: ContextIngredients, Items: items}
	}
	if meal != nil {
		if meal.OriginalWeightGrams != nil && *meal.OriginalWeightGrams > 0 {
			return AnalysisContext{Kind: ContextPortion, WeightGrams: meal.CurrentWeightGrams}
		}
		if meal.CurrentWeightGrams > 0 {
			return AnalysisContext{Kind: ContextPortion, WeightGrams: meal.CurrentWeightGrams}
		}
	}
	return AnalysisContext{Kind: ContextNone}
}

func ResolveStrategy(actx AnalysisContext) AnalysisStrategy {
	switch actx.Kind {
	case ContextIngredients:
		return ingredientAwareStrategy{}
	case ContextPortion:
		return portionAwareStrategy{}
	default:
		return basicStrategy{}
	}
}

const estimateSchemaName = "meal_nutrition_estimate"

func estimateSchema() map[string]any {
	macroProps := map[string]any{
		"calories": map[string]any{"type": "number"},
		"protein":  map[string]any{"type": "number"},
		"carbs":    map[string]any{"type": "number"},
		"fat":      map[string]any{"type": "number"},
		"fiber":    map[string]any{"type": "number"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"per_100g": map[string]any{
				"type":                 "object",
				"properties":           macroProps,
				"required":             []string{"calories", "protein", "carbs", "fat", "fiber"},
				"additionalProperties": false,
			},
			"estimated_weight_grams": map[string]any{"type": "number"},
			"confidence":             map[string]any{"type": "number"},
		},
		"required":             []string{"per_100g", "estimated_weight_grams", "confidence"},
		"additionalProperties": false,
	}
}

const systemPrompt = "You are a nutrition analysis assistant. You estimate the nutritional " +
	"content of meals from photographs. Always report nutrition per 100 grams of the meal " +
	"as served, an estimated total weight in grams, and a confidence between 0 and 1."

// parseEstimate is shared by all strategies: the wire schema is identical,
// only the prompt differs. Malformed or partial output is a retryable
// provider failure.
func parseEstimate(raw map[string]any) (*NutritionEstimate, error) {
	if raw == nil {
		return nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: "empty response"}
	}
	per, ok := raw["per_100g"].(map[string]any)
	if !ok {
		return nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: "missing per_100g object"}
	}
	var n types.Nutrition
	fields := []struct {
		key string
		dst *float64
	}{
		{"calories", &n.Calories},
		{"protein", &n.Protein},
		{"carbs", &n.Carbs},
		{"fat", &n.Fat},
		{"fiber", &n.Fiber},
	}
	for _, f := range fields {
		v, ok := numberField(per, f.key)
		if !ok || v < 0 {
			return nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: fmt.Sprintf("bad per_100g field %q", f.key)}
		}
		*f.dst = v
	}
	weight, ok := numberField(raw, "estimated_weight_grams")
	if !ok || weight < 0 {
		return nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: "bad estimated_weight_grams"}
	}
	confidence, ok := numberField(raw, "confidence")
	if !ok {
		return nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: "bad confidence"}
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &NutritionEstimate{
		PerHundredGrams:      n,
		EstimatedWeightGrams: weight,
		Confidence:           confidence,
	}, nil
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Basic: image only, standalone estimation.
type basicStrategy struct{}

func (basicStrategy) Name() string { return "basic" }

func (basicStrategy) BuildRequest(meal *types.Meal, actx AnalysisContext) PromptSpec {
	return PromptSpec{
		System: systemPrompt,
		User: "Identify the meal in the photo and estimate its nutrition. " +
			"Report calories, protein, carbs, fat and fiber per 100 grams, the estimated " +
			"total weight of the portion in grams, and your confidence.",
		SchemaName: estimateSchemaName,
		Schema:     estimateSchema(),
	}
}

func (basicStrategy) Parse(raw map[string]any) (*NutritionEstimate, error) {
	return parseEstimate(raw)
}

// PortionAware: the user declared a weight; the model conditions its
// estimate on it for better absolute accuracy, but per-100g stays the
// canonical output unit.
type portionAwareStrategy struct{}

func (portionAwareStrategy) Name() string { return "portion_aware" }

func (portionAwareStrategy) BuildRequest(meal *types.Meal, actx AnalysisContext) PromptSpec {
	return PromptSpec{
		System: systemPrompt,
		User: fmt.Sprintf(
			"Identify the meal in the photo. The user weighed this portion: it is %.0f grams. "+
				"Use that weight to calibrate your estimate of the preparation and density, then "+
				"report calories, protein, carbs, fat and fiber per 100 grams, echo the portion "+
				"weight as estimated_weight_grams, and give your confidence.",
			actx.WeightGrams,
		),
		SchemaName: estimateSchemaName,
		Schema:     estimateSchema(),
	}
}

func (portionAwareStrategy) Parse(raw map[string]any) (*NutritionEstimate, error) {
	return parseEstimate(raw)
}

// IngredientAware: compute the combined nutrition of the listed items
// rather than re-identifying food from pixels alone.
type ingredientAwareStrategy struct{}

func (ingredientAwareStrategy) Name() string { return "ingredient_aware" }

func (ingredientAwareStrategy) BuildRequest(meal *types.Meal, actx AnalysisContext) PromptSpec {
	var b strings.Builder
	for _, item := range actx.Items {
		fmt.Fprintf(&b, "- %s: %.1f %s (listed as %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat, %.1fg fiber)\n",
			item.Name, item.Quantity, item.Unit,
			item.Macros.Calories, item.Macros.Protein, item.Macros.Carbs, item.Macros.Fat, item.Macros.Fiber)
	}
	return PromptSpec{
		System: systemPrompt,
		User: "The meal in the photo is composed of these ingredients:\n" + b.String() +
			"Compute the combined nutrition of the listed items, using the photo only to judge " +
			"preparation effects such as added fat or cooking loss. Report calories, protein, " +
			"carbs, fat and fiber per 100 grams of the combined dish, the total weight in grams, " +
			"and your confidence.",
		SchemaName: estimateSchemaName,
		Schema:     estimateSchema(),
	}
}

func (ingredientAwareStrategy) Parse(raw map[string]any) (*NutritionEstimate, error) {
	return parseEstimate(raw)
}
