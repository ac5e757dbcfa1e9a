package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/types"
)

func TestBuildAnalysisContextSelection(t *testing.T) {
	plain := &types.Meal{ID: uuid.New()}
	if actx := BuildAnalysisContext(plain, nil); actx.Kind != ContextNone {
		t.Fatalf("bare meal: expected %q, got %q", ContextNone, actx.Kind)
	}

	w := 250.0
	weighed := &types.Meal{ID: uuid.New(), OriginalWeightGrams: &w, CurrentWeightGrams: 250}
	actx := BuildAnalysisContext(weighed, nil)
	if actx.Kind != ContextPortion || actx.WeightGrams != 250 {
		t.Fatalf("weighed meal: got %+v", actx)
	}

	// Ingredients take precedence over a declared weight.
	items := []types.FoodItem{{ID: uuid.New(), Name: "Rice", Quantity: 180, Unit: "g"}}
	actx = BuildAnalysisContext(weighed, items)
	if actx.Kind != ContextIngredients || len(actx.Items) != 1 {
		t.Fatalf("ingredient meal: got %+v", actx)
	}
}

func TestResolveStrategy(t *testing.T) {
	cases := map[string]string{
		ContextNone:        "basic",
		ContextPortion:     "portion_aware",
		ContextIngredients: "ingredient_aware",
	}
	for kind, name := range cases {
		if got := ResolveStrategy(AnalysisContext{Kind: kind}).Name(); got != name {
			t.Fatalf("kind %q: expected strategy %q, got %q", kind, name, got)
		}
	}
}

func TestPortionAwarePromptCarriesWeight(t *testing.T) {
	strategy := ResolveStrategy(AnalysisContext{Kind: ContextPortion})
	spec := strategy.BuildRequest(&types.Meal{}, AnalysisContext{Kind: ContextPortion, WeightGrams: 280})
	if !strings.Contains(spec.User, "280 grams") {
		t.Fatalf("prompt should carry the declared weight: %q", spec.User)
	}
	if spec.SchemaName != estimateSchemaName || spec.Schema == nil {
		t.Fatalf("prompt should carry the shared estimate schema")
	}
}

func TestIngredientAwarePromptListsItems(t *testing.T) {
	items := []types.FoodItem{
		{Name: "Quinoa", Quantity: 85, Unit: "g", Macros: types.Nutrition{Calories: 120}},
		{Name: "Grilled chicken", Quantity: 150, Unit: "g", Macros: types.Nutrition{Calories: 247}},
	}
	strategy := ResolveStrategy(AnalysisContext{Kind: ContextIngredients})
	spec := strategy.BuildRequest(&types.Meal{}, AnalysisContext{Kind: ContextIngredients, Items: items})
	for _, name := range []string{"Quinoa", "Grilled chicken"} {
		if !strings.Contains(spec.User, name) {
			t.Fatalf("prompt missing ingredient %q: %q", name, spec.User)
		}
	}
}

func TestParseEstimateRoundTrip(t *testing.T) {
	raw := map[string]any{
		"per_100g": map[string]any{
			"calories": 150.0,
			"protein":  10.5,
			"carbs":    20.0,
			"fat":      5.0,
			"fiber":    2.2,
		},
		"estimated_weight_grams": 340.0,
		"confidence":             0.85,
	}
	est, err := parseEstimate(raw)
	if err != nil {
		t.Fatalf("parseEstimate: %v", err)
	}
	if est.PerHundredGrams.Calories != 150 || est.PerHundredGrams.Protein != 10.5 {
		t.Fatalf("per-100g mismatch: %+v", est.PerHundredGrams)
	}
	if est.EstimatedWeightGrams != 340 || est.Confidence != 0.85 {
		t.Fatalf("weight/confidence mismatch: %+v", est)
	}
}

func TestParseEstimateClampsConfidence(t *testing.T) {
	raw := map[string]any{
		"per_100g": map[string]any{
			"calories": 100.0, "protein": 1.0, "carbs": 1.0, "fat": 1.0, "fiber": 1.0,
		},
		"estimated_weight_grams": 100.0,
		"confidence":             1.7,
	}
	est, err := parseEstimate(raw)
	if err != nil {
		t.Fatalf("parseEstimate: %v", err)
	}
	if est.Confidence != 1 {
		t.Fatalf("expected clamp to 1, got %v", est.Confidence)
	}
}

func TestParseEstimateRejectsMalformedOutput(t *testing.T) {
	cases := []map[string]any{
		nil,
		{},
		{"per_100g": "not an object", "estimated_weight_grams": 100.0, "confidence": 0.5},
		{"per_100g": map[string]any{"calories": "lots"}, "estimated_weight_grams": 100.0, "confidence": 0.5},
		{"per_100g": map[string]any{"calories": -10.0, "protein": 1.0, "carbs": 1.0, "fat": 1.0, "fiber": 1.0}, "estimated_weight_grams": 100.0, "confidence": 0.5},
		{"per_100g": map[string]any{"calories": 100.0, "protein": 1.0, "carbs": 1.0, "fat": 1.0, "fiber": 1.0}, "estimated_weight_grams": -1.0, "confidence": 0.5},
	}
	for i, raw := range cases {
		_, err := parseEstimate(raw)
		var verr *pkgerrors.VisionServiceError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected VisionServiceError, got %v", i, err)
		}
		if !verr.Retryable {
			t.Fatalf("case %d: malformed provider output should be retryable", i)
		}
	}
}
