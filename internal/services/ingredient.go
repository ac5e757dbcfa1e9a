package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

const (
	IngredientActionAdd    = "add"
	IngredientActionUpdate = "update"
	IngredientActionRemove = "remove"
)

// IngredientOp is one entry of an ordered mutation batch.
type IngredientOp struct {
	Action   string          `json:"action"`
	ID       *uuid.UUID      `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Quantity float64         `json:"quantity,omitempty"`
	Unit     string          `json:"unit,omitempty"`
	Macros   types.Nutrition `json:"macros,omitempty"`
}

type IngredientService interface {
	// Apply runs the batch transactionally, recomputes the meal's aggregate
	// nutrition from the surviving ingredient set synchronously, and
	// enqueues an ingredient-aware refinement so the vision estimate
	// eventually supersedes the naive sum. Reads always see the latest
	// committed value, whichever source wrote it.
	Apply(ctx context.Context, mealID uuid.UUID, ops []IngredientOp) (*types.Meal, []types.FoodItem, error)
	List(ctx context.Context, mealID uuid.UUID) ([]types.FoodItem, error)
}

type ingredientService struct {
	db        *gorm.DB
	log       *logger.Logger
	meals     repos.MealRepo
	items     repos.FoodItemRepo
	scheduler JobScheduler
}

func NewIngredientService(db *gorm.DB, baseLog *logger.Logger, meals repos.MealRepo, items repos.FoodItemRepo, scheduler JobScheduler) IngredientService {
	return &ingredientService{
		db:        db,
		log:       baseLog.With("service", "IngredientService"),
		meals:     meals,
		items:     items,
		scheduler: scheduler,
	}
}

func (s *ingredientService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *ingredientService) Apply(ctx context.Context, mealID uuid.UUID, ops []IngredientOp) (*types.Meal, []types.FoodItem, error) {
	if len(ops) == 0 {
		return nil, nil, &pkgerrors.ValidationError{Field: "operations", Reason: "must not be empty"}
	}
	meal, err := s.meals.GetByID(ctx, nil, mealID)
	if err != nil {
		return nil, nil, err
	}

	var out []types.FoodItem
	err = s.transact(ctx, func(tx *gorm.DB) error {
		for i, op := range ops {
			if err := s.applyOne(ctx, tx, mealID, op); err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
		}
		items, err := s.items.ListByMeal(ctx, tx, mealID)
		if err != nil {
			return err
		}
		out = items
		return s.recompute(ctx, tx, meal, items)
	})
	if err != nil {
		return nil, nil, err
	}

	if s.scheduler != nil {
		if _, created, err := s.scheduler.ScheduleRefine(ctx, nil, mealID); err != nil {
			s.log.Warn("Could not schedule ingredient refinement", "meal_id", mealID, "error", err)
		} else if created {
			s.log.Debug("Scheduled ingredient refinement", "meal_id", mealID)
		}
	}
	return meal, out, nil
}

func (s *ingredientService) applyOne(ctx context.Context, tx *gorm.DB, mealID uuid.UUID, op IngredientOp) error {
	switch op.Action {
	case IngredientActionAdd:
		if err := validateItemFields(op); err != nil {
			return err
		}
		item := &types.FoodItem{
			ID:       uuid.New(),
			MealID:   mealID,
			Name:     strings.TrimSpace(op.Name),
			Quantity: op.Quantity,
			Unit:     strings.TrimSpace(op.Unit),
			Macros:   op.Macros,
		}
		_, err := s.items.Create(ctx, tx, item)
		return err
	case IngredientActionUpdate:
		if op.ID == nil {
			return &pkgerrors.ValidationError{Field: "id", Reason: "required for update"}
		}
		if err := validateItemFields(op); err != nil {
			return err
		}
		existing, err := s.items.GetByID(ctx, tx, *op.ID)
		if err != nil {
			return err
		}
		if existing.MealID != mealID {
			return pkgerrors.ErrNotFound
		}
		return s.items.UpdateFields(ctx, tx, existing.ID, map[string]interface{}{
			"name":           strings.TrimSpace(op.Name),
			"quantity":       op.Quantity,
			"unit":           strings.TrimSpace(op.Unit),
			"macro_calories": op.Macros.Calories,
			"macro_protein":  op.Macros.Protein,
			"macro_carbs":    op.Macros.Carbs,
			"macro_fat":      op.Macros.Fat,
			"macro_fiber":    op.Macros.Fiber,
			"updated_at":     time.Now(),
		})
	case IngredientActionRemove:
		if op.ID == nil {
			return &pkgerrors.ValidationError{Field: "id", Reason: "required for remove"}
		}
		existing, err := s.items.GetByID(ctx, tx, *op.ID)
		if err != nil {
			return err
		}
		if existing.MealID != mealID {
			return pkgerrors.ErrNotFound
		}
		return s.items.Delete(ctx, tx, existing.ID)
	default:
		return &pkgerrors.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", op.Action)}
	}
}

func validateItemFields(op IngredientOp) error {
	if strings.TrimSpace(op.Name) == "" {
		return &pkgerrors.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if op.Quantity <= 0 {
		return &pkgerrors.ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(op.Unit) == "" {
		return &pkgerrors.ValidationError{Field: "unit", Reason: "must not be empty"}
	}
	return nil
}

// recompute makes the ingredient set the authoritative nutrition source:
// the total is the sum of item macros, and when a weight is tracked the
// per-100g figures are re-derived from it so the scaler invariant holds.
func (s *ingredientService) recompute(ctx context.Context, tx *gorm.DB, meal *types.Meal, items []types.FoodItem) error {
	var total types.Nutrition
	for _, item := range items {
		total = total.Add(item.Macros)
	}
	updates := map[string]interface{}{
		"total_calories": total.Calories,
		"total_protein":  total.Protein,
		"total_carbs":    total.Carbs,
		"total_fat":      total.Fat,
		"total_fiber":    total.Fiber,
	}
	perHundred := meal.PerHundredGrams
	if meal.CurrentWeightGrams > 0 {
		perHundred = total.Scale(100 / meal.CurrentWeightGrams)
		updates["per100g_calories"] = perHundred.Calories
		updates["per100g_protein"] = perHundred.Protein
		updates["per100g_carbs"] = perHundred.Carbs
		updates["per100g_fat"] = perHundred.Fat
		updates["per100g_fiber"] = perHundred.Fiber
	}
	if err := s.meals.UpdateFields(ctx, tx, meal.ID, updates); err != nil {
		return &pkgerrors.PersistenceError{Op: "meal nutrition recompute", Err: err}
	}
	meal.Total = total
	meal.PerHundredGrams = perHundred
	return nil
}

func (s *ingredientService) List(ctx context.Context, mealID uuid.UUID) ([]types.FoodItem, error) {
	if _, err := s.meals.GetByID(ctx, nil, mealID); err != nil {
		return nil, err
	}
	return s.items.ListByMeal(ctx, nil, mealID)
}
