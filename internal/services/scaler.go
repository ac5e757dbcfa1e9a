package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

// ScaleNutrition derives totals from per-100g values and a weight. Each
// field scales independently; calories is never cross-derived from macros.
func ScaleNutrition(perHundred types.Nutrition, weightGrams float64) types.Nutrition {
	return perHundred.Scale(weightGrams / 100)
}

type ScalerService interface {
	// ApplyWeightUpdate recomputes totals from the canonical per-100g values
	// at the new weight and persists synchronously before returning. Reads
	// after a returned update always observe it. Idempotent for a repeated
	// weight.
	ApplyWeightUpdate(ctx context.Context, mealID uuid.UUID, newWeightGrams float64) (*types.Meal, error)
}

type scalerService struct {
	db        *gorm.DB
	log       *logger.Logger
	meals     repos.MealRepo
	scheduler JobScheduler
}

func NewScalerService(db *gorm.DB, baseLog *logger.Logger, meals repos.MealRepo, scheduler JobScheduler) ScalerService {
	return &scalerService{
		db:        db,
		log:       baseLog.With("service", "ScalerService"),
		meals:     meals,
		scheduler: scheduler,
	}
}

func (s *scalerService) ApplyWeightUpdate(ctx context.Context, mealID uuid.UUID, newWeightGrams float64) (*types.Meal, error) {
	if newWeightGrams <= 0 {
		return nil, &pkgerrors.ValidationError{Field: "weight_grams", Reason: "must be greater than zero"}
	}
	meal, err := s.meals.GetByID(ctx, nil, mealID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"current_weight_grams": newWeightGrams,
	}
	if meal.OriginalWeightGrams == nil {
		// First declared weight becomes the baseline.
		w := newWeightGrams
		meal.OriginalWeightGrams = &w
		updates["original_weight_grams"] = newWeightGrams
	} else {
		ratio := newWeightGrams / *meal.OriginalWeightGrams
		s.log.Debug("Scaling portion", "meal_id", mealID, "ratio", ratio)
	}

	// Totals come from per-100g and the new weight directly, never from the
	// previous totals.
	total := ScaleNutrition(meal.PerHundredGrams, newWeightGrams)
	updates["total_calories"] = total.Calories
	updates["total_protein"] = total.Protein
	updates["total_carbs"] = total.Carbs
	updates["total_fat"] = total.Fat
	updates["total_fiber"] = total.Fiber

	if err := s.meals.UpdateFields(ctx, nil, mealID, updates); err != nil {
		return nil, &pkgerrors.PersistenceError{Op: "meal weight update", Err: err}
	}
	meal.CurrentWeightGrams = newWeightGrams
	meal.Total = total

	// Fire-and-forget refinement; the synchronous response above never
	// waits on it.
	if s.scheduler != nil {
		if _, created, err := s.scheduler.ScheduleRefine(ctx, nil, mealID); err != nil {
			s.log.Warn("Could not schedule refinement", "meal_id", mealID, "error", err)
		} else if created {
			s.log.Debug("Scheduled weight refinement", "meal_id", mealID)
		}
	}
	return meal, nil
}
