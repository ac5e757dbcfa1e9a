package services

import (
	"context"

	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

// mealTransitions is the full forward edge set of the meal lifecycle.
// failed -> processing is the explicit re-submit reset; ready is terminal.
var mealTransitions = map[string][]string{
	types.MealStatusProcessing: {types.MealStatusAnalyzing, types.MealStatusFailed},
	types.MealStatusAnalyzing:  {types.MealStatusEnriching, types.MealStatusFailed},
	types.MealStatusEnriching:  {types.MealStatusReady, types.MealStatusFailed},
	types.MealStatusReady:      {},
	types.MealStatusFailed:     {types.MealStatusProcessing},
}

func CanTransition(from, to string) bool {
	for _, next := range mealTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type MealStateService interface {
	// Apply validates the expectedCurrent -> next edge and commits it with an
	// optimistic guard: the write only lands if the meal still has
	// expectedCurrent at write time. A mismatch means a concurrent writer
	// already advanced the meal and surfaces as StateConflictError.
	// On success the in-memory meal is updated alongside the row.
	Apply(ctx context.Context, tx *gorm.DB, meal *types.Meal, expectedCurrent, next string, updates map[string]interface{}) error
}

type mealStateService struct {
	log    *logger.Logger
	meals  repos.MealRepo
	notify MealNotifier
}

func NewMealStateService(baseLog *logger.Logger, meals repos.MealRepo, notify MealNotifier) MealStateService {
	return &mealStateService{
		log:    baseLog.With("service", "MealStateService"),
		meals:  meals,
		notify: notify,
	}
}

func (s *mealStateService) Apply(ctx context.Context, tx *gorm.DB, meal *types.Meal, expectedCurrent, next string, updates map[string]interface{}) error {
	if meal == nil {
		return pkgerrors.ErrNotFound
	}
	if !CanTransition(expectedCurrent, next) {
		return &pkgerrors.StateConflictError{Entity: "meal", Expected: expectedCurrent, Next: next}
	}
	merged := map[string]interface{}{}
	for k, v := range updates {
		merged[k] = v
	}
	merged["status"] = next
	if err := s.meals.UpdateFieldsGuarded(ctx, tx, meal.ID, expectedCurrent, merged); err != nil {
		return err
	}
	meal.Status = next
	if msg, ok := merged["error_message"].(string); ok {
		meal.ErrorMessage = msg
	}
	s.log.Debug("Meal transitioned", "meal_id", meal.ID, "from", expectedCurrent, "to", next)
	if s.notify != nil {
		s.notify.StatusChanged(ctx, meal, "meal."+next)
	}
	return nil
}
