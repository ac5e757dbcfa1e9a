package app

import (
	"github.com/platewise/platewise-backend/internal/handlers"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
)

type Handlers struct {
	Meal       *handlers.MealHandler
	Ingredient *handlers.IngredientHandler
	Jobs       *handlers.JobsHandler
	Events     *handlers.EventsHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, reposet Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Meal:       handlers.NewMealHandler(serviceset.Meal, serviceset.Scaler),
		Ingredient: handlers.NewIngredientHandler(serviceset.Ingredient),
		Jobs:       handlers.NewJobsHandler(reposet.AnalysisJob),
		Events:     handlers.NewEventsHandler(serviceset.Hub),
	}
}
