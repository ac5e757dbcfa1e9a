package app

import (
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
)

type Repos struct {
	Meal        repos.MealRepo
	FoodItem    repos.FoodItemRepo
	AnalysisJob repos.AnalysisJobRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Meal:        repos.NewMealRepo(db, log),
		FoodItem:    repos.NewFoodItemRepo(db, log),
		AnalysisJob: repos.NewAnalysisJobRepo(db, log),
	}
}
