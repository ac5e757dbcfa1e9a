package app

import (
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/clients/gcp"
	"github.com/platewise/platewise-backend/internal/clients/openai"
	redisclient "github.com/platewise/platewise-backend/internal/clients/redis"
	"github.com/platewise/platewise-backend/internal/jobs"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/services"
)

type Services struct {
	Bucket     gcp.BucketClient
	Bus        redisclient.StatusBus
	Hub        *services.StatusHub
	Notifier   services.MealNotifier
	MealState  services.MealStateService
	Vision     services.VisionService
	Scaler     services.ScalerService
	Ingredient services.IngredientService
	Meal       services.MealService
	Scheduler  *jobs.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Services{}, err
	}

	// Storage and the status bus are optional: without them images must be
	// full URLs and transitions are only logged.
	bucket, err := gcp.NewBucketClient(log)
	if err != nil {
		log.Warn("Bucket client unavailable, image keys must be URLs", "error", err)
		bucket = nil
	}
	var bus redisclient.StatusBus
	if b, err := redisclient.NewStatusBus(log); err != nil {
		log.Warn("Redis status bus unavailable, transitions will not be published", "error", err)
	} else {
		bus = b
	}

	hub := services.NewStatusHub(log)
	notifier := services.NewMealNotifier(log, bus, hub)
	state := services.NewMealStateService(log, reposet.Meal, notifier)
	vision := services.NewVisionService(log, openaiClient, cfg.VisionTimeout)
	scheduler := jobs.NewScheduler(db, log, reposet.AnalysisJob)
	scaler := services.NewScalerService(db, log, reposet.Meal, scheduler)
	ingredient := services.NewIngredientService(db, log, reposet.Meal, reposet.FoodItem, scheduler)
	meal := services.NewMealService(db, log, reposet.Meal, reposet.FoodItem, reposet.AnalysisJob, bucket, state, scheduler, notifier)

	return Services{
		Bucket:     bucket,
		Bus:        bus,
		Hub:        hub,
		Notifier:   notifier,
		MealState:  state,
		Vision:     vision,
		Scaler:     scaler,
		Ingredient: ingredient,
		Meal:       meal,
		Scheduler:  scheduler,
	}, nil
}
