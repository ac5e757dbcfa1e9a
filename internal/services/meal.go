package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/clients/gcp"
	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

type MealService interface {
	// Create registers an already-stored image and returns the meal in
	// processing immediately; the analysis job is scheduled, not awaited.
	Create(ctx context.Context, imageKey string) (*types.Meal, error)
	// Upload stores the image first, then behaves like Create.
	Upload(ctx context.Context, filename string, file io.Reader) (*types.Meal, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Meal, error)
	// Resubmit resets a failed meal to processing and restarts the pipeline.
	Resubmit(ctx context.Context, id uuid.UUID) (*types.Meal, error)
	// Delete removes the meal with its items and jobs, then best-effort
	// removes the stored image.
	Delete(ctx context.Context, id uuid.UUID) error
}

type mealService struct {
	db        *gorm.DB
	log       *logger.Logger
	meals     repos.MealRepo
	items     repos.FoodItemRepo
	jobs      repos.AnalysisJobRepo
	bucket    gcp.BucketClient
	state     MealStateService
	scheduler JobScheduler
	notify    MealNotifier
}

func NewMealService(db *gorm.DB, baseLog *logger.Logger, meals repos.MealRepo, items repos.FoodItemRepo, jobs repos.AnalysisJobRepo, bucket gcp.BucketClient, state MealStateService, scheduler JobScheduler, notify MealNotifier) MealService {
	return &mealService{
		db:        db,
		log:       baseLog.With("service", "MealService"),
		meals:     meals,
		items:     items,
		jobs:      jobs,
		bucket:    bucket,
		state:     state,
		scheduler: scheduler,
		notify:    notify,
	}
}

func (s *mealService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *mealService) Create(ctx context.Context, imageKey string) (*types.Meal, error) {
	if strings.TrimSpace(imageKey) == "" {
		return nil, &pkgerrors.ValidationError{Field: "image_key", Reason: "must not be empty"}
	}
	meal := &types.Meal{
		ID:          uuid.New(),
		ImageKey:    imageKey,
		Status:      types.MealStatusProcessing,
		AnalysisRaw: datatypes.JSON([]byte("{}")),
	}
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.meals.Create(ctx, tx, meal); err != nil {
			return &pkgerrors.PersistenceError{Op: "meal create", Err: err}
		}
		if _, _, err := s.scheduler.ScheduleAnalyze(ctx, tx, meal.ID); err != nil {
			return &pkgerrors.PersistenceError{Op: "analysis schedule", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Meal created", "meal_id", meal.ID, "image_key", imageKey)
	if s.notify != nil {
		s.notify.StatusChanged(ctx, meal, "meal.created")
	}
	return s.resolveImageURL(meal), nil
}

// resolveImageURL fills in a browsable URL for the stored image. Keys that
// already are URLs pass through unchanged.
func (s *mealService) resolveImageURL(meal *types.Meal) *types.Meal {
	if meal == nil {
		return nil
	}
	if strings.HasPrefix(meal.ImageKey, "http://") || strings.HasPrefix(meal.ImageKey, "https://") || strings.HasPrefix(meal.ImageKey, "data:") {
		meal.ImageURL = meal.ImageKey
	} else if s.bucket != nil {
		meal.ImageURL = s.bucket.GetPublicURL(meal.ImageKey)
	}
	return meal
}

func (s *mealService) Upload(ctx context.Context, filename string, file io.Reader) (*types.Meal, error) {
	if s.bucket == nil {
		return nil, fmt.Errorf("image storage not configured")
	}
	if file == nil {
		return nil, &pkgerrors.ValidationError{Field: "image", Reason: "file required"}
	}
	ext := path.Ext(filename)
	key := fmt.Sprintf("meals/%s%s", uuid.New(), ext)
	if err := s.bucket.UploadFile(ctx, key, file); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	return s.Create(ctx, key)
}

func (s *mealService) Get(ctx context.Context, id uuid.UUID) (*types.Meal, error) {
	meal, err := s.meals.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return s.resolveImageURL(meal), nil
}

func (s *mealService) Resubmit(ctx context.Context, id uuid.UUID) (*types.Meal, error) {
	meal, err := s.meals.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	err = s.state.Apply(ctx, nil, meal, types.MealStatusFailed, types.MealStatusProcessing, map[string]interface{}{
		"error_message": "",
	})
	if err != nil {
		return nil, err
	}
	if _, _, err := s.scheduler.ScheduleAnalyze(ctx, nil, meal.ID); err != nil {
		return nil, &pkgerrors.PersistenceError{Op: "analysis schedule", Err: err}
	}
	s.log.Info("Meal resubmitted", "meal_id", meal.ID)
	return s.resolveImageURL(meal), nil
}

func (s *mealService) Delete(ctx context.Context, id uuid.UUID) error {
	meal, err := s.meals.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	err = s.transact(ctx, func(tx *gorm.DB) error {
		if err := s.items.DeleteByMeal(ctx, tx, meal.ID); err != nil {
			return &pkgerrors.PersistenceError{Op: "food item delete", Err: err}
		}
		if err := s.jobs.DeleteByMeal(ctx, tx, meal.ID); err != nil {
			return &pkgerrors.PersistenceError{Op: "analysis job delete", Err: err}
		}
		if err := s.meals.Delete(ctx, tx, meal.ID); err != nil {
			return &pkgerrors.PersistenceError{Op: "meal delete", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// The stored image goes after the rows: a leaked object is recoverable,
	// a meal pointing at a deleted object is not.
	if s.bucket != nil && !strings.HasPrefix(meal.ImageKey, "http://") && !strings.HasPrefix(meal.ImageKey, "https://") && !strings.HasPrefix(meal.ImageKey, "data:") {
		if err := s.bucket.DeleteFile(ctx, meal.ImageKey); err != nil {
			s.log.Warn("Image delete failed", "meal_id", meal.ID, "image_key", meal.ImageKey, "error", err)
		}
	}
	s.log.Info("Meal deleted", "meal_id", meal.ID)
	if s.notify != nil {
		s.notify.StatusChanged(ctx, meal, "meal.deleted")
	}
	return nil
}
