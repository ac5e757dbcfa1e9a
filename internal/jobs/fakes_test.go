package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/services"
	"github.com/platewise/platewise-backend/internal/types"
)

func testLogger() *logger.Logger {
	log, err := logger.New("test")
	if err != nil {
		panic(err)
	}
	return log
}

type fakeMealRepo struct {
	mu    sync.Mutex
	meals map[uuid.UUID]*types.Meal
}

func newFakeMealRepo(meals ...*types.Meal) *fakeMealRepo {
	r := &fakeMealRepo{meals: map[uuid.UUID]*types.Meal{}}
	for _, m := range meals {
		r.meals[m.ID] = m
	}
	return r
}

func (r *fakeMealRepo) Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meals[meal.ID] = meal
	return meal, nil
}

func (r *fakeMealRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Meal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meal, ok := r.meals[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *meal
	return &copied, nil
}

func (r *fakeMealRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meal, ok := r.meals[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	applyMealUpdates(meal, updates)
	return nil
}

func (r *fakeMealRepo) UpdateFieldsGuarded(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedStatus string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	meal, ok := r.meals[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	if meal.Status != expectedStatus {
		next, _ := updates["status"].(string)
		return &pkgerrors.StateConflictError{Entity: "meal", Expected: expectedStatus, Next: next}
	}
	applyMealUpdates(meal, updates)
	return nil
}

func (r *fakeMealRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meals[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.meals, id)
	return nil
}

func applyMealUpdates(meal *types.Meal, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			meal.Status = value.(string)
		case "error_message":
			meal.ErrorMessage = value.(string)
		case "confidence":
			meal.Confidence = value.(float64)
		case "current_weight_grams":
			meal.CurrentWeightGrams = value.(float64)
		case "original_weight_grams":
			w := value.(float64)
			meal.OriginalWeightGrams = &w
		case "analysis_raw":
			if raw, ok := value.([]byte); ok {
				meal.AnalysisRaw = raw
			}
		case "per100g_calories":
			meal.PerHundredGrams.Calories = value.(float64)
		case "per100g_protein":
			meal.PerHundredGrams.Protein = value.(float64)
		case "per100g_carbs":
			meal.PerHundredGrams.Carbs = value.(float64)
		case "per100g_fat":
			meal.PerHundredGrams.Fat = value.(float64)
		case "per100g_fiber":
			meal.PerHundredGrams.Fiber = value.(float64)
		case "total_calories":
			meal.Total.Calories = value.(float64)
		case "total_protein":
			meal.Total.Protein = value.(float64)
		case "total_carbs":
			meal.Total.Carbs = value.(float64)
		case "total_fat":
			meal.Total.Fat = value.(float64)
		case "total_fiber":
			meal.Total.Fiber = value.(float64)
		}
	}
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items []types.FoodItem
}

func (r *fakeItemRepo) Create(ctx context.Context, tx *gorm.DB, item *types.FoodItem) (*types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *item)
	return item, nil
}

func (r *fakeItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			copied := r.items[i]
			return &copied, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *fakeItemRepo) ListByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) ([]types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.FoodItem
	for _, item := range r.items {
		if item.MealID == mealID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeItemRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func (r *fakeItemRepo) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []types.FoodItem
	for _, item := range r.items {
		if item.MealID != mealID {
			kept = append(kept, item)
		}
	}
	r.items = kept
	return nil
}

type fakeJobRepo struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*types.AnalysisJob
	heartbeats map[uuid.UUID]int
}

func newFakeJobRepo(jobs ...*types.AnalysisJob) *fakeJobRepo {
	r := &fakeJobRepo{
		jobs:       map[uuid.UUID]*types.AnalysisJob{},
		heartbeats: map[uuid.UUID]int{},
	}
	for _, job := range jobs {
		r.jobs[job.ID] = job
	}
	return r
}

func (r *fakeJobRepo) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.MealID == job.MealID &&
			(existing.Status == types.JobStatusScheduled || existing.Status == types.JobStatusRunning) {
			return existing, false, nil
		}
	}
	r.jobs[job.ID] = job
	return job, true, nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) GetLatestByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.AnalysisJob
	for _, job := range r.jobs {
		if job.MealID != mealID {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Status == types.JobStatusScheduled {
			job.Status = types.JobStatusRunning
			job.Attempts++
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			job.Status = value.(string)
		case "last_error":
			job.LastError = value.(string)
		case "attempts":
			job.Attempts = value.(int)
		case "last_error_at":
			t := value.(time.Time)
			job.LastErrorAt = &t
		case "result":
			if raw, ok := value.([]byte); ok {
				job.Result = raw
			}
		}
	}
	return nil
}

func (r *fakeJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[id]++
	now := time.Now()
	if job, ok := r.jobs[id]; ok && job.Status == types.JobStatusRunning {
		job.HeartbeatAt = &now
	}
	return nil
}

func (r *fakeJobRepo) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.MealID == mealID {
			delete(r.jobs, id)
		}
	}
	return nil
}

func (r *fakeJobRepo) heartbeatCount(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.heartbeats[id]
}

type fakeVision struct {
	mu    sync.Mutex
	raw   map[string]any
	err   error
	delay time.Duration
	reqs  []services.PromptSpec
	urls  []string
}

func (v *fakeVision) Analyze(ctx context.Context, imageURL string, spec services.PromptSpec) (map[string]any, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reqs = append(v.reqs, spec)
	v.urls = append(v.urls, imageURL)
	if v.err != nil {
		return nil, v.err
	}
	return v.raw, nil
}
