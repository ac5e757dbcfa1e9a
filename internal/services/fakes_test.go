package services

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
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
	mu       sync.Mutex
	meals    map[uuid.UUID]*types.Meal
	updates  []map[string]interface{}
	failNext error
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
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	meal, ok := r.meals[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	applyMealUpdates(meal, updates)
	r.updates = append(r.updates, updates)
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
	r.updates = append(r.updates, updates)
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
			if raw, ok := value.(datatypes.JSON); ok {
				meal.AnalysisRaw = raw
			}
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
		}
	}
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*types.FoodItem
	order []uuid.UUID
}

func newFakeItemRepo(items ...*types.FoodItem) *fakeItemRepo {
	r := &fakeItemRepo{items: map[uuid.UUID]*types.FoodItem{}}
	for _, item := range items {
		r.items[item.ID] = item
		r.order = append(r.order, item.ID)
	}
	return r
}

func (r *fakeItemRepo) Create(ctx context.Context, tx *gorm.DB, item *types.FoodItem) (*types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	r.order = append(r.order, item.ID)
	return item, nil
}

func (r *fakeItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *fakeItemRepo) ListByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) ([]types.FoodItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.FoodItem
	for _, id := range r.order {
		item, ok := r.items[id]
		if ok && item.MealID == mealID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	for key, value := range updates {
		switch key {
		case "name":
			item.Name = value.(string)
		case "quantity":
			item.Quantity = value.(float64)
		case "unit":
			item.Unit = value.(string)
		case "macro_calories":
			item.Macros.Calories = value.(float64)
		case "macro_protein":
			item.Macros.Protein = value.(float64)
		case "macro_carbs":
			item.Macros.Carbs = value.(float64)
		case "macro_fat":
			item.Macros.Fat = value.(float64)
		case "macro_fiber":
			item.Macros.Fiber = value.(float64)
		}
	}
	return nil
}

func (r *fakeItemRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeItemRepo) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []uuid.UUID
	for _, id := range r.order {
		if item, ok := r.items[id]; ok && item.MealID == mealID {
			delete(r.items, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
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

type scheduledCall struct {
	mealID  uuid.UUID
	jobType string
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
}

func (s *fakeScheduler) ScheduleAnalyze(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error) {
	return s.record(mealID, types.JobTypeAnalyze)
}

func (s *fakeScheduler) ScheduleRefine(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error) {
	return s.record(mealID, types.JobTypeRefine)
}

func (s *fakeScheduler) record(mealID uuid.UUID, jobType string) (*types.AnalysisJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduledCall{mealID: mealID, jobType: jobType})
	return &types.AnalysisJob{ID: uuid.New(), MealID: mealID, JobType: jobType, Status: types.JobStatusScheduled}, true, nil
}

func (s *fakeScheduler) scheduled(jobType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if call.jobType == jobType {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) StatusChanged(ctx context.Context, meal *types.Meal, event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*types.AnalysisJob
	deleted []uuid.UUID
}

func newFakeJobStore(jobs ...*types.AnalysisJob) *fakeJobStore {
	r := &fakeJobStore{jobs: map[uuid.UUID]*types.AnalysisJob{}}
	for _, job := range jobs {
		r.jobs[job.ID] = job
	}
	return r
}

func (r *fakeJobStore) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, bool, error) {
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

func (r *fakeJobStore) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobStore) GetLatestByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, error) {
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

func (r *fakeJobStore) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.AnalysisJob, error) {
	return nil, nil
}

func (r *fakeJobStore) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeJobStore) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return nil
}

func (r *fakeJobStore) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range r.jobs {
		if job.MealID == mealID {
			delete(r.jobs, id)
			r.deleted = append(r.deleted, id)
		}
	}
	return nil
}

type fakeBucket struct {
	mu        sync.Mutex
	uploads   []string
	removed   []string
	uploadErr error
	deleteErr error
}

func (b *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.uploads = append(b.uploads, key)
	return nil
}

func (b *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.removed = append(b.removed, key)
	return nil
}

func (b *fakeBucket) SignedURL(key string, ttl time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (b *fakeBucket) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}
