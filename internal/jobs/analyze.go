package jobs

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/clients/gcp"
	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/services"
	"github.com/platewise/platewise-backend/internal/types"
)

type AnalyzerConfig struct {
	MaxAttempts  int
	SignedURLTTL time.Duration
}

// Analyzer executes one claimed analysis job: it drives the meal through
// the status pipeline, calls the vision provider through the resolved
// strategy, and lands the normalized estimate behind the status guard.
type Analyzer struct {
	db     *gorm.DB
	log    *logger.Logger
	meals  repos.MealRepo
	items  repos.FoodItemRepo
	jobs   repos.AnalysisJobRepo
	state  services.MealStateService
	vision services.VisionService
	bucket gcp.BucketClient
	cfg    AnalyzerConfig
}

func NewAnalyzer(db *gorm.DB, baseLog *logger.Logger, meals repos.MealRepo, items repos.FoodItemRepo, jobs repos.AnalysisJobRepo, state services.MealStateService, vision services.VisionService, bucket gcp.BucketClient, cfg AnalyzerConfig) *Analyzer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	return &Analyzer{
		db:     db,
		log:    baseLog.With("component", "Analyzer"),
		meals:  meals,
		items:  items,
		jobs:   jobs,
		state:  state,
		vision: vision,
		bucket: bucket,
		cfg:    cfg,
	}
}

func (a *Analyzer) Run(ctx context.Context, job *types.AnalysisJob) {
	log := a.log.With("job_id", job.ID, "meal_id", job.MealID, "job_type", job.JobType, "attempt", job.Attempts)

	meal, err := a.meals.GetByID(ctx, nil, job.MealID)
	if err != nil {
		log.Warn("Meal missing for job", "error", err)
		a.markJobFailed(ctx, job, "meal not found", true)
		return
	}

	initial := job.JobType == types.JobTypeAnalyze
	if initial {
		switch meal.Status {
		case types.MealStatusProcessing:
			err := a.state.Apply(ctx, nil, meal, types.MealStatusProcessing, types.MealStatusAnalyzing, nil)
			if pkgerrors.IsStateConflict(err) {
				// A concurrent job already advanced this meal; it owns the
				// pipeline now.
				log.Info("Lost status race, aborting", "status", meal.Status)
				a.markJobFailed(ctx, job, "lost status race", true)
				return
			}
			if err != nil {
				log.Warn("Could not start analysis", "error", err)
				a.markJobFailed(ctx, job, err.Error(), true)
				return
			}
		case types.MealStatusAnalyzing, types.MealStatusEnriching:
			// A prior attempt of this job already advanced the meal. Dedup
			// guarantees no other job is in flight, so resume.
		default:
			log.Info("Meal no longer awaiting analysis, aborting", "status", meal.Status)
			a.markJobFailed(ctx, job, "lost status race", true)
			return
		}
	} else if meal.Status != types.MealStatusReady {
		// Refinements only apply on top of a finalized estimate.
		log.Info("Meal not ready for refinement, aborting", "status", meal.Status)
		a.markJobFailed(ctx, job, "meal not ready", true)
		return
	}

	estimate, raw, err := a.analyze(ctx, meal)
	if err != nil {
		a.handleFailure(ctx, log, job, meal, initial, err)
		return
	}

	if initial && meal.Status == types.MealStatusAnalyzing {
		if err := a.state.Apply(ctx, nil, meal, types.MealStatusAnalyzing, types.MealStatusEnriching, nil); err != nil {
			log.Warn("Could not enter enriching, meal owned by another writer", "error", err)
			a.markJobFailed(ctx, job, "lost status race", true)
			return
		}
	}

	if err := a.persistEstimate(ctx, meal, estimate, raw, initial); err != nil {
		if pkgerrors.IsStateConflict(err) {
			log.Info("Lost final persist race, aborting", "error", err)
		} else {
			log.Error("Could not persist estimate", "error", err)
		}
		a.markJobFailed(ctx, job, err.Error(), true)
		return
	}

	result, _ := json.Marshal(map[string]any{
		"per_100g_calories":      estimate.PerHundredGrams.Calories,
		"estimated_weight_grams": estimate.EstimatedWeightGrams,
		"confidence":             estimate.Confidence,
	})
	_ = a.jobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.JobStatusSucceeded,
		"result": result,
	})
	log.Info("Analysis succeeded", "confidence", estimate.Confidence)
}

// analyze resolves the strategy from available context, builds the vision
// request and parses the response.
func (a *Analyzer) analyze(ctx context.Context, meal *types.Meal) (*services.NutritionEstimate, []byte, error) {
	items, err := a.items.ListByMeal(ctx, nil, meal.ID)
	if err != nil {
		return nil, nil, &pkgerrors.PersistenceError{Op: "list ingredients", Err: err}
	}
	actx := services.BuildAnalysisContext(meal, items)
	strategy := services.ResolveStrategy(actx)
	spec := strategy.BuildRequest(meal, actx)

	imageURL := meal.ImageKey
	if a.bucket != nil {
		signed, err := a.bucket.SignedURL(meal.ImageKey, a.cfg.SignedURLTTL)
		if err != nil {
			return nil, nil, &pkgerrors.VisionServiceError{Retryable: true, Reason: "image reference resolution failed", Err: err}
		}
		imageURL = signed
	}

	raw, err := a.vision.Analyze(ctx, imageURL, spec)
	if err != nil {
		return nil, nil, err
	}
	estimate, err := strategy.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	rawJSON, _ := json.Marshal(raw)
	return estimate, rawJSON, nil
}

// persistEstimate normalizes the estimate against the tracked weight and
// lands everything in one guarded write.
func (a *Analyzer) persistEstimate(ctx context.Context, meal *types.Meal, estimate *services.NutritionEstimate, raw []byte, initial bool) error {
	weight := meal.CurrentWeightGrams
	updates := map[string]interface{}{}
	if meal.OriginalWeightGrams == nil {
		// First successful analysis adopts the estimated weight as baseline.
		ow := estimate.EstimatedWeightGrams
		if ow <= 0 {
			ow = 100
		}
		updates["original_weight_grams"] = ow
		if weight <= 0 {
			weight = ow
			updates["current_weight_grams"] = weight
		}
	} else if weight <= 0 {
		weight = *meal.OriginalWeightGrams
		updates["current_weight_grams"] = weight
	}

	total := services.ScaleNutrition(estimate.PerHundredGrams, weight)
	updates["per100g_calories"] = estimate.PerHundredGrams.Calories
	updates["per100g_protein"] = estimate.PerHundredGrams.Protein
	updates["per100g_carbs"] = estimate.PerHundredGrams.Carbs
	updates["per100g_fat"] = estimate.PerHundredGrams.Fat
	updates["per100g_fiber"] = estimate.PerHundredGrams.Fiber
	updates["total_calories"] = total.Calories
	updates["total_protein"] = total.Protein
	updates["total_carbs"] = total.Carbs
	updates["total_fat"] = total.Fat
	updates["total_fiber"] = total.Fiber
	updates["confidence"] = estimate.Confidence
	updates["error_message"] = ""
	if len(raw) > 0 {
		updates["analysis_raw"] = raw
	}

	if initial {
		return a.state.Apply(ctx, nil, meal, types.MealStatusEnriching, types.MealStatusReady, updates)
	}
	// Refinements keep the meal ready; the guard still protects against a
	// pipeline restart racing this write.
	if err := a.meals.UpdateFieldsGuarded(ctx, nil, meal.ID, types.MealStatusReady, updates); err != nil {
		return err
	}
	meal.PerHundredGrams = estimate.PerHundredGrams
	meal.Total = total
	meal.Confidence = estimate.Confidence
	return nil
}

// handleFailure applies the retry policy: retryable vision errors are left
// for the claim loop to retry until the attempt limit, everything else is
// terminal and moves the meal to failed (initial pipeline only).
func (a *Analyzer) handleFailure(ctx context.Context, log *logger.Logger, job *types.AnalysisJob, meal *types.Meal, initial bool, cause error) {
	retryable := pkgerrors.IsRetryable(cause)
	exhausted := job.Attempts >= a.cfg.MaxAttempts

	if retryable && !exhausted {
		log.Warn("Analysis failed, will retry", "error", cause, "attempts", job.Attempts, "max_attempts", a.cfg.MaxAttempts)
		a.markJobFailed(ctx, job, cause.Error(), false)
		return
	}

	log.Error("Analysis failed terminally", "error", cause, "retryable", retryable, "attempts", job.Attempts)
	a.markJobFailed(ctx, job, cause.Error(), true)

	if !initial {
		// A failed refinement never degrades a finalized meal.
		return
	}
	err := a.state.Apply(ctx, nil, meal, meal.Status, types.MealStatusFailed, map[string]interface{}{
		"error_message": cause.Error(),
	})
	if err != nil {
		log.Warn("Could not mark meal failed", "error", err)
	}
}

// markJobFailed records the failure on the job row. Terminal failures pin
// attempts to the limit so the claim loop stops picking the row up.
func (a *Analyzer) markJobFailed(ctx context.Context, job *types.AnalysisJob, message string, terminal bool) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":        types.JobStatusFailed,
		"last_error":    message,
		"last_error_at": now,
	}
	if terminal {
		updates["attempts"] = a.cfg.MaxAttempts
	}
	if err := a.jobs.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		a.log.Error("Could not mark job failed", "job_id", job.ID, "error", err)
	}
}
