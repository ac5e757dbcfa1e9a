package jobs

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/repos"
	"github.com/platewise/platewise-backend/internal/types"
)

// Scheduler enqueues analysis jobs with per-meal deduplication: while a
// scheduled or running job exists for a meal, further schedule calls are
// no-ops that return the existing row.
type Scheduler struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.AnalysisJobRepo
}

func NewScheduler(db *gorm.DB, baseLog *logger.Logger, repo repos.AnalysisJobRepo) *Scheduler {
	return &Scheduler{
		db:   db,
		log:  baseLog.With("component", "JobScheduler"),
		repo: repo,
	}
}

func (s *Scheduler) ScheduleAnalyze(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error) {
	return s.schedule(ctx, tx, mealID, types.JobTypeAnalyze)
}

func (s *Scheduler) ScheduleRefine(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error) {
	return s.schedule(ctx, tx, mealID, types.JobTypeRefine)
}

func (s *Scheduler) schedule(ctx context.Context, tx *gorm.DB, mealID uuid.UUID, jobType string) (*types.AnalysisJob, bool, error) {
	job := &types.AnalysisJob{
		ID:      uuid.New(),
		MealID:  mealID,
		JobType: jobType,
		Status:  types.JobStatusScheduled,
		Payload: datatypes.JSON([]byte("{}")),
		Result:  datatypes.JSON([]byte("{}")),
	}
	out, created, err := s.repo.EnqueueIfAbsent(ctx, tx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.log.Debug("Job already in flight for meal, schedule is a no-op",
			"meal_id", mealID, "job_id", out.ID, "job_type", out.JobType)
	}
	return out, created, nil
}
