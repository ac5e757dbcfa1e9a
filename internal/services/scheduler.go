package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/types"
)

// JobScheduler enqueues background analysis work. Scheduling is
// deduplicated per meal: the bool reports whether a new job was created.
// Implemented by the jobs package.
type JobScheduler interface {
	ScheduleAnalyze(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error)
	ScheduleRefine(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, bool, error)
}
