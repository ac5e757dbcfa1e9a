package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

type AnalysisJobRepo interface {
	// EnqueueIfAbsent creates the job row unless a scheduled or running job
	// already exists for the same meal. Returns the surviving row and
	// whether a new one was created.
	EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error)
	GetLatestByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, error)
	// ClaimNextRunnable picks one runnable job and marks it running
	// (SKIP LOCKED). Runnable: scheduled, or failed under the attempt limit
	// past the retry delay, or running with a stale heartbeat.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.AnalysisJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error
}

type analysisJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisJobRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisJobRepo {
	return &analysisJobRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisJobRepo"),
	}
}

func (r *analysisJobRepo) EnqueueIfAbsent(ctx context.Context, tx *gorm.DB, job *types.AnalysisJob) (*types.AnalysisJob, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil || job.MealID == uuid.Nil {
		return nil, false, pkgerrors.ErrInvalidArgument
	}
	var out *types.AnalysisJob
	created := false
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var existing types.AnalysisJob
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("meal_id = ? AND status IN ?", job.MealID, []string{types.JobStatusScheduled, types.JobStatusRunning}).
			Order("created_at ASC").
			First(&existing).Error
		if qErr == nil {
			out = &existing
			return nil
		}
		if !errors.Is(qErr, gorm.ErrRecordNotFound) {
			return qErr
		}
		if err := txx.Create(job).Error; err != nil {
			return err
		}
		out = job
		created = true
		return nil
	})
	if err != nil {
		// The select-then-insert is racy across transactions: two enqueues
		// that both see no live row both insert, and the partial unique
		// index on (meal_id) WHERE status IN (scheduled, running) rejects
		// the loser. Treat that as the dedup no-op and hand back the row
		// that won.
		if isUniqueViolation(err) {
			var existing types.AnalysisJob
			qErr := transaction.WithContext(ctx).
				Where("meal_id = ? AND status IN ?", job.MealID, []string{types.JobStatusScheduled, types.JobStatusRunning}).
				Order("created_at ASC").
				First(&existing).Error
			if qErr == nil {
				r.log.Debug("Lost enqueue race, returning live job", "meal_id", job.MealID, "job_id", existing.ID)
				return &existing, false, nil
			}
			if !errors.Is(qErr, gorm.ErrRecordNotFound) {
				return nil, false, qErr
			}
			// The winner finished between our insert and this read; the
			// caller may enqueue again.
		}
		return nil, false, err
	}
	return out, created, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *analysisJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var job types.AnalysisJob
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *analysisJobRepo) GetLatestByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) (*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if mealID == uuid.Nil {
		return nil, nil
	}
	var job types.AnalysisJob
	err := transaction.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *analysisJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*types.AnalysisJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.AnalysisJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.AnalysisJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, types.JobStatusScheduled, types.JobStatusFailed, maxAttempts, retryCutoff, types.JobStatusRunning, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.AnalysisJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *analysisJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.AnalysisJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.AnalysisJob{}).
		Where("id = ? AND status = ?", id, types.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *analysisJobRepo) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if mealID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Delete(&types.AnalysisJob{}).Error
}
