package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

type MealRepo interface {
	Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Meal, error)
	// UpdateFields applies an unguarded partial update. Used for writes that
	// do not move the status (weight updates, nutrition recomputes).
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsGuarded applies a partial update only if the meal still has
	// expectedStatus at write time. A zero-row update on an existing meal is
	// reported as a StateConflictError: the guard is the concurrency control.
	UpdateFieldsGuarded(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedStatus string, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type mealRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMealRepo(db *gorm.DB, baseLog *logger.Logger) MealRepo {
	return &mealRepo{
		db:  db,
		log: baseLog.With("repo", "MealRepo"),
	}
}

func (r *mealRepo) Create(ctx context.Context, tx *gorm.DB, meal *types.Meal) (*types.Meal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if meal == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(meal).Error; err != nil {
		return nil, err
	}
	return meal, nil
}

func (r *mealRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Meal, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var meal types.Meal
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&meal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

func (r *mealRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.Meal{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *mealRepo) UpdateFieldsGuarded(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedStatus string, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return pkgerrors.ErrNotFound
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(ctx).
		Model(&types.Meal{}).
		Where("id = ? AND status = ?", id, expectedStatus).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing meal from a lost transition race.
		var count int64
		if err := transaction.WithContext(ctx).
			Model(&types.Meal{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.ErrNotFound
		}
		next, _ := updates["status"].(string)
		return &pkgerrors.StateConflictError{Entity: "meal", Expected: expectedStatus, Next: next}
	}
	return nil
}

func (r *mealRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return pkgerrors.ErrNotFound
	}
	res := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Meal{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
