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

type FoodItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, item *types.FoodItem) (*types.FoodItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FoodItem, error)
	ListByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) ([]types.FoodItem, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error
}

type foodItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFoodItemRepo(db *gorm.DB, baseLog *logger.Logger) FoodItemRepo {
	return &foodItemRepo{
		db:  db,
		log: baseLog.With("repo", "FoodItemRepo"),
	}
}

func (r *foodItemRepo) Create(ctx context.Context, tx *gorm.DB, item *types.FoodItem) (*types.FoodItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if item == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *foodItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FoodItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var item types.FoodItem
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *foodItemRepo) ListByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) ([]types.FoodItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.FoodItem
	if mealID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *foodItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.FoodItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *foodItemRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.FoodItem{}).Error
}

func (r *foodItemRepo) DeleteByMeal(ctx context.Context, tx *gorm.DB, mealID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if mealID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("meal_id = ?", mealID).
		Delete(&types.FoodItem{}).Error
}
