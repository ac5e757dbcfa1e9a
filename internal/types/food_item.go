package types

import (
	"time"

	"github.com/google/uuid"
)

// FoodItem is one named component of a meal. Macros are for the stated
// quantity, not per-100g. Mutated only under the owning meal's
// recalculation path.
type FoodItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MealID    uuid.UUID `gorm:"type:uuid;not null;index" json:"meal_id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	Quantity  float64   `gorm:"column:quantity;not null" json:"quantity"`
	Unit      string    `gorm:"column:unit;not null" json:"unit"`
	Macros    Nutrition `gorm:"embedded;embeddedPrefix:macro_" json:"macros"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (FoodItem) TableName() string { return "food_item" }
