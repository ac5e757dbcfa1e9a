package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MealStatusProcessing = "processing"
	MealStatusAnalyzing  = "analyzing"
	MealStatusEnriching  = "enriching"
	MealStatusReady      = "ready"
	MealStatusFailed     = "failed"
)

// Meal is the aggregate root of the analysis pipeline. Created on upload,
// mutated only through status-guarded writes; PerHundredGrams is the
// canonical unit, Total is always derived from it by the scaler.
type Meal struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ImageKey            string         `gorm:"column:image_key;not null" json:"image_key"`
	ImageURL            string         `gorm:"-" json:"image_url,omitempty"`
	Status              string         `gorm:"column:status;not null;index" json:"status"`
	OriginalWeightGrams *float64       `gorm:"column:original_weight_grams" json:"original_weight_grams,omitempty"`
	CurrentWeightGrams  float64        `gorm:"column:current_weight_grams;not null;default:0" json:"current_weight_grams"`
	PerHundredGrams     Nutrition      `gorm:"embedded;embeddedPrefix:per100g_" json:"nutrition_per_100g"`
	Total               Nutrition      `gorm:"embedded;embeddedPrefix:total_" json:"nutrition_total"`
	Confidence          float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	ErrorMessage        string         `gorm:"column:error_message" json:"error_message,omitempty"`
	AnalysisRaw         datatypes.JSON `gorm:"type:jsonb;column:analysis_raw" json:"analysis_raw,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Meal) TableName() string { return "meal" }
