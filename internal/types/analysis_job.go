package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusScheduled = "scheduled"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

const (
	JobTypeAnalyze = "meal_analyze"
	JobTypeRefine  = "meal_refine"
)

// AnalysisJob is one execution record of the background pipeline for a
// meal. At most one scheduled-or-running row may exist per meal id; the
// enqueue path enforces that inside a transaction.
type AnalysisJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MealID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"meal_id"`
	JobType     string         `gorm:"column:job_type;not null;index" json:"job_type"` // meal_analyze|meal_refine
	Status      string         `gorm:"column:status;not null;index" json:"status"`     // scheduled|running|succeeded|failed
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError   string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	Payload     datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	Result      datatypes.JSON `gorm:"type:jsonb;column:result" json:"result"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnalysisJob) TableName() string { return "analysis_job" }
