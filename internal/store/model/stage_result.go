package model

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stage names, in execution order.
const (
	StageExtraction      = "extraction"
	StageStandardization = "standardization"
	StageFhir            = "fhir"
	StageValidation      = "validation"
)

const (
	StageStatusSuccess = "success"
	StageStatusFailed  = "failed"
)

// StageResult is append-only. A retried document gets fresh rows; readers
// take the row with the highest id per stage.
type StageResult struct {
	ID         uint      `gorm:"primaryKey"`
	DocumentID uuid.UUID `gorm:"index;not null"`
	Stage      string    `gorm:"not null"`
	Status     string    `gorm:"not null"`
	Output     []byte    `gorm:"type:jsonb"`
	Confidence *float64
	LatencyMs  int64
	CreatedAt  time.Time
}
