package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Flag categories assigned during escalation.
const (
	FlagDoseVariance  = "DOSE_VARIANCE"
	FlagPiiLeak       = "PII_LEAK"
	FlagAmbiguousName = "AMBIGUOUS_NAME"
	FlagCodingError   = "CODING_ERROR"
	FlagSchemaError   = "SCHEMA_ERROR"
	FlagOther         = "OTHER"
)

type SafetyFlag struct {
	ID         uint      `gorm:"primaryKey"`
	DocumentID uuid.UUID `gorm:"index;not null"`
	FlagType   string    `gorm:"not null"`
	Severity   string    `gorm:"index;not null"`
	Details    string
	Resolved   bool `gorm:"index;not null;default:false"`
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
