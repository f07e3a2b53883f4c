package model

import (
	"time"

	"github.com/google/uuid"
)

// Activity event tags written by the orchestrator.
const (
	ActivityStartup     = "startup"
	ActivityRecovery    = "recovery"
	ActivityIdle        = "idle"
	ActivityDocStart    = "doc_start"
	ActivityStageStart  = "stage_start"
	ActivityStageDone   = "stage_done"
	ActivityFlag        = "flag"
	ActivityEscalation  = "escalation"
	ActivityDocComplete = "doc_complete"
	ActivityDocFailed   = "doc_failed"
	ActivityError       = "error"
	ActivityShutdown    = "shutdown"
)

// Activity entry levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarn    = "warn"
	LevelError   = "error"
)

type ActivityEntry struct {
	ID         uint   `gorm:"primaryKey"`
	Event      string `gorm:"not null"`
	Message    string
	DocumentID *uuid.UUID
	Stage      string
	Level      string `gorm:"not null;default:info"`
	CreatedAt  time.Time
}

func (ActivityEntry) TableName() string {
	return "activity_log"
}
