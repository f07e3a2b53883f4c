package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document statuses. A document moves pending -> processing -> complete or
// failed; retry moves failed (or complete) back to pending.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusComplete   = "complete"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID                 uuid.UUID `gorm:"primaryKey"`
	Filename           string    `gorm:"not null"`
	ContentType        string
	FilePath           string `gorm:"not null"`
	Status             string `gorm:"index;not null;default:pending"`
	UploadedAt         time.Time
	ProcessedAt        *time.Time
	ErrorMessage       string
	CriticalFlagsCount int
}

type DocumentList []Document

func NewDocumentFromId(id uuid.UUID) *Document {
	return &Document{ID: id}
}

func (d Document) String() string {
	val, _ := json.Marshal(d)
	return string(val)
}
