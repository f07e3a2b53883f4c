package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store/model"
)

type Document interface {
	Create(ctx context.Context, document *model.Document) (*model.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ClaimNextPending(ctx context.Context) (*model.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage string) error
	IncrementCriticalFlags(ctx context.Context, id uuid.UUID, delta int) error
	Requeue(ctx context.Context, id uuid.UUID) error
	RecoverStalled(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) (model.DocumentList, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

type DocumentStore struct {
	db *gorm.DB
}

var _ Document = (*DocumentStore)(nil)

func NewDocument(db *gorm.DB) Document {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, document *model.Document) (*model.Document, error) {
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}
	if document.Status == "" {
		document.Status = model.DocumentStatusPending
	}
	if document.UploadedAt.IsZero() {
		document.UploadedAt = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Create(document)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return document, nil
}

func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	document := model.NewDocumentFromId(id)
	result := s.db.WithContext(ctx).First(document)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return document, nil
}

// ClaimNextPending picks the oldest pending document and flips it to
// processing with a guarded update. Only the caller whose update matched a
// row owns the document; losers retry on the next candidate. Returns
// ErrRecordNotFound when the queue is empty.
func (s *DocumentStore) ClaimNextPending(ctx context.Context) (*model.Document, error) {
	for {
		var candidate model.Document
		result := s.db.WithContext(ctx).
			Where("status = ?", model.DocumentStatusPending).
			Order("uploaded_at asc, id asc").
			First(&candidate)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil, ErrRecordNotFound
			}
			return nil, result.Error
		}

		claim := s.db.WithContext(ctx).Model(&model.Document{}).
			Where("id = ? AND status = ?", candidate.ID, model.DocumentStatusPending).
			Update("status", model.DocumentStatusProcessing)
		if claim.Error != nil {
			return nil, claim.Error
		}
		if claim.RowsAffected == 1 {
			candidate.Status = model.DocumentStatusProcessing
			return &candidate, nil
		}
		// Lost the race for this candidate, try the next one.
	}
}

func (s *DocumentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage string) error {
	updates := map[string]any{
		"status":        status,
		"error_message": errorMessage,
	}
	if status == model.DocumentStatusComplete || status == model.DocumentStatusFailed {
		now := time.Now().UTC()
		updates["processed_at"] = &now
	}
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *DocumentStore) IncrementCriticalFlags(ctx context.Context, id uuid.UUID, delta int) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Update("critical_flags_count", gorm.Expr("critical_flags_count + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Requeue moves a failed or complete document back to pending, clearing the
// error so the next tick reprocesses it from scratch. The critical flag
// counter is never decremented; it keeps accumulating across attempts, the
// same way flag rows are append-only.
func (s *DocumentStore) Requeue(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status IN ?", id, []string{model.DocumentStatusFailed, model.DocumentStatusComplete}).
		Updates(map[string]any{
			"status":        model.DocumentStatusPending,
			"error_message": "",
			"processed_at":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// RecoverStalled requeues every document left in processing by a previous
// run. Called once at startup, before the first poll.
func (s *DocumentStore) RecoverStalled(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("status = ?", model.DocumentStatusProcessing).
		Update("status", model.DocumentStatusPending)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *DocumentStore) Recent(ctx context.Context, limit int) (model.DocumentList, error) {
	var documents model.DocumentList
	result := s.db.WithContext(ctx).
		Order("uploaded_at desc, id desc").
		Limit(limit).
		Find(&documents)
	if result.Error != nil {
		return nil, result.Error
	}
	return documents, nil
}

func (s *DocumentStore) Stats(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	result := s.db.WithContext(ctx).Model(&model.Document{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	stats := make(map[string]int64, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}
