package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store/model"
)

type SafetyFlag interface {
	Create(ctx context.Context, flag *model.SafetyFlag) (*model.SafetyFlag, error)
	Resolve(ctx context.Context, id uint) error
	Unresolved(ctx context.Context) ([]model.SafetyFlag, error)
	All(ctx context.Context, limit int) ([]model.SafetyFlag, error)
	ByDocument(ctx context.Context, documentID uuid.UUID) ([]model.SafetyFlag, error)
}

type SafetyFlagStore struct {
	db *gorm.DB
}

var _ SafetyFlag = (*SafetyFlagStore)(nil)

func NewSafetyFlag(db *gorm.DB) SafetyFlag {
	return &SafetyFlagStore{db: db}
}

func (s *SafetyFlagStore) Create(ctx context.Context, flag *model.SafetyFlag) (*model.SafetyFlag, error) {
	result := s.db.WithContext(ctx).Create(flag)
	if result.Error != nil {
		return nil, result.Error
	}
	return flag, nil
}

// Resolve marks a flag resolved. Resolving an already resolved flag is a
// no-op, an unknown id returns ErrRecordNotFound.
func (s *SafetyFlagStore) Resolve(ctx context.Context, id uint) error {
	var flag model.SafetyFlag
	result := s.db.WithContext(ctx).First(&flag, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return result.Error
	}
	if flag.Resolved {
		return nil
	}

	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&flag).
		Updates(map[string]any{"resolved": true, "resolved_at": &now}).Error
}

func (s *SafetyFlagStore) Unresolved(ctx context.Context) ([]model.SafetyFlag, error) {
	var flags []model.SafetyFlag
	result := s.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at desc, id desc").
		Find(&flags)
	if result.Error != nil {
		return nil, result.Error
	}
	return flags, nil
}

func (s *SafetyFlagStore) All(ctx context.Context, limit int) ([]model.SafetyFlag, error) {
	var flags []model.SafetyFlag
	result := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&flags)
	if result.Error != nil {
		return nil, result.Error
	}
	return flags, nil
}

func (s *SafetyFlagStore) ByDocument(ctx context.Context, documentID uuid.UUID) ([]model.SafetyFlag, error) {
	var flags []model.SafetyFlag
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("id asc").
		Find(&flags)
	if result.Error != nil {
		return nil, result.Error
	}
	return flags, nil
}
