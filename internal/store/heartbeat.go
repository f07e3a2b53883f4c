package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store/model"
)

type Heartbeat interface {
	Start(ctx context.Context) error
	Touch(ctx context.Context, documentsDelta, flagsDelta int) error
	Get(ctx context.Context) (*model.Heartbeat, error)
}

type HeartbeatStore struct {
	db *gorm.DB
}

var _ Heartbeat = (*HeartbeatStore)(nil)

func NewHeartbeat(db *gorm.DB) Heartbeat {
	return &HeartbeatStore{db: db}
}

// Start stamps the singleton row at agent startup. Lifetime counters are
// kept across restarts.
func (s *HeartbeatStore) Start(ctx context.Context) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&model.Heartbeat{}).
		Where("id = ?", model.HeartbeatID).
		Updates(map[string]any{"started_at": now, "last_seen": now}).Error
}

func (s *HeartbeatStore) Touch(ctx context.Context, documentsDelta, flagsDelta int) error {
	updates := map[string]any{
		"last_seen": time.Now().UTC(),
	}
	if documentsDelta != 0 {
		updates["documents_processed"] = gorm.Expr("documents_processed + ?", documentsDelta)
	}
	if flagsDelta != 0 {
		updates["flags_raised"] = gorm.Expr("flags_raised + ?", flagsDelta)
	}
	return s.db.WithContext(ctx).Model(&model.Heartbeat{}).
		Where("id = ?", model.HeartbeatID).
		Updates(updates).Error
}

func (s *HeartbeatStore) Get(ctx context.Context) (*model.Heartbeat, error) {
	var heartbeat model.Heartbeat
	result := s.db.WithContext(ctx).First(&heartbeat, model.HeartbeatID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &heartbeat, nil
}
