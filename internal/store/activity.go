package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store/model"
)

// activityLogCap bounds the activity ring; the oldest rows beyond it are
// pruned in the same transaction as the insert.
const activityLogCap = 500

type Activity interface {
	Append(ctx context.Context, entry *model.ActivityEntry) error
	Recent(ctx context.Context, limit int) ([]model.ActivityEntry, error)
}

type ActivityStore struct {
	db *gorm.DB
}

var _ Activity = (*ActivityStore)(nil)

func NewActivity(db *gorm.DB) Activity {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Append(ctx context.Context, entry *model.ActivityEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Exec(
			"DELETE FROM activity_log WHERE id NOT IN (SELECT id FROM activity_log ORDER BY id DESC LIMIT ?)",
			activityLogCap,
		).Error
	})
}

func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	var entries []model.ActivityEntry
	result := s.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}
