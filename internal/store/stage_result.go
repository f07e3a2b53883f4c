package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/biovault/document-agent/internal/store/model"
)

type StageResult interface {
	Create(ctx context.Context, result *model.StageResult) (*model.StageResult, error)
	LatestByDocument(ctx context.Context, documentID uuid.UUID) ([]model.StageResult, error)
}

type StageResultStore struct {
	db *gorm.DB
}

var _ StageResult = (*StageResultStore)(nil)

func NewStageResult(db *gorm.DB) StageResult {
	return &StageResultStore{db: db}
}

func (s *StageResultStore) Create(ctx context.Context, stageResult *model.StageResult) (*model.StageResult, error) {
	result := s.db.WithContext(ctx).Create(stageResult)
	if result.Error != nil {
		return nil, result.Error
	}
	return stageResult, nil
}

// LatestByDocument returns at most one row per stage, the one with the
// highest id. Rows from superseded runs of a retried document are skipped.
func (s *StageResultStore) LatestByDocument(ctx context.Context, documentID uuid.UUID) ([]model.StageResult, error) {
	var rows []model.StageResult
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("id asc").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	latest := make(map[string]model.StageResult, 4)
	order := make([]string, 0, 4)
	for _, row := range rows {
		if _, seen := latest[row.Stage]; !seen {
			order = append(order, row.Stage)
		}
		latest[row.Stage] = row
	}

	out := make([]model.StageResult, 0, len(order))
	for _, stage := range order {
		out = append(out, latest[stage])
	}
	return out, nil
}
