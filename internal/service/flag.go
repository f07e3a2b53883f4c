package service

import (
	"context"
	"errors"

	api "github.com/biovault/document-agent/api/v1alpha1"
	"github.com/biovault/document-agent/internal/store"
)

type FlagService struct {
	store store.Store
}

func NewFlagService(st store.Store) *FlagService {
	return &FlagService{store: st}
}

func (s *FlagService) Unresolved(ctx context.Context) (*api.AlertList, error) {
	flags, err := s.store.SafetyFlag().Unresolved(ctx)
	if err != nil {
		return nil, err
	}
	alerts := toAPIFlags(flags)
	return &api.AlertList{Status: "ok", Count: len(alerts), Alerts: alerts}, nil
}

func (s *FlagService) All(ctx context.Context, limit int) (*api.AlertList, error) {
	if limit <= 0 {
		limit = 50
	}
	flags, err := s.store.SafetyFlag().All(ctx, limit)
	if err != nil {
		return nil, err
	}
	alerts := toAPIFlags(flags)
	return &api.AlertList{Status: "ok", Count: len(alerts), Alerts: alerts}, nil
}

// Resolve marks a flag resolved; resolving twice is a no-op success.
func (s *FlagService) Resolve(ctx context.Context, id uint) (*api.ResolveResult, error) {
	if err := s.store.SafetyFlag().Resolve(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrFlagNotFound(id)
		}
		return nil, err
	}
	return &api.ResolveResult{Status: "resolved", FlagID: id}, nil
}
