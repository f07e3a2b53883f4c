package service

import (
	"context"
	"errors"
	"time"

	api "github.com/biovault/document-agent/api/v1alpha1"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

const serviceVersion = "2.0.0"

type HealthService struct {
	store             store.Store
	livenessThreshold time.Duration
	startTime         time.Time
}

func NewHealthService(st store.Store, livenessThreshold time.Duration) *HealthService {
	return &HealthService{
		store:             st,
		livenessThreshold: livenessThreshold,
		startTime:         time.Now(),
	}
}

// Health derives agent liveness from heartbeat age: a heartbeat older than
// the liveness threshold reports stalled.
func (s *HealthService) Health(ctx context.Context) (*api.Health, error) {
	stats, err := s.store.Document().Stats(ctx)
	if err != nil {
		return nil, err
	}

	health := &api.Health{
		Status:  "running",
		Queue:   stats,
		Service: "biovault-agent",
		Version: serviceVersion,
	}
	health.UptimeSeconds = int64(time.Since(s.startTime).Seconds())

	heartbeat, err := s.store.Heartbeat().Get(ctx)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			health.Status = "stalled"
			return health, nil
		}
		return nil, err
	}

	lastSeen := heartbeat.LastSeen
	startedAt := heartbeat.StartedAt
	health.Heartbeat = &lastSeen
	health.StartedAt = &startedAt
	health.DocumentsProcessedTotal = heartbeat.DocumentsProcessed
	health.FlagsRaisedTotal = heartbeat.FlagsRaised

	if time.Since(heartbeat.LastSeen) > s.livenessThreshold {
		health.Status = "stalled"
	}
	return health, nil
}

// Tick abstracts the orchestrator's process-now trigger so the handler
// layer does not depend on the orchestrator directly.
type Tick interface {
	TriggerNow() bool
}

type AgentService struct {
	store   store.Store
	trigger Tick
}

func NewAgentService(st store.Store, trigger Tick) *AgentService {
	return &AgentService{store: st, trigger: trigger}
}

// ProcessNow fires one tick without waiting for the poll timer.
func (s *AgentService) ProcessNow() *api.ProcessNowResult {
	if !s.trigger.TriggerNow() {
		return &api.ProcessNowResult{Status: "unavailable", Message: "agent loop is not running"}
	}
	return &api.ProcessNowResult{Status: "ok", Message: "agent tick triggered, check /api/v1/agent/activity for progress"}
}

// Activity returns the recent activity feed plus whether any document is
// currently processing, so consumers can poll faster while work is active.
func (s *AgentService) Activity(ctx context.Context, limit int) (*api.Activity, error) {
	if limit <= 0 {
		limit = 60
	}
	entries, err := s.store.Activity().Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.Document().Stats(ctx)
	if err != nil {
		return nil, err
	}

	apiEntries := make([]api.ActivityEntry, 0, len(entries))
	for _, e := range entries {
		apiEntries = append(apiEntries, api.ActivityEntry{
			ID:         e.ID,
			Event:      e.Event,
			Message:    e.Message,
			DocumentID: e.DocumentID,
			Stage:      e.Stage,
			Level:      e.Level,
			Timestamp:  e.CreatedAt,
		})
	}
	return &api.Activity{
		Entries:    apiEntries,
		HasActive:  stats[model.DocumentStatusProcessing] > 0,
		QueueStats: stats,
	}, nil
}
