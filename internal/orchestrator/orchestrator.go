package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/biovault/document-agent/internal/alerts"
	"github.com/biovault/document-agent/internal/pipeline"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
	"github.com/biovault/document-agent/pkg/metrics"
)

// Orchestrator is the single-worker agent loop: it polls the queue, claims
// the oldest pending document, runs the four pipeline stages, persists every
// stage artifact immediately, and escalates safety flags.
//
// Exactly one orchestrator must run against a given store. The atomic claim
// keeps concurrent ticks from processing the same document, but the startup
// crash recovery (processing -> pending) assumes no second worker holds a
// legitimate claim.
type Orchestrator struct {
	store        store.Store
	extractor    pipeline.Extractor
	standardizer pipeline.Standardizer
	dispatcher   *alerts.Dispatcher
	pollInterval time.Duration

	runCtx  context.Context
	started bool
	mu      sync.Mutex
	ticks   sync.WaitGroup
	log     *zap.SugaredLogger
}

func New(
	st store.Store,
	extractor pipeline.Extractor,
	standardizer pipeline.Standardizer,
	dispatcher *alerts.Dispatcher,
	pollInterval time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:        st,
		extractor:    extractor,
		standardizer: standardizer,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		log:          zap.S().Named("orchestrator"),
	}
}

// Run executes the agent loop until ctx is canceled: crash recovery, then a
// tick every poll interval. The interval is fixed, no backoff on idle or
// error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Infof("agent loop starting (poll_interval=%s)", o.pollInterval)

	recovered, err := o.store.Document().RecoverStalled(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		msg := fmt.Sprintf("Fault recovery: reset %d stalled doc(s) to pending", recovered)
		o.log.Warn(msg)
		o.appendActivity(ctx, model.ActivityRecovery, msg, nil, "", model.LevelWarn)
	}

	if err := o.store.Heartbeat().Start(ctx); err != nil {
		return err
	}
	o.appendActivity(ctx, model.ActivityStartup,
		fmt.Sprintf("Agent loop started, watching queue every %s", o.pollInterval), nil, "", model.LevelInfo)

	o.mu.Lock()
	o.runCtx = ctx
	o.started = true
	o.mu.Unlock()

	ticker := jitterbug.New(o.pollInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Flip started under the lock before waiting, so a TriggerNow
			// that already passed the check has registered its tick and no
			// later one can slip in behind the Wait.
			o.mu.Lock()
			o.started = false
			o.mu.Unlock()
			o.ticks.Wait()
			o.log.Info("agent loop stopped")
			o.appendActivity(context.Background(), model.ActivityShutdown, "Agent loop stopped", nil, "", model.LevelInfo)
			return nil
		case <-ticker.C:
			o.runTick(ctx)
		}
	}
}

// TriggerNow runs one tick immediately on its own goroutine, without
// waiting for or disturbing the timer. A tick already in flight is fine:
// the store-level claim is the only arbiter of document ownership.
func (o *Orchestrator) TriggerNow() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started || o.runCtx.Err() != nil {
		return false
	}
	// Register the tick while still holding the lock so the shutdown wait
	// in Run always observes it.
	o.ticks.Add(1)
	go func() {
		defer o.ticks.Done()
		o.runTick(o.runCtx)
	}()
	return true
}

func (o *Orchestrator) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	defer func() {
		metrics.ObserveTickDurationMetric(time.Since(start))
		if r := recover(); r != nil {
			o.log.Errorf("panic in agent tick: %v", r)
			o.appendActivity(ctx, model.ActivityError, fmt.Sprintf("Unhandled tick error: %v", r), nil, "", model.LevelError)
		}
	}()

	if err := o.tick(ctx); err != nil {
		o.log.Errorf("unhandled error in agent tick: %v", err)
		o.appendActivity(ctx, model.ActivityError, fmt.Sprintf("Unhandled tick error: %v", err), nil, "", model.LevelError)
	}
}

func (o *Orchestrator) tick(ctx context.Context) error {
	if err := o.store.Heartbeat().Touch(ctx, 0, 0); err != nil {
		return err
	}

	document, err := o.store.Document().ClaimNextPending(ctx)
	if err != nil {
		if err == store.ErrRecordNotFound {
			o.appendActivity(ctx, model.ActivityIdle, "Queue empty, waiting for documents", nil, "", model.LevelInfo)
			return nil
		}
		return err
	}

	o.log.Infof("processing document: id=%s filename=%s", document.ID, document.Filename)
	o.appendActivity(ctx, model.ActivityDocStart, "Picked up: "+document.Filename, &document.ID, "", model.LevelInfo)

	if err := o.runPipeline(ctx, document); err != nil {
		o.log.Errorf("pipeline failed for doc %s: %v", document.ID, err)
		if statusErr := o.store.Document().UpdateStatus(ctx, document.ID, model.DocumentStatusFailed, err.Error()); statusErr != nil {
			return statusErr
		}
		o.appendActivity(ctx, model.ActivityDocFailed,
			fmt.Sprintf("Failed: %s: %v", document.Filename, err), &document.ID, "", model.LevelError)
		metrics.IncreaseDocumentsProcessedMetric(model.DocumentStatusFailed)
	} else {
		if err := o.store.Document().UpdateStatus(ctx, document.ID, model.DocumentStatusComplete, ""); err != nil {
			return err
		}
		if err := o.store.Heartbeat().Touch(ctx, 1, 0); err != nil {
			return err
		}
		o.appendActivity(ctx, model.ActivityDocComplete, "Complete: "+document.Filename, &document.ID, "", model.LevelSuccess)
		metrics.IncreaseDocumentsProcessedMetric(model.DocumentStatusComplete)
		o.log.Infof("document complete: id=%s", document.ID)
	}

	o.updateQueueDepth(ctx)
	return nil
}

// runPipeline executes the four stages in strict sequence, persisting each
// stage's output before the next begins so partial progress survives a
// crash mid-pipeline. Any stage error fails the document.
func (o *Orchestrator) runPipeline(ctx context.Context, document *model.Document) error {
	docID := document.ID

	// Stage 1: vision extraction.
	o.appendActivity(ctx, model.ActivityStageStart, "Stage 1/4: vision extraction starting",
		&docID, model.StageExtraction, model.LevelInfo)

	extractionResult, err := o.extractor.Extract(ctx, document.FilePath)
	if err != nil {
		o.persistStage(ctx, docID, model.StageExtraction, model.StageStatusFailed, nil, nil, 0)
		return fmt.Errorf("extraction stage: %w", err)
	}
	extraction := extractionResult.Extraction
	confidence := extraction.OverallConfidence
	if err := o.persistStage(ctx, docID, model.StageExtraction, model.StageStatusSuccess,
		extraction, &confidence, extractionResult.LatencyMs); err != nil {
		return err
	}
	o.appendActivity(ctx, model.ActivityStageDone,
		fmt.Sprintf("Stage 1/4: extraction complete: %d cycles, confidence=%.0f%%, latency=%dms",
			len(extraction.Cycles), confidence*100, extractionResult.LatencyMs),
		&docID, model.StageExtraction, model.LevelSuccess)

	// Stage 2: standardization.
	o.appendActivity(ctx, model.ActivityStageStart, "Stage 2/4: standardization starting",
		&docID, model.StageStandardization, model.LevelInfo)

	stdResult, err := o.standardizer.Standardize(ctx, extraction)
	if err != nil {
		o.persistStage(ctx, docID, model.StageStandardization, model.StageStatusFailed, nil, nil, 0)
		return fmt.Errorf("standardization stage: %w", err)
	}
	standardized := stdResult.Standardization
	if err := o.persistStage(ctx, docID, model.StageStandardization, model.StageStatusSuccess,
		standardized, nil, stdResult.LatencyMs); err != nil {
		return err
	}
	o.appendActivity(ctx, model.ActivityStageDone,
		fmt.Sprintf("Stage 2/4: standardization complete: ICD-10=%s, latency=%dms, tokens=%d",
			orUnknown(standardized.ICD10.Code), stdResult.LatencyMs, stdResult.OutputTokens),
		&docID, model.StageStandardization, model.LevelSuccess)

	// HIGH flags from the model's own judgment escalate immediately.
	criticalCount := 0
	for _, modelFlag := range standardized.SafetyFlags {
		if modelFlag.Severity != model.SeverityHigh {
			continue
		}
		flagType := modelFlag.Category
		if flagType == "" {
			flagType = model.FlagOther
		}
		if err := o.raiseFlag(ctx, document, flagType, modelFlag.Severity, modelFlag.Description, model.StageStandardization); err != nil {
			return err
		}
		criticalCount++
	}

	// Stage 3: FHIR bundle assembly (deterministic, no model call).
	o.appendActivity(ctx, model.ActivityStageStart, "Stage 3/4: building FHIR R4 bundle",
		&docID, model.StageFhir, model.LevelInfo)

	bundle := pipeline.BuildFhirBundle(extraction, standardized)
	resources := 0
	if entries, ok := bundle["entry"].([]map[string]any); ok {
		resources = len(entries)
	}
	if err := o.persistStage(ctx, docID, model.StageFhir, model.StageStatusSuccess, bundle, nil, 0); err != nil {
		return err
	}
	o.appendActivity(ctx, model.ActivityStageDone,
		fmt.Sprintf("Stage 3/4: FHIR bundle built: %d resources", resources),
		&docID, model.StageFhir, model.LevelSuccess)

	// Stage 4: deterministic safety validation.
	o.appendActivity(ctx, model.ActivityStageStart, "Stage 4/4: running 5 safety checks",
		&docID, model.StageValidation, model.LevelInfo)

	validation := pipeline.RunValidation(extraction, standardized, bundle)
	if err := o.persistStage(ctx, docID, model.StageValidation, model.StageStatusSuccess, validation, nil, 0); err != nil {
		return err
	}

	for _, check := range validation.Checks {
		if check.Passed {
			continue
		}
		severity, flagType := classifyCheck(check.Name)
		if err := o.raiseFlag(ctx, document, flagType, severity, check.Detail, model.StageValidation); err != nil {
			return err
		}
		criticalCount++
	}

	level := model.LevelSuccess
	if !validation.OverallPassed {
		level = model.LevelWarn
	}
	o.appendActivity(ctx, model.ActivityStageDone,
		fmt.Sprintf("Stage 4/4: validation: %d/%d checks passed", validation.PassedCount, validation.TotalCount),
		&docID, model.StageValidation, level)

	if criticalCount > 0 {
		if err := o.store.Document().IncrementCriticalFlags(ctx, docID, criticalCount); err != nil {
			return err
		}
		if err := o.store.Heartbeat().Touch(ctx, 0, criticalCount); err != nil {
			return err
		}
		o.appendActivity(ctx, model.ActivityEscalation,
			fmt.Sprintf("Autonomous escalation: %d critical flag(s) raised for %s", criticalCount, document.Filename),
			&docID, "", model.LevelError)
	}

	o.log.Infof("[%s] pipeline done: %d/%d validation passed, %d flags raised",
		docID, validation.PassedCount, validation.TotalCount, criticalCount)
	return nil
}

// raiseFlag persists a safety flag, logs it, and dispatches an alert for
// HIGH/CRITICAL severities.
func (o *Orchestrator) raiseFlag(ctx context.Context, document *model.Document, flagType, severity, details, stage string) error {
	flag, err := o.store.SafetyFlag().Create(ctx, &model.SafetyFlag{
		DocumentID: document.ID,
		FlagType:   flagType,
		Severity:   severity,
		Details:    details,
	})
	if err != nil {
		return err
	}
	metrics.IncreaseSafetyFlagsMetric(severity)

	o.appendActivity(ctx, model.ActivityFlag,
		fmt.Sprintf("%s flag: %s: %s", severity, flagType, truncate(details, 80)),
		&document.ID, stage, model.LevelWarn)

	if shouldDispatch(severity) {
		o.dispatcher.Dispatch(document.ID, document.Filename, flag.ID, flagType, severity, details)
	}
	return nil
}

func (o *Orchestrator) persistStage(ctx context.Context, docID uuid.UUID, stage, status string, output any, confidence *float64, latencyMs int64) error {
	var payload []byte
	if output != nil {
		var err error
		payload, err = json.Marshal(output)
		if err != nil {
			return fmt.Errorf("marshaling %s output: %w", stage, err)
		}
	}
	_, err := o.store.StageResult().Create(ctx, &model.StageResult{
		DocumentID: docID,
		Stage:      stage,
		Status:     status,
		Output:     payload,
		Confidence: confidence,
		LatencyMs:  latencyMs,
	})
	return err
}

func (o *Orchestrator) appendActivity(ctx context.Context, event, message string, docID *uuid.UUID, stage, level string) {
	entry := &model.ActivityEntry{
		Event:      event,
		Message:    message,
		DocumentID: docID,
		Stage:      stage,
		Level:      level,
	}
	if err := o.store.Activity().Append(ctx, entry); err != nil {
		o.log.Warnf("failed to append activity entry: %v", err)
	}
}

func (o *Orchestrator) updateQueueDepth(ctx context.Context) {
	stats, err := o.store.Document().Stats(ctx)
	if err != nil {
		return
	}
	for _, status := range []string{
		model.DocumentStatusPending,
		model.DocumentStatusProcessing,
		model.DocumentStatusComplete,
		model.DocumentStatusFailed,
	} {
		metrics.UpdateQueueDepthMetric(status, int(stats[status]))
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
