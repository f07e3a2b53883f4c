package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/biovault/document-agent/api/v1alpha1"
	"github.com/biovault/document-agent/internal/pipeline"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/internal/store/model"
)

var allowedContentTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"application/pdf": {},
}

type DocumentService struct {
	store          store.Store
	uploadDir      string
	maxUploadBytes int64
	demoChartPath  string
	log            *zap.SugaredLogger
}

func NewDocumentService(st store.Store, uploadDir string, maxUploadBytes int64, demoChartPath string) *DocumentService {
	return &DocumentService{
		store:          st,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		demoChartPath:  demoChartPath,
		log:            zap.S().Named("service"),
	}
}

// MaxUploadBytes is the upload size ceiling, exposed so the transport
// layer can refuse oversized bodies before buffering them.
func (s *DocumentService) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// CreateDocument validates and stores an uploaded file, then queues a
// pending document row. Processing happens asynchronously.
func (s *DocumentService) CreateDocument(ctx context.Context, filename, contentType string, content []byte) (*api.UploadResult, error) {
	if _, ok := allowedContentTypes[contentType]; !ok {
		return nil, NewErrUnsupportedFileType(contentType)
	}
	if int64(len(content)) > s.maxUploadBytes {
		return nil, NewErrFileTooLarge(s.maxUploadBytes)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, err
	}

	if filename == "" {
		filename = "document.jpg"
	}
	suffix := filepath.Ext(filename)
	if suffix == "" {
		suffix = ".jpg"
	}

	docID := uuid.New()
	destPath := filepath.Join(s.uploadDir, docID.String()+suffix)
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return nil, err
	}

	document, err := s.store.Document().Create(ctx, &model.Document{
		ID:          docID,
		Filename:    filename,
		ContentType: contentType,
		FilePath:    destPath,
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("document queued: id=%s filename=%s size=%d", document.ID, filename, len(content))
	return &api.UploadResult{
		Status:     "queued",
		DocumentID: document.ID,
		Filename:   filename,
	}, nil
}

// Simulate queues count copies of the bundled demo chart for demo runs.
func (s *DocumentService) Simulate(ctx context.Context, count int) (*api.SimulateResult, error) {
	if count <= 0 {
		count = 5
	}
	chart, err := os.ReadFile(s.demoChartPath)
	if err != nil {
		return nil, NewErrResourceNotFound(s.demoChartPath, "demo chart")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, err
	}

	suffix := filepath.Ext(s.demoChartPath)
	if suffix == "" {
		suffix = ".jpeg"
	}

	queued := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		docID := uuid.New()
		destPath := filepath.Join(s.uploadDir, docID.String()+suffix)
		if err := os.WriteFile(destPath, chart, 0o644); err != nil {
			return nil, err
		}
		filename := fmt.Sprintf("synthetic_chart_%02d%s", i+1, suffix)
		if i == 0 {
			filename = "demo_chart" + suffix
		}
		if _, err := s.store.Document().Create(ctx, &model.Document{
			ID:          docID,
			Filename:    filename,
			ContentType: "image/jpeg",
			FilePath:    destPath,
		}); err != nil {
			return nil, err
		}
		queued = append(queued, docID)
	}

	s.log.Infof("simulate: %d documents queued", len(queued))
	return &api.SimulateResult{
		Status:      "ok",
		QueuedCount: len(queued),
		DocumentIDs: queued,
	}, nil
}

// Queue returns per-status counts, the unresolved flag count, and the most
// recently uploaded documents.
func (s *DocumentService) Queue(ctx context.Context) (*api.QueueStatus, error) {
	stats, err := s.store.Document().Stats(ctx)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.store.SafetyFlag().Unresolved(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.Document().Recent(ctx, 20)
	if err != nil {
		return nil, err
	}

	documents := make([]api.Document, 0, len(recent))
	for _, d := range recent {
		documents = append(documents, toAPIDocument(&d))
	}
	return &api.QueueStatus{
		Stats:           stats,
		UnresolvedFlags: len(unresolved),
		RecentDocuments: documents,
	}, nil
}

// Get returns a single document projection.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*api.Document, error) {
	document, err := s.store.Document().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrDocumentNotFound(id)
		}
		return nil, err
	}
	out := toAPIDocument(document)
	return &out, nil
}

// Results aggregates the latest stage outputs per stage plus the document's
// flags. The extraction payload is reduced to a summary with the raw
// patient name removed; other stage payloads pass through as stored.
func (s *DocumentService) Results(ctx context.Context, id uuid.UUID) (*api.DocumentResults, error) {
	document, err := s.store.Document().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrDocumentNotFound(id)
		}
		return nil, err
	}

	stages, err := s.store.StageResult().LatestByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	flags, err := s.store.SafetyFlag().ByDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	results := &api.DocumentResults{
		Document:    toAPIDocument(document),
		SafetyFlags: toAPIFlags(flags),
	}
	for _, stage := range stages {
		if stage.Status != model.StageStatusSuccess || len(stage.Output) == 0 {
			continue
		}
		switch stage.Stage {
		case model.StageExtraction:
			results.ExtractionSummary = summarizeExtraction(stage.Output)
		case model.StageStandardization:
			results.Standardization = json.RawMessage(stage.Output)
		case model.StageValidation:
			results.Validation = json.RawMessage(stage.Output)
		case model.StageFhir:
			results.FhirBundle = json.RawMessage(stage.Output)
		}
	}
	return results, nil
}

// Image returns the stored file path and original filename for a document.
func (s *DocumentService) Image(ctx context.Context, id uuid.UUID) (path, filename string, err error) {
	document, err := s.store.Document().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", "", NewErrDocumentNotFound(id)
		}
		return "", "", err
	}
	if _, err := os.Stat(document.FilePath); err != nil {
		return "", "", NewErrResourceNotFound(id.String(), "image file for document")
	}
	return document.FilePath, document.Filename, nil
}

// Retry requeues a failed or complete document as pending.
func (s *DocumentService) Retry(ctx context.Context, id uuid.UUID) error {
	err := s.store.Document().Requeue(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrRecordNotFound):
		return NewErrDocumentNotFound(id)
	case errors.Is(err, store.ErrInvalidTransition):
		document, getErr := s.store.Document().Get(ctx, id)
		status := "unknown"
		if getErr == nil {
			status = document.Status
		}
		return NewErrNotRetryable(id, status)
	default:
		return err
	}
}

func toAPIDocument(d *model.Document) api.Document {
	return api.Document{
		ID:                 d.ID,
		Filename:           d.Filename,
		ContentType:        d.ContentType,
		Status:             d.Status,
		UploadedAt:         d.UploadedAt,
		ProcessedAt:        d.ProcessedAt,
		ErrorMessage:       d.ErrorMessage,
		CriticalFlagsCount: d.CriticalFlagsCount,
	}
}

func toAPIFlags(flags []model.SafetyFlag) []api.SafetyFlag {
	out := make([]api.SafetyFlag, 0, len(flags))
	for _, f := range flags {
		out = append(out, api.SafetyFlag{
			ID:         f.ID,
			DocumentID: f.DocumentID,
			FlagType:   f.FlagType,
			Severity:   f.Severity,
			Details:    f.Details,
			Resolved:   f.Resolved,
			CreatedAt:  f.CreatedAt,
			ResolvedAt: f.ResolvedAt,
		})
	}
	return out
}

func summarizeExtraction(output []byte) *api.ExtractionSummary {
	var extraction pipeline.Extraction
	if err := json.Unmarshal(output, &extraction); err != nil {
		return nil
	}
	return &api.ExtractionSummary{
		Hospital: api.Hospital{
			Name: extraction.Hospital.Name,
			Unit: extraction.Hospital.Unit,
		},
		Diagnosis:         extraction.Diagnosis.TextRaw,
		Regimen:           extraction.Regimen.Name,
		CyclesCount:       len(extraction.Cycles),
		OverallConfidence: extraction.OverallConfidence,
		Patient: api.RedactedPatient{
			Age:                extraction.Patient.Age,
			Sex:                extraction.Patient.Sex,
			RegistrationNumber: extraction.Patient.RegistrationNumber,
			Confidence:         extraction.Patient.Confidence,
		},
		Flags: extraction.Flags,
	}
}
