package v1alpha1

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is the read projection of a queued document.
type Document struct {
	ID                 uuid.UUID  `json:"id"`
	Filename           string     `json:"filename"`
	ContentType        string     `json:"content_type,omitempty"`
	Status             string     `json:"status"`
	UploadedAt         time.Time  `json:"uploaded_at"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	CriticalFlagsCount int        `json:"critical_flags_count"`
}

// QueueStatus summarizes the document queue.
type QueueStatus struct {
	Stats           map[string]int64 `json:"stats"`
	UnresolvedFlags int              `json:"unresolved_flags"`
	RecentDocuments []Document       `json:"recent_documents"`
}

type UploadResult struct {
	Status     string    `json:"status"`
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
}

type SimulateResult struct {
	Status      string      `json:"status"`
	QueuedCount int         `json:"queued_count"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

// RedactedPatient is the extraction's patient block with the raw name
// removed. The raw name never leaves the extraction stage payload.
type RedactedPatient struct {
	Age                *int    `json:"age,omitempty"`
	Sex                string  `json:"sex,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	Confidence         float64 `json:"confidence,omitempty"`
}

type Hospital struct {
	Name string `json:"name,omitempty"`
	Unit string `json:"unit,omitempty"`
}

type ExtractionSummary struct {
	Hospital          Hospital        `json:"hospital"`
	Diagnosis         string          `json:"diagnosis,omitempty"`
	Regimen           string          `json:"regimen,omitempty"`
	CyclesCount       int             `json:"cycles_count"`
	OverallConfidence float64         `json:"overall_confidence"`
	Patient           RedactedPatient `json:"patient"`
	Flags             []string        `json:"flags,omitempty"`
}

// DocumentResults aggregates the latest stage outputs and flags for one
// document. Stage payloads other than the extraction summary are passed
// through as stored.
type DocumentResults struct {
	Document          Document           `json:"document"`
	ExtractionSummary *ExtractionSummary `json:"extraction_summary,omitempty"`
	Standardization   json.RawMessage    `json:"standardization,omitempty"`
	Validation        json.RawMessage    `json:"validation,omitempty"`
	FhirBundle        json.RawMessage    `json:"fhir_bundle,omitempty"`
	SafetyFlags       []SafetyFlag       `json:"safety_flags"`
}

type SafetyFlag struct {
	ID         uint       `json:"id"`
	DocumentID uuid.UUID  `json:"document_id"`
	FlagType   string     `json:"flag_type"`
	Severity   string     `json:"severity"`
	Details    string     `json:"details,omitempty"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type AlertList struct {
	Status string       `json:"status"`
	Count  int          `json:"count"`
	Alerts []SafetyFlag `json:"alerts"`
}

type ResolveResult struct {
	Status string `json:"status"`
	FlagID uint   `json:"flag_id"`
}

// Health reports agent liveness derived from the heartbeat age.
type Health struct {
	Status                  string           `json:"status"`
	Heartbeat               *time.Time       `json:"heartbeat,omitempty"`
	UptimeSeconds           int64            `json:"uptime_seconds"`
	StartedAt               *time.Time       `json:"started_at,omitempty"`
	DocumentsProcessedTotal int64            `json:"documents_processed_total"`
	FlagsRaisedTotal        int64            `json:"flags_raised_total"`
	Queue                   map[string]int64 `json:"queue"`
	Service                 string           `json:"service"`
	Version                 string           `json:"version"`
}

type ActivityEntry struct {
	ID         uint       `json:"id"`
	Event      string     `json:"event"`
	Message    string     `json:"message"`
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	Stage      string     `json:"stage,omitempty"`
	Level      string     `json:"level"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Activity is the live feed payload; HasActive tells consumers to poll
// faster while a document is processing.
type Activity struct {
	Entries    []ActivityEntry  `json:"entries"`
	HasActive  bool             `json:"has_active"`
	QueueStats map[string]int64 `json:"queue_stats"`
}

type ProcessNowResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Error struct {
	Error string `json:"error"`
}
