package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/biovault/document-agent/internal/config"
)

const standardizationSystem = "You are a clinical pharmacist and medical coder specializing in oncology. " +
	"You receive raw extracted data from a handwritten chemotherapy chart and must " +
	"standardize it for electronic health records. " +
	"Return ONLY valid JSON, no markdown fences, no explanation, no preamble."

const standardizationPrompt = `You are a clinical pharmacist and medical coder specializing in
oncology. You receive raw extracted data from a handwritten chemotherapy chart and must
standardize it for electronic health records.

Return ONLY valid JSON, no markdown, no explanation.

INPUT DATA:
{extraction_json}

Perform these tasks:

1. ICD-10 CODING: Map the diagnosis to the correct ICD-10-CM code.
   - Acute Myeloid Leukemia (AML) -> C92.00 (Acute myeloblastic leukemia, without maturation)
   - Include full description.

2. DRUG STANDARDIZATION: Normalize all drug name variants to standard WHO INN names.
   Known variants:
   - "Dauno", "DAUNORUBICIN", "Daunorubicn", "Daunorubicine" -> "Daunorubicin"
   - "Cytosare", "Cytbrar", "cytbror", "Cytarabinr", "Cytosar" -> "Cytarabine"

3. DOSE ANALYSIS: For each drug across all cycles:
   - Calculate mean dose
   - Flag if any single dose deviates >10% from the mean
   - Note dose corrections or crossed-out values

4. SAFETY FLAGS: Identify any of the following:
   - Dose inconsistencies across cycles for the same drug
   - Date anomalies
   - Illegible or ambiguous critical values
   - Missing required fields

Return EXACTLY this JSON structure (no extra keys, no markdown):
{
  "icd10": {
    "code": "<e.g. C92.00>",
    "description": "<full ICD-10 description>",
    "confidence": <0.0-1.0>
  },
  "standardized_drugs": [
    {
      "cycle_id": "<e.g. C1D1>",
      "date": "<YYYY-MM-DD if inferable, else raw>",
      "drug_standard": "<WHO INN name>",
      "drug_raw": "<as written in chart>",
      "dose_mg": <numeric value or null>,
      "route": "<IV/IM/PO>",
      "diluent": "<e.g. Normal Saline 200mL>",
      "infusion_duration": "<e.g. 1 hour>",
      "name_was_corrected": <true/false>
    }
  ],
  "dose_analysis": {
    "<drug name, lowercase>": {
      "doses_mg": [<list of all numeric doses>],
      "mean_mg": <float>,
      "variance_flagged": <true/false>,
      "variance_detail": "<explanation or null>"
    }
  },
  "safety_flags": [
    {
      "severity": "<HIGH/MEDIUM/LOW>",
      "category": "<DOSE_VARIANCE/DATE_ANOMALY/AMBIGUOUS_NAME/MISSING_DATA/OTHER>",
      "description": "<clear clinical description of the issue>",
      "cycles_affected": ["<e.g. C1D1>"]
    }
  ],
  "notes": "<any additional clinical observations>"
}`

// StandardizationResult carries the decoded standardization plus call metadata.
type StandardizationResult struct {
	Standardization Standardization
	Model           string
	LatencyMs       int64
	InputTokens     int
	OutputTokens    int
}

// Standardizer maps a raw extraction to coded, normalized clinical data.
type Standardizer interface {
	Standardize(ctx context.Context, extraction Extraction) (*StandardizationResult, error)
}

// LLMStandardizer calls an OpenAI-compatible chat completion endpoint with
// the extraction embedded in the prompt.
type LLMStandardizer struct {
	chat chatClient
}

var _ Standardizer = (*LLMStandardizer)(nil)

func NewLLMStandardizer(cfg *config.Config) *LLMStandardizer {
	return &LLMStandardizer{
		chat: chatClient{
			baseURL: cfg.Pipeline.StandardizeBaseURL,
			apiKey:  cfg.Pipeline.StandardizeAPIKey,
			model:   cfg.Pipeline.StandardizeModel,
			client:  &http.Client{Timeout: cfg.Pipeline.StageTimeout},
		},
	}
}

func (s *LLMStandardizer) Standardize(ctx context.Context, extraction Extraction) (*StandardizationResult, error) {
	if s.chat.apiKey == "" {
		return nil, errors.New("standardization API key not configured")
	}

	extractionJSON, err := json.MarshalIndent(extraction, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling extraction")
	}

	messages := []chatMessage{
		{Role: "system", Content: standardizationSystem},
		{Role: "user", Content: strings.Replace(standardizationPrompt, "{extraction_json}", string(extractionJSON), 1)},
	}

	start := time.Now()
	content, usage, err := s.chat.complete(ctx, "/chat/completions", messages, 0.0)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	var standardized Standardization
	if err := json.Unmarshal([]byte(extractJSON(content)), &standardized); err != nil {
		return nil, errors.Wrapf(err, "standardization model returned invalid JSON (first 500: %s)", truncate(content, 500))
	}

	return &StandardizationResult{
		Standardization: standardized,
		Model:           s.chat.model,
		LatencyMs:       latency,
		InputTokens:     usage.PromptTokens,
		OutputTokens:    usage.CompletionTokens,
	}, nil
}
