package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/biovault/document-agent/internal/config"
)

const extractionSystemPrompt = `You are a clinical document digitization specialist.
Your task is to extract ALL information from handwritten chemotherapy charts with
extreme precision. Patient safety depends on accuracy, a misread dose can be fatal.

Return ONLY valid JSON. No markdown, no explanation.`

const extractionUserPrompt = `Extract every piece of information from this chemotherapy
chart image. Return a JSON object with EXACTLY this structure:

{
  "patient": {
    "name_raw": "<exact name as written>",
    "age": <integer or null>,
    "sex": "<M/F/Other or null>",
    "registration_number": "<exact as written>",
    "confidence": <0.0-1.0>
  },
  "hospital": {
    "name": "<hospital name>",
    "unit": "<unit/department name>"
  },
  "diagnosis": {
    "text_raw": "<exact diagnosis text as written>",
    "confidence": <0.0-1.0>
  },
  "regimen": {
    "name": "<chemotherapy regimen name>",
    "confidence": <0.0-1.0>
  },
  "cycles": [
    {
      "date": "<date as written, e.g. 07/03/24>",
      "cycle_id": "<e.g. C1D1, C1D2>",
      "drugs": [
        {
          "name_raw": "<drug name exactly as written>",
          "dose_raw": "<dose exactly as written, e.g. 90mg>",
          "dose_value": <numeric value or null>,
          "dose_unit": "<mg/mcg/g or null>",
          "route": "<IV/IM/PO or null>",
          "diluent": "<e.g. N/S 200ml or null>",
          "duration": "<e.g. over 1 hour or null>",
          "confidence": <0.0-1.0>,
          "ambiguous": <true if hard to read>,
          "ambiguity_note": "<describe what is unclear, or null>"
        }
      ],
      "remarks": "<any remarks column text>",
      "has_correction": <true if crossed-out or corrected values visible>,
      "correction_note": "<describe correction if any>"
    }
  ],
  "flags": [
    "<any field or value that is ambiguous, crossed out, or clinically notable>"
  ],
  "overall_confidence": <0.0-1.0>,
  "extraction_notes": "<any general observations about document quality>"
}

Be especially careful with:
- Drug name spelling variants (OCR artifacts from handwriting)
- Dose values: distinguish between 80mg vs 90mg precisely
- Dates that may conflict with remarks
- Crossed-out or corrected entries
- Cycle numbering (C1D1 = Cycle 1 Day 1)`

// ExtractionResult carries the decoded extraction plus call metadata.
type ExtractionResult struct {
	Extraction Extraction
	Model      string
	LatencyMs  int64
	TokensUsed int
}

// Extractor turns a stored chart image into structured clinical data.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) (*ExtractionResult, error)
}

// VisionExtractor calls a vision chat completion endpoint with the image
// embedded as a base64 data URL.
type VisionExtractor struct {
	chat chatClient
}

var _ Extractor = (*VisionExtractor)(nil)

func NewVisionExtractor(cfg *config.Config) *VisionExtractor {
	return &VisionExtractor{
		chat: chatClient{
			baseURL: cfg.Pipeline.VisionBaseURL,
			apiKey:  cfg.Pipeline.VisionAPIKey,
			model:   cfg.Pipeline.VisionModel,
			client:  &http.Client{Timeout: cfg.Pipeline.StageTimeout},
		},
	}
}

func (e *VisionExtractor) Extract(ctx context.Context, imagePath string) (*ExtractionResult, error) {
	if e.chat.apiKey == "" {
		return nil, errors.New("vision API key not configured")
	}

	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, errors.Wrap(err, "reading chart image")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", imageMimeType(imagePath), base64.StdEncoding.EncodeToString(raw))

	messages := []chatMessage{
		{Role: "system", Name: "BioVault", Content: extractionSystemPrompt},
		{
			Role: "user",
			Name: "User",
			Content: []map[string]any{
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				{"type": "text", "text": extractionUserPrompt},
			},
		},
	}

	start := time.Now()
	content, usage, err := e.chat.complete(ctx, "/text/chatcompletion_v2", messages, 0.1)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start).Milliseconds()

	var extraction Extraction
	if err := json.Unmarshal([]byte(extractJSON(content)), &extraction); err != nil {
		return nil, errors.Wrapf(err, "vision model returned invalid JSON (first 500: %s)", truncate(content, 500))
	}

	return &ExtractionResult{
		Extraction: extraction,
		Model:      e.chat.model,
		LatencyMs:  latency,
		TokensUsed: usage.TotalTokens,
	}, nil
}

func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
