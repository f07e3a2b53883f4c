package pipeline

// Extraction is the structured output of the vision stage, decoded from the
// model's JSON response.
type Extraction struct {
	Patient           PatientInfo   `json:"patient"`
	Hospital          HospitalInfo  `json:"hospital"`
	Diagnosis         DiagnosisInfo `json:"diagnosis"`
	Regimen           RegimenInfo   `json:"regimen"`
	Cycles            []Cycle       `json:"cycles"`
	Flags             []string      `json:"flags"`
	OverallConfidence float64       `json:"overall_confidence"`
	ExtractionNotes   string        `json:"extraction_notes,omitempty"`
}

type PatientInfo struct {
	NameRaw            string  `json:"name_raw"`
	Age                *int    `json:"age"`
	Sex                string  `json:"sex"`
	RegistrationNumber string  `json:"registration_number"`
	Confidence         float64 `json:"confidence"`
}

type HospitalInfo struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type DiagnosisInfo struct {
	TextRaw    string  `json:"text_raw"`
	Confidence float64 `json:"confidence"`
}

type RegimenInfo struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type Cycle struct {
	Date           string      `json:"date"`
	CycleID        string      `json:"cycle_id"`
	Drugs          []CycleDrug `json:"drugs"`
	Remarks        string      `json:"remarks,omitempty"`
	HasCorrection  bool        `json:"has_correction,omitempty"`
	CorrectionNote string      `json:"correction_note,omitempty"`
}

type CycleDrug struct {
	NameRaw       string   `json:"name_raw"`
	DoseRaw       string   `json:"dose_raw"`
	DoseValue     *float64 `json:"dose_value"`
	DoseUnit      string   `json:"dose_unit,omitempty"`
	Route         string   `json:"route,omitempty"`
	Diluent       string   `json:"diluent,omitempty"`
	Duration      string   `json:"duration,omitempty"`
	Confidence    float64  `json:"confidence,omitempty"`
	Ambiguous     bool     `json:"ambiguous,omitempty"`
	AmbiguityNote string   `json:"ambiguity_note,omitempty"`
}

// Standardization is the structured output of the standardization stage.
type Standardization struct {
	ICD10             ICD10Info               `json:"icd10"`
	StandardizedDrugs []StandardizedDrug      `json:"standardized_drugs"`
	DoseAnalysis      map[string]DoseAnalysis `json:"dose_analysis"`
	SafetyFlags       []ModelFlag             `json:"safety_flags"`
	Notes             string                  `json:"notes,omitempty"`
}

type ICD10Info struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type StandardizedDrug struct {
	CycleID          string   `json:"cycle_id"`
	Date             string   `json:"date"`
	DrugStandard     string   `json:"drug_standard"`
	DrugRaw          string   `json:"drug_raw"`
	DoseMg           *float64 `json:"dose_mg"`
	Route            string   `json:"route"`
	Diluent          string   `json:"diluent,omitempty"`
	InfusionDuration string   `json:"infusion_duration,omitempty"`
	NameWasCorrected bool     `json:"name_was_corrected"`
}

type DoseAnalysis struct {
	DosesMg         []float64 `json:"doses_mg"`
	MeanMg          float64   `json:"mean_mg"`
	VarianceFlagged bool      `json:"variance_flagged"`
	VarianceDetail  string    `json:"variance_detail,omitempty"`
}

// ModelFlag is a safety flag raised by the standardization model.
type ModelFlag struct {
	Severity       string   `json:"severity"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	CyclesAffected []string `json:"cycles_affected,omitempty"`
}

// Check is one deterministic validation check outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ValidationReport aggregates the five deterministic safety checks.
type ValidationReport struct {
	Checks        []Check `json:"checks"`
	OverallPassed bool    `json:"overall_passed"`
	PassedCount   int     `json:"passed_count"`
	TotalCount    int     `json:"total_count"`
}

// Check names, also used by the escalation rules.
const (
	CheckPII        = "PII De-identification"
	CheckICD10      = "ICD-10 Code Validity"
	CheckDose       = "Dose Consistency"
	CheckFhirSchema = "FHIR R4 Schema"
	CheckDrugNaming = "Drug Name Standardization"
)
