package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// knownMisspellings are handwriting/OCR variants that must not survive
// standardization.
var knownMisspellings = map[string]struct{}{
	"cytosare": {}, "cytbrar": {}, "cytbror": {}, "cytarabinr": {}, "cytosar-u": {},
	"dauno": {}, "daunorubicn": {}, "daunorobicin": {}, "daunoribicin": {},
	"daunorubicine": {},
}

var icd10Pattern = regexp.MustCompile(`^[A-Z][0-9]{2}(\.[0-9A-Z]{1,4})?$`)

// doseVarianceThresholdPct is the maximum allowed deviation from the first
// recorded (baseline) dose of a drug.
const doseVarianceThresholdPct = 10.0

// RunValidation runs the five deterministic safety checks against the stage
// outputs. No model calls, pure logic.
func RunValidation(extraction Extraction, standardized Standardization, bundle map[string]any) ValidationReport {
	checks := []Check{
		checkPII(extraction, bundle),
		checkICD10(standardized),
		checkDoseConsistency(extraction, standardized),
		checkFhirSchema(bundle),
		checkDrugStandardization(standardized),
	}

	passedCount := 0
	for _, c := range checks {
		if c.Passed {
			passedCount++
		}
	}

	return ValidationReport{
		Checks:        checks,
		OverallPassed: passedCount == len(checks),
		PassedCount:   passedCount,
		TotalCount:    len(checks),
	}
}

// checkPII verifies the patient name was read from the chart, that a hashed
// patient id is present in the bundle, and that no part of the raw name
// leaked into the bundle JSON.
func checkPII(extraction Extraction, bundle map[string]any) Check {
	rawName := strings.TrimSpace(extraction.Patient.NameRaw)
	hasRawName := rawName != ""

	patient := findResource(bundle, "Patient")
	patientID, _ := patient["id"].(string)
	hasPatientID := patientID != ""

	bundleJSON, _ := json.Marshal(bundle)
	haystack := strings.ToLower(string(bundleJSON))
	rawNameLower := strings.ToLower(rawName)
	nameLeaked := false
	if len(rawNameLower) > 3 {
		for _, part := range strings.Fields(rawNameLower) {
			if len(part) > 3 && strings.Contains(haystack, part) {
				nameLeaked = true
				break
			}
		}
	}

	passed := hasRawName && hasPatientID && !nameLeaked

	var details []string
	if !hasRawName {
		details = append(details, "No patient name found in raw extraction")
	}
	if !hasPatientID {
		details = append(details, "No patient_id hash in FHIR output")
	}
	if nameLeaked {
		details = append(details, "Patient name may be present in FHIR output (PII leak risk)")
	}
	if passed {
		details = append(details, "Name de-identified, patient_id hash present")
	}

	return Check{Name: CheckPII, Passed: passed, Detail: strings.Join(details, "; ")}
}

func checkICD10(standardized Standardization) Check {
	code := standardized.ICD10.Code
	if code == "" {
		return Check{
			Name:   CheckICD10,
			Passed: false,
			Detail: "No ICD-10 code returned by standardization",
		}
	}

	if !icd10Pattern.MatchString(code) {
		return Check{
			Name:   CheckICD10,
			Passed: false,
			Detail: fmt.Sprintf("Code '%s' does not match ICD-10 pattern [A-Z][0-9]{2}(.subcode)", code),
		}
	}

	return Check{
		Name:   CheckICD10,
		Passed: true,
		Detail: fmt.Sprintf("Code '%s' is valid: %s", code, standardized.ICD10.Description),
	}
}

type doseReading struct {
	cycleID string
	doseMg  float64
}

// parseDoseMg extracts a numeric mg value from a raw drug entry. Tries the
// numeric field first, then the leading number of the raw string ("90mg").
func parseDoseMg(drug CycleDrug) (float64, bool) {
	if drug.DoseValue != nil {
		return *drug.DoseValue, true
	}
	raw := strings.TrimSpace(strings.ReplaceAll(drug.DoseRaw, ",", "."))
	if raw == "" {
		return 0, false
	}
	match := regexp.MustCompile(`^(\d+(?:\.\d+)?)`).FindString(raw)
	if match == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

func collectDosesFromCycles(cycles []Cycle) map[string][]doseReading {
	doses := make(map[string][]doseReading)
	for _, cycle := range cycles {
		cycleID := cycle.CycleID
		if cycleID == "" {
			cycleID = "?"
		}
		for _, drug := range cycle.Drugs {
			doseMg, ok := parseDoseMg(drug)
			if !ok {
				continue
			}
			name := strings.ToLower(strings.TrimSpace(drug.NameRaw))
			if name == "" {
				name = "unknown"
			}
			doses[name] = append(doses[name], doseReading{cycleID: cycleID, doseMg: doseMg})
		}
	}
	return doses
}

func collectDosesFromStandardized(standardized Standardization) map[string][]doseReading {
	doses := make(map[string][]doseReading)
	for _, entry := range standardized.StandardizedDrugs {
		if entry.DoseMg == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(entry.DrugStandard))
		if name == "" {
			name = "unknown"
		}
		cycleID := entry.CycleID
		if cycleID == "" {
			cycleID = "?"
		}
		doses[name] = append(doses[name], doseReading{cycleID: cycleID, doseMg: *entry.DoseMg})
	}
	return doses
}

// baselineVarianceFlags returns a finding per reading that deviates more
// than the threshold from the first recorded (baseline) dose of that drug.
func baselineVarianceFlags(doses map[string][]doseReading) []string {
	var flagged []string
	for _, name := range sortedKeys(doses) {
		readings := doses[name]
		if len(readings) < 2 {
			continue
		}
		baseline := readings[0]
		if baseline.doseMg == 0 {
			continue
		}
		for _, reading := range readings[1:] {
			pct := math.Abs(reading.doseMg-baseline.doseMg) / baseline.doseMg * 100
			if pct > doseVarianceThresholdPct {
				flagged = append(flagged, fmt.Sprintf(
					"%s: %s %.0fmg -> %s %.0fmg (%.0f%% change from baseline, verify intent)",
					titleCase(name), baseline.cycleID, baseline.doseMg, reading.cycleID, reading.doseMg, pct,
				))
			}
		}
	}
	return flagged
}

// checkDoseConsistency flags dose variance from three independent sources:
// the raw cycle readings, the standardized drug list, and the model's own
// dose_analysis verdict. Any single source failing the check fails it, so a
// noisy vision extraction cannot hide a real clinical dose discrepancy.
func checkDoseConsistency(extraction Extraction, standardized Standardization) Check {
	rawDoses := collectDosesFromCycles(extraction.Cycles)
	if flags := baselineVarianceFlags(rawDoses); len(flags) > 0 {
		return Check{
			Name:   CheckDose,
			Passed: false,
			Detail: "Dose variance detected: " + strings.Join(flags, " | "),
		}
	}

	stdDoses := collectDosesFromStandardized(standardized)
	if flags := baselineVarianceFlags(stdDoses); len(flags) > 0 {
		return Check{
			Name:   CheckDose,
			Passed: false,
			Detail: "Dose variance detected (standardized): " + strings.Join(flags, " | "),
		}
	}

	var modelFlags []string
	for _, name := range sortedKeys(standardized.DoseAnalysis) {
		info := standardized.DoseAnalysis[name]
		if !info.VarianceFlagged {
			continue
		}
		detail := info.VarianceDetail
		if detail == "" {
			detail = "variance detected"
		}
		modelFlags = append(modelFlags, fmt.Sprintf("%s: %s", titleCase(name), detail))
	}
	if len(modelFlags) > 0 {
		return Check{
			Name:   CheckDose,
			Passed: false,
			Detail: "Dose variance detected: " + strings.Join(modelFlags, " | "),
		}
	}

	allDrugs := make(map[string]struct{})
	for name := range rawDoses {
		allDrugs[name] = struct{}{}
	}
	for name := range stdDoses {
		allDrugs[name] = struct{}{}
	}
	if len(allDrugs) == 0 {
		return Check{
			Name:   CheckDose,
			Passed: false,
			Detail: "No numeric dose data found, cannot verify consistency",
		}
	}

	return Check{
		Name:   CheckDose,
		Passed: true,
		Detail: "All drug doses within 10% of baseline across " + strings.Join(sortedKeys(allDrugs), ", "),
	}
}

// checkFhirSchema validates the bundle's required R4 fields: Bundle type,
// at least one Patient and one Medication resource, each carrying its
// mandatory identifiers.
func checkFhirSchema(bundle map[string]any) Check {
	var issues []string

	if rt, _ := bundle["resourceType"].(string); rt != "Bundle" {
		issues = append(issues, "resourceType is not 'Bundle'")
	}

	entries := bundleEntries(bundle)
	if len(entries) == 0 {
		issues = append(issues, "Bundle has no entries")
		return Check{Name: CheckFhirSchema, Passed: false, Detail: strings.Join(issues, "; ")}
	}

	var resourceTypes []string
	hasPatient, hasMedication := false, false
	for _, resource := range entries {
		rt, _ := resource["resourceType"].(string)
		resourceTypes = append(resourceTypes, rt)
		switch rt {
		case "Patient":
			hasPatient = true
			if id, _ := resource["id"].(string); id == "" {
				issues = append(issues, "Patient resource missing 'id'")
			}
		case "MedicationAdministration", "MedicationRequest":
			hasMedication = true
			if id, _ := resource["id"].(string); id == "" {
				issues = append(issues, fmt.Sprintf("%s missing 'id'", rt))
			}
			if status, _ := resource["status"].(string); status == "" {
				issues = append(issues, fmt.Sprintf("%s missing 'status'", rt))
			}
		}
	}
	if !hasPatient {
		issues = append(issues, "No Patient resource in bundle")
	}
	if !hasMedication {
		issues = append(issues, "No Medication resource in bundle")
	}

	if len(issues) > 0 {
		return Check{Name: CheckFhirSchema, Passed: false, Detail: strings.Join(issues, "; ")}
	}
	return Check{
		Name:   CheckFhirSchema,
		Passed: true,
		Detail: fmt.Sprintf("Valid Bundle with %d resources", len(resourceTypes)),
	}
}

func checkDrugStandardization(standardized Standardization) Check {
	drugs := standardized.StandardizedDrugs
	if len(drugs) == 0 {
		return Check{
			Name:   CheckDrugNaming,
			Passed: false,
			Detail: "No standardized drug entries found",
		}
	}

	var issues []string
	for _, entry := range drugs {
		name := strings.ToLower(strings.TrimSpace(entry.DrugStandard))
		cycleID := entry.CycleID
		if cycleID == "" {
			cycleID = "?"
		}
		if name == "" {
			issues = append(issues, fmt.Sprintf("Empty drug name in %s", cycleID))
			continue
		}
		if _, bad := knownMisspellings[name]; bad {
			issues = append(issues, fmt.Sprintf("Misspelling persists: '%s' in %s", name, cycleID))
		}
	}

	if len(issues) > 0 {
		return Check{Name: CheckDrugNaming, Passed: false, Detail: strings.Join(issues, "; ")}
	}
	return Check{
		Name:   CheckDrugNaming,
		Passed: true,
		Detail: fmt.Sprintf("All %d drug entries use standardized WHO INN names", len(drugs)),
	}
}

// bundleEntries returns the resource maps inside a bundle's entry list.
func bundleEntries(bundle map[string]any) []map[string]any {
	var resources []map[string]any
	switch entries := bundle["entry"].(type) {
	case []map[string]any:
		for _, entry := range entries {
			if resource, ok := entry["resource"].(map[string]any); ok {
				resources = append(resources, resource)
			}
		}
	case []any:
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if resource, ok := entry["resource"].(map[string]any); ok {
				resources = append(resources, resource)
			}
		}
	}
	return resources
}

func findResource(bundle map[string]any, resourceType string) map[string]any {
	for _, resource := range bundleEntries(bundle) {
		if rt, _ := resource["resourceType"].(string); rt == resourceType {
			return resource
		}
	}
	return map[string]any{}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
