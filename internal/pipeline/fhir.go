package pipeline

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HashPatientID derives a deterministic anonymized patient ID from PII
// fields. The raw name never enters the bundle.
func HashPatientID(name, regNumber string) string {
	raw := fmt.Sprintf("%s::%s",
		strings.ToLower(strings.TrimSpace(name)),
		strings.ToLower(strings.TrimSpace(regNumber)),
	)
	sum := sha256.Sum256([]byte(raw))
	return "PAT-" + strings.ToUpper(fmt.Sprintf("%x", sum)[:12])
}

// BuildFhirBundle assembles a FHIR R4 Bundle from the extraction and
// standardization outputs: one de-identified Patient, one Condition with the
// ICD-10 coding, and one MedicationAdministration per standardized drug
// entry. Purely deterministic, no model calls.
func BuildFhirBundle(extraction Extraction, standardized Standardization) map[string]any {
	nameRaw := extraction.Patient.NameRaw
	if nameRaw == "" {
		nameRaw = "UNKNOWN"
	}
	regNumber := extraction.Patient.RegistrationNumber
	if regNumber == "" {
		regNumber = "UNKNOWN"
	}

	patientID := HashPatientID(nameRaw, regNumber)
	now := time.Now().UTC().Format(time.RFC3339)

	patient := buildPatient(patientID, extraction.Patient.Age, extraction.Patient.Sex, regNumber)

	icd10Code := standardized.ICD10.Code
	if icd10Code == "" {
		icd10Code = "UNKNOWN"
	}
	conditionID := "condition-" + uuid.New().String()[:8]
	condition := buildCondition(conditionID, patientID, icd10Code, standardized.ICD10.Description, extraction.Diagnosis.TextRaw)

	entries := []map[string]any{
		{"fullUrl": "urn:uuid:" + patientID, "resource": patient},
		{"fullUrl": "urn:uuid:" + conditionID, "resource": condition},
	}
	for _, drug := range standardized.StandardizedDrugs {
		medID := "medadmin-" + uuid.New().String()[:8]
		med := buildMedicationAdministration(medID, patientID, conditionID, drug)
		entries = append(entries, map[string]any{"fullUrl": "urn:uuid:" + medID, "resource": med})
	}

	return map[string]any{
		"resourceType": "Bundle",
		"id":           uuid.New().String(),
		"meta": map[string]any{
			"lastUpdated": now,
			"tag": []map[string]any{
				{
					"system":  "http://biovault.io/tags",
					"code":    "ai-generated",
					"display": "AI-extracted from handwritten chart",
				},
			},
		},
		"type":      "collection",
		"timestamp": now,
		"entry":     entries,
		"extension": []map[string]any{
			{
				"url": "http://biovault.io/fhir/StructureDefinition/extraction-metadata",
				"extension": []map[string]any{
					{"url": "sourceDocument", "valueString": "handwritten-chemotherapy-chart"},
					{"url": "hospital", "valueString": extraction.Hospital.Name},
					{"url": "unit", "valueString": extraction.Hospital.Unit},
					{"url": "regimen", "valueString": extraction.Regimen.Name},
					{"url": "overallConfidence", "valueDecimal": extraction.OverallConfidence},
				},
			},
		},
	}
}

func buildPatient(patientID string, age *int, sex, regNumber string) map[string]any {
	gender := "unknown"
	switch strings.ToUpper(sex) {
	case "M":
		gender = "male"
	case "F":
		gender = "female"
	}

	extensions := []map[string]any{}
	if age != nil {
		extensions = append(extensions, map[string]any{
			"url": "http://hl7.org/fhir/StructureDefinition/patient-age",
			"valueAge": map[string]any{
				"value":  *age,
				"unit":   "years",
				"system": "http://unitsofmeasure.org",
				"code":   "a",
			},
		})
	}

	return map[string]any{
		"resourceType": "Patient",
		"id":           patientID,
		"meta": map[string]any{
			"profile": []string{"http://hl7.org/fhir/StructureDefinition/Patient"},
			"security": []map[string]any{
				{
					"system":  "http://terminology.hl7.org/CodeSystem/v3-Confidentiality",
					"code":    "R",
					"display": "Restricted",
				},
			},
		},
		"text": map[string]any{
			"status": "generated",
			"div":    fmt.Sprintf(`<div xmlns="http://www.w3.org/1999/xhtml">De-identified Patient: %s</div>`, patientID),
		},
		"identifier": []map[string]any{
			{"use": "official", "system": "http://biovault.io/patient-id", "value": patientID},
			{"use": "secondary", "system": "http://biovault.io/registration", "value": regNumber},
		},
		"active":    true,
		"gender":    gender,
		"extension": extensions,
	}
}

func buildCondition(conditionID, patientID, icd10Code, icd10Description, diagnosisRaw string) map[string]any {
	return map[string]any{
		"resourceType": "Condition",
		"id":           conditionID,
		"meta": map[string]any{
			"profile": []string{"http://hl7.org/fhir/StructureDefinition/Condition"},
		},
		"clinicalStatus": map[string]any{
			"coding": []map[string]any{
				{
					"system":  "http://terminology.hl7.org/CodeSystem/condition-clinical",
					"code":    "active",
					"display": "Active",
				},
			},
		},
		"verificationStatus": map[string]any{
			"coding": []map[string]any{
				{
					"system":  "http://terminology.hl7.org/CodeSystem/condition-ver-status",
					"code":    "confirmed",
					"display": "Confirmed",
				},
			},
		},
		"category": []map[string]any{
			{
				"coding": []map[string]any{
					{
						"system":  "http://terminology.hl7.org/CodeSystem/condition-category",
						"code":    "encounter-diagnosis",
						"display": "Encounter Diagnosis",
					},
				},
			},
		},
		"code": map[string]any{
			"coding": []map[string]any{
				{
					"system":  "http://hl7.org/fhir/sid/icd-10-cm",
					"code":    icd10Code,
					"display": icd10Description,
				},
			},
			"text": diagnosisRaw,
		},
		"subject": map[string]any{
			"reference": "Patient/" + patientID,
		},
		"recordedDate": time.Now().UTC().Format("2006-01-02"),
	}
}

var routeCodings = map[string]map[string]any{
	"IV": {"system": "http://snomed.info/sct", "code": "47625008", "display": "Intravenous route"},
	"PO": {"system": "http://snomed.info/sct", "code": "26643006", "display": "Oral route"},
	"IM": {"system": "http://snomed.info/sct", "code": "78421000", "display": "Intramuscular route"},
}

func buildMedicationAdministration(medID, patientID, conditionID string, drug StandardizedDrug) map[string]any {
	drugStandard := drug.DrugStandard
	if drugStandard == "" {
		drugStandard = "UNKNOWN"
	}

	route, ok := routeCodings[strings.ToUpper(drug.Route)]
	if !ok {
		route = routeCodings["IV"]
	}
	dosage := map[string]any{"route": route}
	if drug.DoseMg != nil {
		dosage["dose"] = map[string]any{
			"value":  *drug.DoseMg,
			"unit":   "mg",
			"system": "http://unitsofmeasure.org",
			"code":   "mg",
		}
	}
	if drug.Diluent != "" {
		text := "In " + drug.Diluent
		if drug.InfusionDuration != "" {
			text += " over " + drug.InfusionDuration
		}
		dosage["text"] = text
	}

	effective := drug.Date
	if effective == "" {
		effective = time.Now().UTC().Format("2006-01-02")
	}

	return map[string]any{
		"resourceType": "MedicationAdministration",
		"id":           medID,
		"meta": map[string]any{
			"profile": []string{"http://hl7.org/fhir/StructureDefinition/MedicationAdministration"},
		},
		"status": "completed",
		"medicationCodeableConcept": map[string]any{
			"coding": []map[string]any{
				{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "display": drugStandard},
			},
			"text": drugStandard,
		},
		"subject": map[string]any{"reference": "Patient/" + patientID},
		"context": map[string]any{"reference": "Condition/" + conditionID},
		"effectiveDateTime": effective,
		"note": []map[string]any{
			{"text": "Cycle: " + drug.CycleID},
			{"text": fmt.Sprintf("Handwritten name: '%s'", drug.DrugRaw)},
		},
		"dosage": dosage,
		"extension": []map[string]any{
			{"url": "http://biovault.io/fhir/StructureDefinition/cycle-id", "valueString": drug.CycleID},
			{"url": "http://biovault.io/fhir/StructureDefinition/drug-name-corrected", "valueBoolean": drug.NameWasCorrected},
		},
	}
}
