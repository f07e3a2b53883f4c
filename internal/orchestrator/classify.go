package orchestrator

import (
	"github.com/biovault/document-agent/internal/pipeline"
	"github.com/biovault/document-agent/internal/store/model"
)

var checkSeverities = map[string]string{
	pipeline.CheckDose:       model.SeverityHigh,
	pipeline.CheckPII:        model.SeverityHigh,
	pipeline.CheckDrugNaming: model.SeverityMedium,
	pipeline.CheckICD10:      model.SeverityMedium,
	pipeline.CheckFhirSchema: model.SeverityLow,
}

var checkFlagTypes = map[string]string{
	pipeline.CheckDose:       model.FlagDoseVariance,
	pipeline.CheckDrugNaming: model.FlagAmbiguousName,
	pipeline.CheckICD10:      model.FlagCodingError,
	pipeline.CheckFhirSchema: model.FlagSchemaError,
	pipeline.CheckPII:        model.FlagPiiLeak,
}

// classifyCheck maps a failed validation check to the severity and flag type
// of the safety flag it raises.
func classifyCheck(checkName string) (severity, flagType string) {
	severity, ok := checkSeverities[checkName]
	if !ok {
		severity = model.SeverityMedium
	}
	flagType, ok = checkFlagTypes[checkName]
	if !ok {
		flagType = model.FlagOther
	}
	return severity, flagType
}

// shouldDispatch reports whether a flag's severity warrants an outbound
// escalation rather than just a recorded row.
func shouldDispatch(severity string) bool {
	return severity == model.SeverityHigh || severity == model.SeverityCritical
}
