package service

import (
	"time"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// DeriveRiskLevel applies the deterministic risk rule to the extracted
// string-typed booleans. The oracle's own risk suggestion is never used here.
func DeriveRiskLevel(critical, incidental, followUp string) domain.RiskLevel {
	switch {
	case domain.YesNo(critical).Bool():
		return domain.RiskHigh
	case domain.YesNo(incidental).Bool() || domain.YesNo(followUp).Bool():
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// ResponseTimeMinutes computes the critical-finding response time in whole
// minutes from the found/reported clock-time strings, anchored to the
// report's calendar date. A reported time at or before the found time is an
// inconsistent but observed input and yields 0; an unparseable time on either
// side yields nil.
func ResponseTimeMinutes(found, reported string, anchor time.Time) *int64 {
	foundAt, ok := timestamp.TimeOfDay(found, anchor)
	if !ok {
		return nil
	}
	reportedAt, ok := timestamp.TimeOfDay(reported, anchor)
	if !ok {
		return nil
	}
	var minutes int64
	if d := reportedAt.Sub(foundAt); d > 0 {
		minutes = int64(d / time.Minute)
	}
	return &minutes
}

// AIReportTimestamp normalizes the oracle-asserted exam date into a canonical
// timestamp pinned to midday, or nil when absent or unparseable.
func AIReportTimestamp(examDate string) *string {
	ts, ok := timestamp.ExamDate(examDate)
	if !ok {
		return nil
	}
	return &ts
}

// applyExtraction copies the oracle result and the recomputed derived fields
// onto a finding record. The report's canonical timestamp anchors the
// time-of-day fields.
func applyExtraction(rec *domain.FindingRecord, result *domain.ExtractionResult) {
	anchor, _ := timestamp.ParseCanonical(rec.Timestamp)

	rec.CriticalFindings = strPtr(result.CriticalFindings)
	rec.IncidentalFindings = strPtr(result.IncidentalFindings)
	rec.MammogramScore = strPtr(result.MammogramScore)
	rec.FollowUp = strPtr(result.FollowUpRequired)
	rec.Summary = strPtr(result.Summary)
	rec.CriticalFindingsText = strPtr(result.CriticalFindingsText)
	rec.IncidentalFindingsText = strPtr(result.IncidentalFindingsText)
	rec.ScanType = strPtr(result.ScanType)
	rec.RadiologistName = strPtr(result.RadiologistName)
	rec.ExamDateAI = strPtr(result.ExamDate)
	rec.RiskLevelAI = strPtr(result.RiskLevel)

	rec.RiskLevel = DeriveRiskLevel(result.CriticalFindings, result.IncidentalFindings, result.FollowUpRequired)
	rec.ResponseTimeMinutes = ResponseTimeMinutes(result.TimeFindingsFound, result.TimeFindingsReported, anchor)
	rec.AIReportTimestamp = AIReportTimestamp(result.ExamDate)
}

// strPtr nils out empty strings so absent oracle output persists as NULL and
// stays visible to the retry selection.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
