package domain

import "time"

// ReportRecord is one ingested report row, radiology or clinical. Records are
// sourced fresh per run and never mutated; Timestamp holds the canonical
// `YYYY-MM-DD HH:MM:SS` join key.
type ReportRecord struct {
	PatientID string `json:"patient_id"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// MatchedPair joins a radiology report to its temporally closest clinical
// report for the same patient. Timestamp is the radiology report's canonical
// timestamp; ClinicalText is empty when the patient has no clinical reports.
type MatchedPair struct {
	PatientID     string `json:"patient_id"`
	Timestamp     string `json:"timestamp"`
	RadiologyText string `json:"radiology_text"`
	ClinicalText  string `json:"clinical_text"`
}

// ReportKey is the natural key of a persisted finding.
type ReportKey struct {
	PatientID string
	Timestamp string
}

// ExtractionResult is the loosely-typed mapping returned by the extraction
// oracle, modeled with explicit fields. The JSON tags mirror the oracle's
// output keys verbatim; optional keys decode to empty strings.
type ExtractionResult struct {
	CriticalFindings       string `json:"Critical Findings"`
	IncidentalFindings     string `json:"Incidental Findings"`
	MammogramScore         string `json:"Mammogram Score"`
	FollowUpRequired       string `json:"Follow Up Required"`
	RiskLevel              string `json:"Risk Level"`
	Summary                string `json:"Summary"`
	TimeFindingsFound      string `json:"Time Critical Findings Found"`
	TimeFindingsReported   string `json:"Time Critical Findings Reported"`
	ScanType               string `json:"Scan Type"`
	ExamDate               string `json:"Exam Date"`
	RadiologistName        string `json:"Radiologist Name"`
	CriticalFindingsText   string `json:"Critical Findings Text"`
	IncidentalFindingsText string `json:"Incidental Findings Text"`
}

// Normalize applies the documented defaults for absent keys so that every
// result leaving the oracle boundary carries the full required field set.
func (r *ExtractionResult) Normalize() {
	if r.CriticalFindings == "" {
		r.CriticalFindings = string(YesNoNo)
	}
	if r.IncidentalFindings == "" {
		r.IncidentalFindings = string(YesNoNo)
	}
	if r.MammogramScore == "" {
		r.MammogramScore = "Not Available"
	}
	if r.FollowUpRequired == "" {
		r.FollowUpRequired = string(YesNoNo)
	}
	if r.RiskLevel == "" {
		r.RiskLevel = string(RiskLow)
	}
}

// FallbackExtraction returns the sentinel record stored when an oracle call
// fails. The batch continues; the record stays eligible for retry because its
// derived fields remain null.
func FallbackExtraction() *ExtractionResult {
	return &ExtractionResult{
		CriticalFindings:   string(YesNoNone),
		IncidentalFindings: string(YesNoNone),
		MammogramScore:     string(YesNoNone),
		FollowUpRequired:   string(YesNoNone),
		RiskLevel:          string(YesNoNone),
		Summary:            "",
	}
}

// FindingRecord is one persisted row per unique (patient_id, timestamp) pair.
// Pointer fields are nullable: they come from the oracle or are derived from
// oracle output and may be absent until a retry pass fills them in.
type FindingRecord struct {
	ID        int64  `json:"id,omitempty"`
	PatientID string `json:"patient_id"`
	// Timestamp is the canonical join/report timestamp, not the AI-asserted
	// exam date.
	Timestamp string `json:"timestamp"`

	CriticalFindings       *string `json:"critical_findings"`
	IncidentalFindings     *string `json:"incidental_findings"`
	MammogramScore         *string `json:"mammogram_score"`
	FollowUp               *string `json:"follow_up"`
	Summary                *string `json:"summary"`
	CriticalFindingsText   *string `json:"critical_findings_text"`
	IncidentalFindingsText *string `json:"incidental_findings_text"`
	ScanType               *string `json:"scan_type"`
	RadiologistName        *string `json:"radiologist_name"`
	ExamDateAI             *string `json:"exam_date_ai"`
	// RiskLevelAI is the oracle's own risk suggestion, surfaced separately
	// from the locally derived RiskLevel.
	RiskLevelAI *string `json:"risk_level_ai"`

	RiskLevel           RiskLevel `json:"risk_level"`
	ResponseTimeMinutes *int64    `json:"critical_finding_response_time_minutes"`
	AIReportTimestamp   *string   `json:"ai_report_timestamp"`

	// ReportTime is Timestamp parsed into a concrete instant; populated on
	// load, not persisted.
	ReportTime time.Time `json:"report_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the natural (patient, timestamp) key of the record.
func (f *FindingRecord) Key() ReportKey {
	return ReportKey{PatientID: f.PatientID, Timestamp: f.Timestamp}
}

// IngestSummary reports the outcome of one ingest batch.
type IngestSummary struct {
	RunID      string `json:"run_id"`
	Radiology  int    `json:"radiology_reports"`
	Clinical   int    `json:"clinical_reports"`
	Matched    int    `json:"matched_pairs"`
	NewRecords int    `json:"new_records"`
	Inserted   int    `json:"inserted"`
	Failures   int    `json:"extraction_failures"`
	BadRows    int    `json:"skipped_bad_rows"`
}
