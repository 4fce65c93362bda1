// Package store persists finding records with at-most-once insertion
// semantics. The SQLite backend is the embedded default; a PostgreSQL backend
// backs shared deployments. Both enforce the (patient_id, timestamp) natural
// key by a pre-insert existence check inside the batch transaction.
package store

import (
	"database/sql"
	"time"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// findingColumns is the shared column list, surrogate id first.
const findingColumns = `id, patient_id, timestamp,
	critical_findings, incidental_findings, mammogram_score, follow_up,
	summary, critical_findings_text, incidental_findings_text,
	scan_type, radiologist_name, exam_date_ai, risk_level_ai,
	risk_level, critical_finding_response_time_minutes, ai_report_timestamp,
	created_at, updated_at`

// incompleteWhere selects rows with any extracted field still null. Null
// derived fields are legitimate outcomes (a report without critical-finding
// times has no response time) and do not by themselves trigger a retry.
const incompleteWhere = `critical_findings IS NULL
	OR incidental_findings IS NULL
	OR mammogram_score IS NULL
	OR follow_up IS NULL
	OR summary IS NULL
	OR critical_findings_text IS NULL
	OR incidental_findings_text IS NULL
	OR scan_type IS NULL
	OR radiologist_name IS NULL
	OR exam_date_ai IS NULL`

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFinding scans one row into a FindingRecord, converting SQL nulls to nil
// pointers and parsing the canonical report timestamp.
func scanFinding(s scanner) (*domain.FindingRecord, error) {
	rec := &domain.FindingRecord{}
	var (
		critical, incidental, mammogram, followUp     sql.NullString
		summary, criticalText, incidentalText         sql.NullString
		scanType, radiologist, examDate, riskAI       sql.NullString
		aiTimestamp                                   sql.NullString
		responseMinutes                               sql.NullInt64
		riskLevel                                     string
		createdAt, updatedAt                          time.Time
	)

	err := s.Scan(
		&rec.ID, &rec.PatientID, &rec.Timestamp,
		&critical, &incidental, &mammogram, &followUp,
		&summary, &criticalText, &incidentalText,
		&scanType, &radiologist, &examDate, &riskAI,
		&riskLevel, &responseMinutes, &aiTimestamp,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.CriticalFindings = fromNullString(critical)
	rec.IncidentalFindings = fromNullString(incidental)
	rec.MammogramScore = fromNullString(mammogram)
	rec.FollowUp = fromNullString(followUp)
	rec.Summary = fromNullString(summary)
	rec.CriticalFindingsText = fromNullString(criticalText)
	rec.IncidentalFindingsText = fromNullString(incidentalText)
	rec.ScanType = fromNullString(scanType)
	rec.RadiologistName = fromNullString(radiologist)
	rec.ExamDateAI = fromNullString(examDate)
	rec.RiskLevelAI = fromNullString(riskAI)
	rec.RiskLevel = domain.RiskLevel(riskLevel)
	rec.AIReportTimestamp = fromNullString(aiTimestamp)
	if responseMinutes.Valid {
		rec.ResponseTimeMinutes = &responseMinutes.Int64
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	rec.ReportTime, _ = timestamp.ParseCanonical(rec.Timestamp)

	return rec, nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func toNullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
