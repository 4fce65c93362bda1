// Package service implements the report-matching, extraction-orchestration
// and retry stages of the findings pipeline.
package service

import (
	"time"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// MatchReports pairs every radiology report with the clinical report for the
// same patient whose timestamp is nearest in absolute time. The output has
// exactly one pair per input radiology report, in input order; ties keep the
// first clinical report encountered, and a patient without clinical reports
// gets an empty clinical text.
func MatchReports(radiology, clinical []domain.ReportRecord) []domain.MatchedPair {
	byPatient := make(map[string][]clinicalEntry, len(clinical))
	for _, rec := range clinical {
		at, ok := timestamp.ParseCanonical(rec.Timestamp)
		if !ok {
			continue
		}
		byPatient[rec.PatientID] = append(byPatient[rec.PatientID], clinicalEntry{at: at, text: rec.Text})
	}

	pairs := make([]domain.MatchedPair, 0, len(radiology))
	for _, rec := range radiology {
		pair := domain.MatchedPair{
			PatientID:     rec.PatientID,
			Timestamp:     rec.Timestamp,
			RadiologyText: rec.Text,
		}
		if at, ok := timestamp.ParseCanonical(rec.Timestamp); ok {
			pair.ClinicalText = nearestClinicalText(byPatient[rec.PatientID], at)
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

type clinicalEntry struct {
	at   time.Time
	text string
}

func nearestClinicalText(entries []clinicalEntry, at time.Time) string {
	var (
		best     string
		bestDiff time.Duration
		found    bool
	)
	for _, entry := range entries {
		diff := entry.at.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		// Strict less-than keeps the first row on ties.
		if !found || diff < bestDiff {
			best = entry.text
			bestDiff = diff
			found = true
		}
	}
	return best
}
