package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// RetryCoordinator re-runs extraction for stored records whose extracted
// fields are incomplete, re-fetching source text through injected lookups.
// It updates rows in place by surrogate id, never by the natural key.
type RetryCoordinator struct {
	store        domain.FindingsStore
	extract      domain.ExtractFunc
	getRadiology domain.ReportLookup
	getClinical  domain.ReportLookup
	log          *logrus.Logger
}

// NewRetryCoordinator creates a new retry coordinator.
func NewRetryCoordinator(store domain.FindingsStore, extract domain.ExtractFunc, getRadiology, getClinical domain.ReportLookup, logger *logrus.Logger) *RetryCoordinator {
	return &RetryCoordinator{
		store:        store,
		extract:      extract,
		getRadiology: getRadiology,
		getClinical:  getClinical,
		log:          logger,
	}
}

// Retry selects every incomplete record, re-extracts and recomputes its
// derived fields, and returns the number of rows updated. Records whose
// radiology text cannot be found are skipped and not counted; a failed
// re-extraction leaves the row untouched for a later pass. Store write
// errors abort the pass.
func (r *RetryCoordinator) Retry(ctx context.Context) (int, error) {
	incomplete, err := r.store.SelectIncomplete(ctx)
	if err != nil {
		return 0, fmt.Errorf("selecting incomplete findings: %w", err)
	}

	updated, skipped := 0, 0
	for _, rec := range incomplete {
		entry := r.log.WithFields(logrus.Fields{
			"id":         rec.ID,
			"patient_id": rec.PatientID,
			"timestamp":  rec.Timestamp,
		})

		radiologyText, err := r.getRadiology(ctx, rec.PatientID, rec.Timestamp)
		if err != nil || radiologyText == "" {
			skipped++
			entry.Warn("Skipping retry, radiology report text unavailable")
			continue
		}

		clinicalText, err := r.getClinical(ctx, rec.PatientID, rec.Timestamp)
		if err != nil {
			clinicalText = ""
		}

		result, err := r.extract(ctx, radiologyText, clinicalText)
		if err != nil {
			skipped++
			entry.WithError(err).Warn("Re-extraction failed, leaving record for a later pass")
			continue
		}

		applyExtraction(rec, result)
		if err := r.store.UpdateExtraction(ctx, rec); err != nil {
			return updated, fmt.Errorf("updating finding %d: %w", rec.ID, err)
		}
		updated++
	}

	r.log.WithFields(logrus.Fields{
		"selected": len(incomplete),
		"updated":  updated,
		"skipped":  skipped,
	}).Info("Retry pass complete")

	return updated, nil
}
