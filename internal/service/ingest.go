package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// IngestService orchestrates one extraction batch: canonicalize, match, diff
// against the store, extract, derive and upsert. It is safe to invoke
// repeatedly; pairs already persisted are skipped before any oracle call.
type IngestService struct {
	source domain.ReportSource
	oracle domain.ExtractionOracle
	store  domain.FindingsStore
	log    *logrus.Logger
}

// NewIngestService creates a new ingest service.
func NewIngestService(source domain.ReportSource, oracle domain.ExtractionOracle, store domain.FindingsStore, logger *logrus.Logger) *IngestService {
	return &IngestService{
		source: source,
		oracle: oracle,
		store:  store,
		log:    logger,
	}
}

// Run pulls both report sets from the source and ingests them.
func (s *IngestService) Run(ctx context.Context) (*domain.IngestSummary, error) {
	radiology, err := s.source.RadiologyReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching radiology reports: %w", err)
	}
	clinical, err := s.source.ClinicalReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching clinical reports: %w", err)
	}
	return s.IngestReports(ctx, radiology, clinical)
}

// IngestReports runs the batch over already-fetched report sets and returns
// the batch summary. Oracle failures degrade to fallback records per pair and
// never abort the batch; store write errors are fatal.
func (s *IngestService) IngestReports(ctx context.Context, radiology, clinical []domain.ReportRecord) (*domain.IngestSummary, error) {
	summary := &domain.IngestSummary{RunID: uuid.New().String()}

	radiology, bad := canonicalizeRecords(radiology)
	summary.BadRows += bad
	clinical, bad = canonicalizeRecords(clinical)
	summary.BadRows += bad
	summary.Radiology = len(radiology)
	summary.Clinical = len(clinical)

	pairs := MatchReports(radiology, clinical)
	summary.Matched = len(pairs)

	existing, err := s.store.ExistingKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing finding keys: %w", err)
	}

	records := make([]*domain.FindingRecord, 0, len(pairs))
	for _, pair := range pairs {
		key := domain.ReportKey{PatientID: pair.PatientID, Timestamp: pair.Timestamp}
		if _, ok := existing[key]; ok {
			continue
		}
		// Two source rows canonicalizing to the same key keep the first.
		existing[key] = struct{}{}

		result, err := s.oracle.Extract(ctx, pair.RadiologyText, pair.ClinicalText)
		if err != nil {
			summary.Failures++
			s.log.WithFields(logrus.Fields{
				"run_id":     summary.RunID,
				"patient_id": pair.PatientID,
				"timestamp":  pair.Timestamp,
				"error":      err,
			}).Warn("Extraction failed, storing fallback record")
			result = domain.FallbackExtraction()
		}

		rec := &domain.FindingRecord{PatientID: pair.PatientID, Timestamp: pair.Timestamp}
		applyExtraction(rec, result)
		records = append(records, rec)
	}
	summary.NewRecords = len(records)

	inserted, err := s.store.UpsertMany(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("storing findings: %w", err)
	}
	summary.Inserted = inserted

	s.log.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"matched":  summary.Matched,
		"new":      summary.NewRecords,
		"inserted": summary.Inserted,
		"failures": summary.Failures,
		"bad_rows": summary.BadRows,
	}).Info("Ingest batch complete")

	return summary, nil
}

// canonicalizeRecords normalizes every record timestamp, dropping rows whose
// timestamps cannot be canonicalized and returning how many were dropped.
func canonicalizeRecords(records []domain.ReportRecord) ([]domain.ReportRecord, int) {
	out := records[:0]
	dropped := 0
	for _, rec := range records {
		canonical, ok := timestamp.Canonicalize(rec.Timestamp)
		if !ok {
			dropped++
			continue
		}
		rec.Timestamp = canonical
		out = append(out, rec)
	}
	return out, dropped
}
