package domain

import "context"

// FindingsStore is the persistence contract for finding records. Write and
// schema errors are fatal and propagate; read-path degradation is handled by
// the consuming service, not here.
type FindingsStore interface {
	// Init idempotently ensures the persisted schema exists.
	Init(ctx context.Context) error

	// UpsertMany inserts the records whose (patient_id, timestamp) key is not
	// already present, as one transaction, and returns the number inserted.
	// Existing rows are never updated by this path.
	UpsertMany(ctx context.Context, records []*FindingRecord) (int, error)

	// ExistingKeys returns the set of natural keys already persisted.
	ExistingKeys(ctx context.Context) (map[ReportKey]struct{}, error)

	// LoadAll returns every record with its report timestamp parsed.
	// Malformed rows are logged and skipped.
	LoadAll(ctx context.Context) ([]*FindingRecord, error)

	// SelectIncomplete returns records with any extracted field still null,
	// the candidates for a retry pass.
	SelectIncomplete(ctx context.Context) ([]*FindingRecord, error)

	// UpdateExtraction rewrites the extracted and derived fields of an
	// existing row, identified by its surrogate id.
	UpdateExtraction(ctx context.Context, record *FindingRecord) error

	// Reset destroys and recreates the store. Operator action only.
	Reset(ctx context.Context) error

	Close() error
}

// ExtractionOracle is the external LLM-based extraction service. Failures are
// returned as errors; callers degrade to FallbackExtraction per record.
type ExtractionOracle interface {
	Extract(ctx context.Context, radiologyText, clinicalText string) (*ExtractionResult, error)
}

// ExtractFunc adapts a bare function to the retry coordinator's injected
// extraction collaborator.
type ExtractFunc func(ctx context.Context, radiologyText, clinicalText string) (*ExtractionResult, error)

// ReportSource supplies the two logical report tables. Timestamps in the
// returned records are already canonicalized; rows whose timestamps could not
// be canonicalized are dropped at the source.
type ReportSource interface {
	RadiologyReports(ctx context.Context) ([]ReportRecord, error)
	ClinicalReports(ctx context.Context) ([]ReportRecord, error)
}

// ReportLookup fetches the report text for one (patient, timestamp) pair
// during a retry pass. A missing report yields ("", nil).
type ReportLookup func(ctx context.Context, patientID, timestamp string) (string, error)
