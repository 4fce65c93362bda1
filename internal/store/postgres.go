package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/radiology-findings-pipeline/internal/database"
	"github.com/radiology-findings-pipeline/internal/domain"
)

// PostgresStore implements the findings store on a shared PostgreSQL
// database. The schema is managed out-of-band by the migrate subcommand
// (database.MigrationRunner); Init only verifies it is present.
type PostgresStore struct {
	db  *database.DB
	log *logrus.Logger
}

// NewPostgresStore wraps an established connection pool and verifies the
// findings schema exists.
func NewPostgresStore(ctx context.Context, db *database.DB, logger *logrus.Logger) (*PostgresStore, error) {
	s := &PostgresStore{db: db, log: logger}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init verifies that the findings table exists. It does not apply
// migrations; run the migrate subcommand first.
func (s *PostgresStore) Init(ctx context.Context) error {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'findings')",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking findings schema: %w", err)
	}
	if !exists {
		return fmt.Errorf("findings table missing, run migrations: %w", domain.ErrSchemaMissing)
	}
	return nil
}

// UpsertMany inserts the records not already present by (patient_id,
// timestamp) within one transaction and returns the count inserted.
func (s *PostgresStore) UpsertMany(ctx context.Context, records []*domain.FindingRecord) (int, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, rec := range records {
		var one int
		err := tx.QueryRow(ctx,
			"SELECT 1 FROM findings WHERE patient_id = $1 AND timestamp = $2",
			rec.PatientID, rec.Timestamp,
		).Scan(&one)
		if err == nil {
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("checking existing finding: %w", err)
		}

		now := time.Now().UTC()
		rec.CreatedAt = now
		rec.UpdatedAt = now

		err = tx.QueryRow(ctx, `
			INSERT INTO findings (
				patient_id, timestamp,
				critical_findings, incidental_findings, mammogram_score, follow_up,
				summary, critical_findings_text, incidental_findings_text,
				scan_type, radiologist_name, exam_date_ai, risk_level_ai,
				risk_level, critical_finding_response_time_minutes, ai_report_timestamp,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id
		`,
			rec.PatientID, rec.Timestamp,
			rec.CriticalFindings, rec.IncidentalFindings,
			rec.MammogramScore, rec.FollowUp,
			rec.Summary, rec.CriticalFindingsText, rec.IncidentalFindingsText,
			rec.ScanType, rec.RadiologistName, rec.ExamDateAI, rec.RiskLevelAI,
			string(rec.RiskLevel), rec.ResponseTimeMinutes, rec.AIReportTimestamp,
			now, now,
		).Scan(&rec.ID)
		if err != nil {
			return 0, fmt.Errorf("inserting finding: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing upsert transaction: %w", err)
	}
	return inserted, nil
}

// ExistingKeys returns every persisted (patient_id, timestamp) key.
func (s *PostgresStore) ExistingKeys(ctx context.Context) (map[domain.ReportKey]struct{}, error) {
	rows, err := s.db.Pool.Query(ctx, "SELECT patient_id, timestamp FROM findings")
	if err != nil {
		return nil, fmt.Errorf("querying finding keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.ReportKey]struct{})
	for rows.Next() {
		var key domain.ReportKey
		if err := rows.Scan(&key.PatientID, &key.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning finding key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// LoadAll returns every finding, skipping rows that fail to scan.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]*domain.FindingRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		"SELECT "+findingColumns+" FROM findings ORDER BY timestamp DESC")
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	var records []*domain.FindingRecord
	for rows.Next() {
		rec, err := scanFinding(rows)
		if err != nil {
			s.log.WithError(err).Warn("Skipping malformed finding row")
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SelectIncomplete returns records with any extracted field still null.
func (s *PostgresStore) SelectIncomplete(ctx context.Context) ([]*domain.FindingRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		"SELECT "+findingColumns+" FROM findings WHERE "+incompleteWhere)
	if err != nil {
		return nil, fmt.Errorf("querying incomplete findings: %w", err)
	}
	defer rows.Close()

	var records []*domain.FindingRecord
	for rows.Next() {
		rec, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning finding row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateExtraction rewrites the extracted and derived fields of an existing
// row by surrogate id.
func (s *PostgresStore) UpdateExtraction(ctx context.Context, rec *domain.FindingRecord) error {
	now := time.Now().UTC()
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE findings SET
			critical_findings = $1,
			incidental_findings = $2,
			mammogram_score = $3,
			follow_up = $4,
			summary = $5,
			critical_findings_text = $6,
			incidental_findings_text = $7,
			scan_type = $8,
			radiologist_name = $9,
			exam_date_ai = $10,
			risk_level_ai = $11,
			risk_level = $12,
			critical_finding_response_time_minutes = $13,
			ai_report_timestamp = $14,
			updated_at = $15
		WHERE id = $16
	`,
		rec.CriticalFindings, rec.IncidentalFindings,
		rec.MammogramScore, rec.FollowUp,
		rec.Summary, rec.CriticalFindingsText, rec.IncidentalFindingsText,
		rec.ScanType, rec.RadiologistName, rec.ExamDateAI, rec.RiskLevelAI,
		string(rec.RiskLevel), rec.ResponseTimeMinutes, rec.AIReportTimestamp,
		now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating finding %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finding %d: %w", rec.ID, domain.ErrNotFound)
	}
	rec.UpdatedAt = now
	return nil
}

// Reset clears all findings and restarts the surrogate id sequence. The
// schema itself stays in place.
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.db.Pool.Exec(ctx, "TRUNCATE findings RESTART IDENTITY"); err != nil {
		return fmt.Errorf("resetting findings: %w", err)
	}
	s.log.Warn("Findings store reset")
	return nil
}

// Close is a no-op; the connection pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}
