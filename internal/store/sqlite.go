package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/radiology-findings-pipeline/internal/domain"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore implements the findings store on an embedded SQLite database.
// The schema is versioned with embedded migrations.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteStore opens (creating if necessary) the SQLite findings database
// at dbPath and ensures the schema is current.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the batch writer and readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath, log: logger}
	if err := s.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init applies any pending schema migrations. Safe to call repeatedly.
func (s *SQLiteStore) Init(ctx context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrating findings schema: %w", err)
	}
	return nil
}

// migrator builds a fresh migrate instance over the embedded migration files
// and the live connection. Instances are single-use: Drop invalidates the
// driver's version table, so Reset builds a new one afterwards.
func (s *SQLiteStore) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// UpsertMany inserts the records not already present by (patient_id,
// timestamp), all within one transaction, and returns the count inserted.
// Existing rows are never touched by this path.
func (s *SQLiteStore) UpsertMany(ctx context.Context, records []*domain.FindingRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, rec := range records {
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM findings WHERE patient_id = ? AND timestamp = ?",
			rec.PatientID, rec.Timestamp,
		).Scan(&one)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return 0, fmt.Errorf("checking existing finding: %w", err)
		}

		now := time.Now().UTC()
		rec.CreatedAt = now
		rec.UpdatedAt = now

		result, err := tx.ExecContext(ctx, `
			INSERT INTO findings (
				patient_id, timestamp,
				critical_findings, incidental_findings, mammogram_score, follow_up,
				summary, critical_findings_text, incidental_findings_text,
				scan_type, radiologist_name, exam_date_ai, risk_level_ai,
				risk_level, critical_finding_response_time_minutes, ai_report_timestamp,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.PatientID, rec.Timestamp,
			toNullString(rec.CriticalFindings), toNullString(rec.IncidentalFindings),
			toNullString(rec.MammogramScore), toNullString(rec.FollowUp),
			toNullString(rec.Summary), toNullString(rec.CriticalFindingsText),
			toNullString(rec.IncidentalFindingsText),
			toNullString(rec.ScanType), toNullString(rec.RadiologistName),
			toNullString(rec.ExamDateAI), toNullString(rec.RiskLevelAI),
			string(rec.RiskLevel), toNullInt64(rec.ResponseTimeMinutes),
			toNullString(rec.AIReportTimestamp),
			now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting finding: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			rec.ID = id
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert transaction: %w", err)
	}
	return inserted, nil
}

// ExistingKeys returns every persisted (patient_id, timestamp) key.
func (s *SQLiteStore) ExistingKeys(ctx context.Context) (map[domain.ReportKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT patient_id, timestamp FROM findings")
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

// LoadAll returns every finding with its report timestamp parsed. Rows that
// fail to scan are logged and skipped so that one malformed row cannot take
// down the read path.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*domain.FindingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStore) SelectIncomplete(ctx context.Context) ([]*domain.FindingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStore) UpdateExtraction(ctx context.Context, rec *domain.FindingRecord) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE findings SET
			critical_findings = ?,
			incidental_findings = ?,
			mammogram_score = ?,
			follow_up = ?,
			summary = ?,
			critical_findings_text = ?,
			incidental_findings_text = ?,
			scan_type = ?,
			radiologist_name = ?,
			exam_date_ai = ?,
			risk_level_ai = ?,
			risk_level = ?,
			critical_finding_response_time_minutes = ?,
			ai_report_timestamp = ?,
			updated_at = ?
		WHERE id = ?
	`,
		toNullString(rec.CriticalFindings), toNullString(rec.IncidentalFindings),
		toNullString(rec.MammogramScore), toNullString(rec.FollowUp),
		toNullString(rec.Summary), toNullString(rec.CriticalFindingsText),
		toNullString(rec.IncidentalFindingsText),
		toNullString(rec.ScanType), toNullString(rec.RadiologistName),
		toNullString(rec.ExamDateAI), toNullString(rec.RiskLevelAI),
		string(rec.RiskLevel), toNullInt64(rec.ResponseTimeMinutes),
		toNullString(rec.AIReportTimestamp),
		now, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating finding %d: %w", rec.ID, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("finding %d: %w", rec.ID, domain.ErrNotFound)
	}
	rec.UpdatedAt = now
	return nil
}

// Reset destroys the schema and recreates it. Operator action only.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Drop(); err != nil {
		return fmt.Errorf("dropping findings schema: %w", err)
	}
	s.log.WithField("path", s.dbPath).Warn("Findings store reset")
	return s.Init(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
