// Package source reads radiology and clinical reports from the upstream
// PostgreSQL reporting database. The source is read-only; findings are
// persisted separately by the store.
package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// SQLReportSource supplies report rows from two configured tables. Row
// timestamps are canonicalized on read; rows whose timestamps cannot be
// canonicalized are logged and dropped.
type SQLReportSource struct {
	db             *sql.DB
	radiologyTable string
	clinicalTable  string
	log            *logrus.Logger
}

// NewSQLReportSource opens a connection pool against the reporting database
// and verifies it with a ping.
func NewSQLReportSource(cfg domain.SourceConfig, logger *logrus.Logger) (*SQLReportSource, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening report source: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging report source: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":            cfg.Host,
		"database":        cfg.Database,
		"radiology_table": cfg.RadiologyTable,
		"clinical_table":  cfg.ClinicalTable,
	}).Info("Report source connected")

	return &SQLReportSource{
		db:             db,
		radiologyTable: cfg.RadiologyTable,
		clinicalTable:  cfg.ClinicalTable,
		log:            logger,
	}, nil
}

// NewSQLReportSourceFromDB wraps an existing connection, used by tests.
func NewSQLReportSourceFromDB(db *sql.DB, radiologyTable, clinicalTable string, logger *logrus.Logger) *SQLReportSource {
	return &SQLReportSource{
		db:             db,
		radiologyTable: radiologyTable,
		clinicalTable:  clinicalTable,
		log:            logger,
	}
}

// RadiologyReports returns all radiology reports with canonical timestamps.
func (s *SQLReportSource) RadiologyReports(ctx context.Context) ([]domain.ReportRecord, error) {
	return s.fetchReports(ctx, s.radiologyTable)
}

// ClinicalReports returns all clinical reports with canonical timestamps.
func (s *SQLReportSource) ClinicalReports(ctx context.Context) ([]domain.ReportRecord, error) {
	return s.fetchReports(ctx, s.clinicalTable)
}

func (s *SQLReportSource) fetchReports(ctx context.Context, table string) ([]domain.ReportRecord, error) {
	query := fmt.Sprintf("SELECT patient_id, report_text, timestamp FROM %s", table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var records []domain.ReportRecord
	dropped := 0
	for rows.Next() {
		var (
			rec domain.ReportRecord
			ts  interface{}
		)
		if err := rows.Scan(&rec.PatientID, &rec.Text, &ts); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}

		canonical, ok := timestamp.Canonicalize(ts)
		if !ok {
			dropped++
			continue
		}
		rec.Timestamp = canonical
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", table, err)
	}

	if dropped > 0 {
		s.log.WithFields(logrus.Fields{
			"table":   table,
			"dropped": dropped,
		}).Warn("Dropped report rows with unusable timestamps")
	}
	return records, nil
}

// RadiologyReportText fetches one radiology report for a retry pass. A
// missing report yields ("", nil).
func (s *SQLReportSource) RadiologyReportText(ctx context.Context, patientID, ts string) (string, error) {
	return s.reportText(ctx, s.radiologyTable, patientID, ts)
}

// ClinicalReportText fetches one clinical report for a retry pass.
func (s *SQLReportSource) ClinicalReportText(ctx context.Context, patientID, ts string) (string, error) {
	return s.reportText(ctx, s.clinicalTable, patientID, ts)
}

func (s *SQLReportSource) reportText(ctx context.Context, table, patientID, ts string) (string, error) {
	query := fmt.Sprintf(
		"SELECT report_text FROM %s WHERE patient_id = $1 AND timestamp = $2", table)

	var text string
	err := s.db.QueryRowContext(ctx, query, patientID, ts).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetching report from %s: %w", table, err)
	}
	return text, nil
}

// Close closes the underlying connection pool.
func (s *SQLReportSource) Close() error {
	return s.db.Close()
}
