package source

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSource(t *testing.T) (*SQLReportSource, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewSQLReportSourceFromDB(db, "radiology_reports", "clinical_reports", logger), mock
}

func TestSQLReportSource_RadiologyReports(t *testing.T) {
	src, mock := newMockSource(t)

	rows := sqlmock.NewRows([]string{"patient_id", "report_text", "timestamp"}).
		AddRow("P001", "CT chest without contrast", time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)).
		AddRow("P002", "MRI brain", "2024-03-15T09:00:00Z")
	mock.ExpectQuery("SELECT patient_id, report_text, timestamp FROM radiology_reports").
		WillReturnRows(rows)

	records, err := src.RadiologyReports(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "P001", records[0].PatientID)
	assert.Equal(t, "2024-03-15 08:30:00", records[0].Timestamp)
	assert.Equal(t, "2024-03-15 09:00:00", records[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLReportSource_DropsUnusableTimestamps(t *testing.T) {
	src, mock := newMockSource(t)

	rows := sqlmock.NewRows([]string{"patient_id", "report_text", "timestamp"}).
		AddRow("P001", "CT chest", "not a timestamp").
		AddRow("P002", "MRI brain", "2024-03-15 09:00:00")
	mock.ExpectQuery("SELECT patient_id, report_text, timestamp FROM clinical_reports").
		WillReturnRows(rows)

	records, err := src.ClinicalReports(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "P002", records[0].PatientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLReportSource_QueryError(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT patient_id, report_text, timestamp FROM radiology_reports").
		WillReturnError(errors.New("connection refused"))

	_, err := src.RadiologyReports(context.Background())
	assert.Error(t, err)
}

func TestSQLReportSource_ReportText(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT report_text FROM radiology_reports WHERE").
		WithArgs("P001", "2024-03-15 08:30:00").
		WillReturnRows(sqlmock.NewRows([]string{"report_text"}).AddRow("CT chest"))

	text, err := src.RadiologyReportText(context.Background(), "P001", "2024-03-15 08:30:00")
	require.NoError(t, err)
	assert.Equal(t, "CT chest", text)
}

func TestSQLReportSource_ReportTextMissing(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery("SELECT report_text FROM clinical_reports WHERE").
		WithArgs("P001", "2024-03-15 08:30:00").
		WillReturnRows(sqlmock.NewRows([]string{"report_text"}))

	text, err := src.ClinicalReportText(context.Background(), "P001", "2024-03-15 08:30:00")
	require.NoError(t, err)
	assert.Equal(t, "", text, "missing report degrades to empty text")
}
