package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiology-findings-pipeline/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type staticSource struct {
	radiology []domain.ReportRecord
	clinical  []domain.ReportRecord
	err       error
}

func (s *staticSource) RadiologyReports(ctx context.Context) ([]domain.ReportRecord, error) {
	return s.radiology, s.err
}

func (s *staticSource) ClinicalReports(ctx context.Context) ([]domain.ReportRecord, error) {
	return s.clinical, s.err
}

func TestIngestReports_StoresNewFindings(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{
		results: map[string]*domain.ExtractionResult{
			"mass noted": {
				CriticalFindings:   "Yes",
				IncidentalFindings: "No",
				MammogramScore:     "BIRADS 5",
				FollowUpRequired:   "Yes",
				RiskLevel:          "High",
				Summary:            "History of prior biopsy.",
			},
		},
	}
	svc := NewIngestService(nil, oracle, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01T10:00:00Z", Text: "mass noted"},
	}
	clinical := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01T09:00:00Z", Text: "prior biopsy"},
	}

	summary, err := svc.IngestReports(context.Background(), radiology, clinical)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Zero(t, summary.Failures)

	stored, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "2024-05-01 10:00:00", stored[0].Timestamp, "timestamps are canonicalized before storage")
	assert.Equal(t, domain.RiskHigh, stored[0].RiskLevel)
}

func TestIngestReports_AtMostOnce(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{}
	svc := NewIngestService(nil, oracle, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01 10:00:00", Text: "scan one"},
		{PatientID: "P2", Timestamp: "2024-05-01 11:00:00", Text: "scan two"},
	}

	first, err := svc.IngestReports(context.Background(), radiology, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 2, oracle.calls)

	second, err := svc.IngestReports(context.Background(), radiology, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted, "second run over unchanged input inserts nothing")
	assert.Equal(t, 2, oracle.calls, "no oracle call may be dispatched for an existing key")
}

func TestIngestReports_DuplicateKeyInBatchKeepsFirst(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{}
	svc := NewIngestService(nil, oracle, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01 10:00:00", Text: "first text"},
		{PatientID: "P1", Timestamp: "2024-05-01T10:00:00Z", Text: "same instant, different shape"},
	}

	summary, err := svc.IngestReports(context.Background(), radiology, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, oracle.calls)
}

func TestIngestReports_OracleFailureFallsBackAndContinues(t *testing.T) {
	store := newFakeStore()
	oracle := &fakeOracle{
		failFor: map[string]error{"broken scan": errors.New("upstream 503")},
	}
	svc := NewIngestService(nil, oracle, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01 10:00:00", Text: "broken scan"},
		{PatientID: "P2", Timestamp: "2024-05-01 11:00:00", Text: "fine scan"},
	}

	summary, err := svc.IngestReports(context.Background(), radiology, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted, "the batch continues past a failed extraction")
	assert.Equal(t, 1, summary.Failures)

	stored, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	for _, rec := range stored {
		if rec.PatientID == "P1" {
			require.NotNil(t, rec.CriticalFindings)
			assert.Equal(t, "None", *rec.CriticalFindings, "fallback sentinel is stored")
			assert.Nil(t, rec.Summary)
			assert.Equal(t, domain.RiskLow, rec.RiskLevel)
		}
	}
}

func TestIngestReports_BadTimestampsDropped(t *testing.T) {
	store := newFakeStore()
	svc := NewIngestService(nil, &fakeOracle{}, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "garbage", Text: "scan"},
		{PatientID: "P2", Timestamp: "2024-05-01 11:00:00", Text: "scan"},
	}

	summary, err := svc.IngestReports(context.Background(), radiology, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.BadRows)
}

func TestIngestReports_StoreWriteErrorIsFatal(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = true
	svc := NewIngestService(nil, &fakeOracle{}, store, testLogger())

	radiology := []domain.ReportRecord{
		{PatientID: "P1", Timestamp: "2024-05-01 10:00:00", Text: "scan"},
	}

	_, err := svc.IngestReports(context.Background(), radiology, nil)

	assert.Error(t, err)
}

func TestRun_PullsFromSource(t *testing.T) {
	store := newFakeStore()
	source := &staticSource{
		radiology: []domain.ReportRecord{
			{PatientID: "P1", Timestamp: "2024-05-01 10:00:00", Text: "scan"},
		},
	}
	svc := NewIngestService(source, &fakeOracle{}, store, testLogger())

	summary, err := svc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
}

func TestRun_SourceErrorPropagates(t *testing.T) {
	source := &staticSource{err: errors.New("connection refused")}
	svc := NewIngestService(source, &fakeOracle{}, newFakeStore(), testLogger())

	_, err := svc.Run(context.Background())

	assert.Error(t, err)
}
