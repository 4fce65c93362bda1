package service

import (
	"context"
	"errors"

	"github.com/radiology-findings-pipeline/internal/domain"
	"github.com/radiology-findings-pipeline/pkg/timestamp"
)

// fakeStore is an in-memory FindingsStore for orchestrator and retry tests.
type fakeStore struct {
	records []*domain.FindingRecord
	nextID  int64

	failLoad   bool
	failUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }

func (f *fakeStore) UpsertMany(ctx context.Context, records []*domain.FindingRecord) (int, error) {
	if f.failUpsert {
		return 0, errors.New("disk full")
	}
	inserted := 0
	for _, rec := range records {
		if f.find(rec.Key()) != nil {
			continue
		}
		clone := *rec
		clone.ID = f.nextID
		f.nextID++
		f.records = append(f.records, &clone)
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) ExistingKeys(ctx context.Context) (map[domain.ReportKey]struct{}, error) {
	keys := make(map[domain.ReportKey]struct{}, len(f.records))
	for _, rec := range f.records {
		keys[rec.Key()] = struct{}{}
	}
	return keys, nil
}

func (f *fakeStore) LoadAll(ctx context.Context) ([]*domain.FindingRecord, error) {
	if f.failLoad {
		return nil, errors.New("database is locked")
	}
	out := make([]*domain.FindingRecord, len(f.records))
	for i, rec := range f.records {
		clone := *rec
		clone.ReportTime, _ = timestamp.ParseCanonical(rec.Timestamp)
		out[i] = &clone
	}
	return out, nil
}

func (f *fakeStore) SelectIncomplete(ctx context.Context) ([]*domain.FindingRecord, error) {
	var out []*domain.FindingRecord
	for _, rec := range f.records {
		if rec.CriticalFindings == nil || rec.IncidentalFindings == nil || rec.MammogramScore == nil ||
			rec.FollowUp == nil || rec.Summary == nil || rec.CriticalFindingsText == nil ||
			rec.IncidentalFindingsText == nil || rec.ScanType == nil || rec.RadiologistName == nil ||
			rec.ExamDateAI == nil {
			clone := *rec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateExtraction(ctx context.Context, record *domain.FindingRecord) error {
	for i, rec := range f.records {
		if rec.ID == record.ID {
			clone := *record
			f.records[i] = &clone
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) Reset(ctx context.Context) error {
	f.records = nil
	f.nextID = 1
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) find(key domain.ReportKey) *domain.FindingRecord {
	for _, rec := range f.records {
		if rec.Key() == key {
			return rec
		}
	}
	return nil
}

// fakeOracle returns canned results or errors per call.
type fakeOracle struct {
	calls   int
	results map[string]*domain.ExtractionResult // keyed by radiology text
	err     error
	failFor map[string]error // per-report failures
}

func (f *fakeOracle) Extract(ctx context.Context, radiologyText, clinicalText string) (*domain.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.failFor[radiologyText]; ok {
		return nil, err
	}
	if res, ok := f.results[radiologyText]; ok {
		clone := *res
		return &clone, nil
	}
	res := &domain.ExtractionResult{}
	res.Normalize()
	res.Summary = "routine study"
	return res, nil
}
