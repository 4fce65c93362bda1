package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// FindingsReader is the read path over the store. Read failures must not
// crash a dependent dashboard, so they degrade to an empty result with a
// logged error instead of propagating.
type FindingsReader struct {
	store domain.FindingsStore
	log   *logrus.Logger
}

// NewFindingsReader creates a new findings reader.
func NewFindingsReader(store domain.FindingsStore, logger *logrus.Logger) *FindingsReader {
	return &FindingsReader{store: store, log: logger}
}

// Load returns every persisted finding, or an empty slice when the store
// cannot be read.
func (r *FindingsReader) Load(ctx context.Context) []*domain.FindingRecord {
	records, err := r.store.LoadAll(ctx)
	if err != nil {
		r.log.WithError(err).Error("Failed to load findings, serving empty result")
		return []*domain.FindingRecord{}
	}
	return records
}
