package ports

import (
	"context"

	"github.com/facturo/ingesta/internal/core/domain"
)

// FileIngestor runs the ingestion pipeline for one observed file.
type FileIngestor interface {
	Ingest(ctx context.Context, task *domain.IngestionTask) error
}

// ExtractionApplier folds extraction candidates into a document, resolves
// its provider and recomputes the estado.
type ExtractionApplier interface {
	Apply(ctx context.Context, result domain.ExtractionResult) error
}

// ProviderReassigner is the administrative bulk override: it sets the
// provider directly and re-runs the evaluator per document.
type ProviderReassigner interface {
	Reassign(ctx context.Context, tenantID, providerID string, documentIDs []string) ([]string, error)
}
