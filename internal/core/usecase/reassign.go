package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
)

// ReassignProviderUseCase is the administrative bulk override. It bypasses
// resolution precedence, sets the provider directly and re-runs the
// evaluator per document; the repository persists the provider and the
// recomputed estado in one transaction.
type ReassignProviderUseCase struct {
	docs      ports.DocumentRepository
	providers ports.ProviderRepository
	now       func() time.Time
}

func NewReassignProviderUseCase(docs ports.DocumentRepository, providers ports.ProviderRepository) *ReassignProviderUseCase {
	return &ReassignProviderUseCase{
		docs:      docs,
		providers: providers,
		now:       time.Now,
	}
}

func (uc *ReassignProviderUseCase) Reassign(ctx context.Context, tenantID, providerID string, documentIDs []string) ([]string, error) {
	if len(documentIDs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "bulk reassign",
			fmt.Errorf("no document ids"))
	}
	provider, err := uc.providers.GetByID(ctx, tenantID, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider %s: %w", providerID, err)
	}

	updated := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, err := uc.docs.GetByID(ctx, id)
		if err != nil {
			return updated, fmt.Errorf("load document %s: %w", id, err)
		}
		if doc.TenantID != tenantID {
			return updated, domain.WrapError(domain.ErrInvalidInput, "bulk reassign",
				fmt.Errorf("document %s belongs to another tenant", id))
		}
		if doc.Estado == domain.EstadoDuplicado {
			continue
		}

		doc.ProviderID = &provider.ID
		estado, missing := domain.Evaluate(doc)
		if err := uc.docs.ReassignProvider(ctx, doc.ID, doc.ProviderID, estado, missing); err != nil {
			return updated, fmt.Errorf("reassign document %s: %w", id, err)
		}
		updated = append(updated, doc.ID)
	}

	slog.Info("bulk_reassign",
		"tenant_id", tenantID,
		"provider_id", provider.ID,
		"documents", len(updated),
	)
	return updated, nil
}
