package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/facturo/ingesta/internal/core/domain"
)

type ProviderRepository struct {
	db *sql.DB
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `
p.id, p.tenant_id, p.legal_name, p.tax_id, p.aliases, p.active, p.created_at,
(SELECT COUNT(*) FROM documents d WHERE d.provider_id = p.id) AS document_count
`

func (r *ProviderRepository) ListActive(ctx context.Context, tenantID string) ([]domain.Provider, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+providerColumns+`
FROM providers p
WHERE p.tenant_id = $1 AND p.active = TRUE
ORDER BY p.id
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

func (r *ProviderRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Provider, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+providerColumns+`
FROM providers p
WHERE p.tenant_id = $1 AND p.id = $2
`, tenantID, id)
	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrProviderNotFound, "get provider",
				fmt.Errorf("tenant=%s id=%s", tenantID, id))
		}
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return p, nil
}

func scanProvider(row rowScanner) (*domain.Provider, error) {
	var p domain.Provider
	var aliasesRaw []byte

	err := row.Scan(&p.ID, &p.TenantID, &p.LegalName, &p.TaxID, &aliasesRaw,
		&p.Active, &p.CreatedAt, &p.DocumentCount)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(aliasesRaw, &p.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshal aliases: %w", err)
	}
	return &p, nil
}
