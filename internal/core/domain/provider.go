package domain

import "time"

// Provider is a tenant-scoped counterparty a document can be attributed to.
// The ingestion pipeline only ever reads providers; they are created and
// edited by the administrative surface.
type Provider struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	LegalName     string    `json:"legal_name"`
	TaxID         string    `json:"tax_id"`
	Aliases       []string  `json:"aliases"`
	Active        bool      `json:"active"`
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
}
