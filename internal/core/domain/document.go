package domain

import "time"

type ReviewState string

const (
	EstadoPendiente  ReviewState = "PENDIENTE"
	EstadoConfirmado ReviewState = "CONFIRMADO"
	EstadoError      ReviewState = "ERROR"
	EstadoDuplicado  ReviewState = "DUPLICADO"
)

// Field names reported in a document's missing-fields list.
const (
	FieldTenant    = "tenant"
	FieldProveedor = "proveedor"
	FieldFecha     = "fecha_emision"
	FieldTotal     = "total"
	FieldLetra     = "letra"
	FieldNumero    = "numero_completo"
	FieldSubtotal  = "subtotal"
	FieldIVA       = "iva"
)

// Document is one ingested file after its content has been durably stored.
// Monetary amounts are in cents. Nil pointers mean the field has not been
// extracted or entered yet.
type Document struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	Filename    string      `json:"filename"`
	StorageKey  string      `json:"storage_key"`
	Fingerprint string      `json:"fingerprint"`
	ProviderID  *string     `json:"provider_id,omitempty"`
	IssueDate   *time.Time  `json:"issue_date,omitempty"`
	Total       *int64      `json:"total,omitempty"`
	Letra       *string     `json:"letra,omitempty"`
	Numero      *string     `json:"numero,omitempty"`
	Subtotal    *int64      `json:"subtotal,omitempty"`
	IVA         *int64      `json:"iva,omitempty"`
	Estado      ReviewState `json:"estado"`
	Missing     []string    `json:"missing_fields"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// FieldCandidate is one value proposed by the extraction service for a
// named field, with its confidence score in [0,1].
type FieldCandidate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the payload the extraction service publishes once it
// has analyzed a stored document.
type ExtractionResult struct {
	DocumentID string           `json:"document_id"`
	StorageKey string           `json:"storage_key"`
	Candidates []FieldCandidate `json:"candidates"`
}

// StoredEvent is published after a document's content reaches object
// storage; it triggers extraction.
type StoredEvent struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	StorageKey string `json:"storage_key"`
}
