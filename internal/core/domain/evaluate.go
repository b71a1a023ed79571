package domain

import "strings"

// Evaluate computes a document's review state from its current field set.
// Critical fields: tenant, provider, issue date, total. Secondary fields:
// letra, numero, subtotal, iva. All eight present yields CONFIRMADO,
// anything else PENDIENTE. Both tiers are always checked so the missing
// list is complete even when a critical field is already absent.
//
// The stored estado is a cache of this function. It must be recomputed in
// the same operation that changes any relevant field, never trusted across
// an update. Evaluate never yields ERROR or DUPLICADO; those are assigned
// by the ingestion paths that detect dead-letters and fingerprint
// collisions.
func Evaluate(doc *Document) (ReviewState, []string) {
	missing := make([]string, 0, 8)

	if strings.TrimSpace(doc.TenantID) == "" {
		missing = append(missing, FieldTenant)
	}
	if !presentString(doc.ProviderID) {
		missing = append(missing, FieldProveedor)
	}
	if doc.IssueDate == nil || doc.IssueDate.IsZero() {
		missing = append(missing, FieldFecha)
	}
	if doc.Total == nil {
		missing = append(missing, FieldTotal)
	}

	if !presentString(doc.Letra) {
		missing = append(missing, FieldLetra)
	}
	if !presentString(doc.Numero) {
		missing = append(missing, FieldNumero)
	}
	if doc.Subtotal == nil {
		missing = append(missing, FieldSubtotal)
	}
	if doc.IVA == nil {
		missing = append(missing, FieldIVA)
	}

	if len(missing) == 0 {
		return EstadoConfirmado, missing
	}
	return EstadoPendiente, missing
}

func presentString(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
