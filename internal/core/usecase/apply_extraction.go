package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
)

// Candidate field names the extraction service may emit. proveedor_nombre
// and cuit feed the resolver; the rest map onto document fields.
const (
	CandidateProviderName = "proveedor_nombre"
	CandidateCUIT         = "cuit"
)

// ApplyExtractionUseCase folds the extraction service's field candidates
// into the document: best candidate per field above the confidence floor,
// provider resolution, then a synchronous estado recompute persisted in one
// transaction.
type ApplyExtractionUseCase struct {
	repo          ports.DocumentRepository
	resolver      *ResolveProviderUseCase
	minConfidence float64
	now           func() time.Time
	onEstado      func(estado string)
}

func NewApplyExtractionUseCase(repo ports.DocumentRepository, resolver *ResolveProviderUseCase, minConfidence float64) *ApplyExtractionUseCase {
	return &ApplyExtractionUseCase{
		repo:          repo,
		resolver:      resolver,
		minConfidence: minConfidence,
		now:           time.Now,
	}
}

// OnEstadoChange registers an observer called with the estado each
// persisted recompute lands on.
func (uc *ApplyExtractionUseCase) OnEstadoChange(fn func(estado string)) {
	uc.onEstado = fn
}

func (uc *ApplyExtractionUseCase) Apply(ctx context.Context, result domain.ExtractionResult) error {
	doc, err := uc.repo.GetByID(ctx, result.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", result.DocumentID, err)
	}
	if doc.Estado == domain.EstadoDuplicado {
		slog.Warn("extraction_for_duplicate_ignored", "document_id", doc.ID)
		return nil
	}

	fields := bestCandidates(result.Candidates, uc.minConfidence)
	uc.applyFields(doc, fields)

	if doc.ProviderID == nil {
		name := fields[CandidateProviderName]
		taxID := fields[CandidateCUIT]
		if name != "" || taxID != "" {
			providerID, err := uc.resolver.Resolve(ctx, doc.TenantID, name, taxID)
			switch {
			case err == nil:
				doc.ProviderID = &providerID
			case domain.IsKind(err, domain.ErrNoProviderMatch):
				slog.Info("provider_unresolved",
					"document_id", doc.ID,
					"tenant_id", doc.TenantID,
					"name", name,
				)
			default:
				return fmt.Errorf("resolve provider: %w", err)
			}
		}
	}

	doc.Estado, doc.Missing = domain.Evaluate(doc)
	doc.UpdatedAt = uc.now().UTC()

	if err := uc.repo.ApplyFields(ctx, doc); err != nil {
		return fmt.Errorf("persist extracted fields: %w", err)
	}
	if uc.onEstado != nil {
		uc.onEstado(string(doc.Estado))
	}

	slog.Info("extraction_applied",
		"document_id", doc.ID,
		"estado", string(doc.Estado),
		"missing", doc.Missing,
	)
	return nil
}

// bestCandidates keeps the highest-confidence value per field, dropping
// anything below the floor.
func bestCandidates(candidates []domain.FieldCandidate, minConfidence float64) map[string]string {
	type pick struct {
		value      string
		confidence float64
	}
	picks := make(map[string]pick, len(candidates))
	for _, c := range candidates {
		if c.Confidence < minConfidence || strings.TrimSpace(c.Value) == "" {
			continue
		}
		if prev, ok := picks[c.Field]; ok && prev.confidence >= c.Confidence {
			continue
		}
		picks[c.Field] = pick{value: strings.TrimSpace(c.Value), confidence: c.Confidence}
	}

	out := make(map[string]string, len(picks))
	for field, p := range picks {
		out[field] = p.value
	}
	return out
}

func (uc *ApplyExtractionUseCase) applyFields(doc *domain.Document, fields map[string]string) {
	if v, ok := fields[domain.FieldFecha]; ok {
		if parsed, err := parseIssueDate(v); err == nil {
			doc.IssueDate = &parsed
		} else {
			slog.Warn("unparseable_issue_date", "document_id", doc.ID, "value", v)
		}
	}
	if v, ok := fields[domain.FieldLetra]; ok {
		letra := strings.ToUpper(v)
		doc.Letra = &letra
	}
	if v, ok := fields[domain.FieldNumero]; ok {
		numero := v
		doc.Numero = &numero
	}
	for field, target := range map[string]**int64{
		domain.FieldTotal:    &doc.Total,
		domain.FieldSubtotal: &doc.Subtotal,
		domain.FieldIVA:      &doc.IVA,
	} {
		if v, ok := fields[field]; ok {
			if cents, err := parseAmountCents(v); err == nil {
				*target = &cents
			} else {
				slog.Warn("unparseable_amount", "document_id", doc.ID, "field", field, "value", v)
			}
		}
	}
}

func parseIssueDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2006-01-02T15:04:05Z07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// parseAmountCents accepts "1234.56", "1234,56" and plain integers,
// returning cents.
func parseAmountCents(value string) (int64, error) {
	v := strings.TrimSpace(value)
	v = strings.ReplaceAll(v, ",", ".")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return int64(math.Round(f * 100)), nil
}
