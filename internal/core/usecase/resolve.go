package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
)

// DefaultMatchThreshold is the minimum normalized similarity a fuzzy
// candidate needs to resolve.
const DefaultMatchThreshold = 0.60

// ResolveProviderUseCase matches a document's extracted counterparty text
// and tax id candidate to one of the tenant's active providers. Precedence,
// first match wins: exact tax id, exact legal name, exact alias, then the
// best fuzzy candidate at or above the threshold.
type ResolveProviderUseCase struct {
	providers ports.ProviderRepository
	scorer    ports.Scorer
	threshold float64
}

func NewResolveProviderUseCase(providers ports.ProviderRepository, scorer ports.Scorer, threshold float64) *ResolveProviderUseCase {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	return &ResolveProviderUseCase{
		providers: providers,
		scorer:    scorer,
		threshold: threshold,
	}
}

func (uc *ResolveProviderUseCase) Resolve(ctx context.Context, tenantID, name, taxID string) (string, error) {
	candidates, err := uc.providers.ListActive(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("list active providers: %w", err)
	}
	if len(candidates) == 0 {
		return "", domain.WrapError(domain.ErrNoProviderMatch, "resolve provider",
			fmt.Errorf("tenant %s has no active providers", tenantID))
	}

	if normTax := NormalizeTaxID(taxID); normTax != "" {
		for _, p := range candidates {
			if NormalizeTaxID(p.TaxID) == normTax {
				return p.ID, nil
			}
		}
	}

	normName := normalizeName(name)
	if normName != "" {
		for _, p := range candidates {
			if normalizeName(p.LegalName) == normName {
				return p.ID, nil
			}
		}
		for _, p := range candidates {
			for _, alias := range p.Aliases {
				if normalizeName(alias) == normName {
					return p.ID, nil
				}
			}
		}

		if id, ok := uc.bestFuzzy(normName, candidates); ok {
			return id, nil
		}
	}

	return "", domain.WrapError(domain.ErrNoProviderMatch, "resolve provider",
		fmt.Errorf("no candidate reached threshold %.2f", uc.threshold))
}

// bestFuzzy scores every provider by its legal name and aliases and keeps
// the best. Ties are broken by document count, then provider id, so the
// outcome is deterministic.
func (uc *ResolveProviderUseCase) bestFuzzy(normName string, candidates []domain.Provider) (string, bool) {
	type scored struct {
		provider domain.Provider
		score    float64
	}
	best := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		score := uc.scorer.Score(normName, normalizeName(p.LegalName))
		for _, alias := range p.Aliases {
			if s := uc.scorer.Score(normName, normalizeName(alias)); s > score {
				score = s
			}
		}
		best = append(best, scored{provider: p, score: score})
	}

	sort.Slice(best, func(i, j int) bool {
		if best[i].score != best[j].score {
			return best[i].score > best[j].score
		}
		if best[i].provider.DocumentCount != best[j].provider.DocumentCount {
			return best[i].provider.DocumentCount > best[j].provider.DocumentCount
		}
		return best[i].provider.ID < best[j].provider.ID
	})

	if best[0].score >= uc.threshold {
		return best[0].provider.ID, true
	}
	return "", false
}

// NormalizeTaxID strips separators so "30-71215244-9" and "30712152449"
// compare equal.
func NormalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range taxID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastSpace := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
