package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/facturo/ingesta/internal/core/domain"
)

func activeProviders() []domain.Provider {
	return []domain.Provider{
		{ID: "prov-1", TenantID: "weiss", LegalName: "Aceros Weiss S.A.", TaxID: "30-71215244-9",
			Aliases: []string{"weiss", "aceros weiss"}, Active: true, DocumentCount: 40},
		{ID: "prov-2", TenantID: "weiss", LegalName: "Distribuidora Norte SRL", TaxID: "30-78765432-1",
			Aliases: []string{"dist norte"}, Active: true, DocumentCount: 12},
	}
}

func newResolveFixture(scorer *stubScorer) *ResolveProviderUseCase {
	return NewResolveProviderUseCase(&fakeProviderRepo{providers: activeProviders()}, scorer, 0.60)
}

func TestResolveExactTaxIDBeatsEverything(t *testing.T) {
	// Scorer would pick prov-2, but the tax id names prov-1.
	uc := newResolveFixture(&stubScorer{defaultScore: 0.99})

	id, err := uc.Resolve(context.Background(), "weiss", "distribuidora norte srl", "30712152449")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-1" {
		t.Errorf("id = %s, want prov-1 via tax id", id)
	}
}

func TestResolveTaxIDIgnoresSeparators(t *testing.T) {
	uc := newResolveFixture(&stubScorer{})

	id, err := uc.Resolve(context.Background(), "weiss", "", "30.71215244.9")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-1" {
		t.Errorf("id = %s, want prov-1", id)
	}
}

func TestResolveExactLegalName(t *testing.T) {
	uc := newResolveFixture(&stubScorer{})

	id, err := uc.Resolve(context.Background(), "weiss", "ACEROS WEISS S.A.", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-1" {
		t.Errorf("id = %s, want prov-1", id)
	}
}

func TestResolveAlias(t *testing.T) {
	uc := newResolveFixture(&stubScorer{})

	id, err := uc.Resolve(context.Background(), "weiss", "Dist Norte", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-2" {
		t.Errorf("id = %s, want prov-2 via alias", id)
	}
}

func TestResolveFuzzyThresholdIsInclusive(t *testing.T) {
	below := &stubScorer{defaultScore: 0.59}
	at := &stubScorer{defaultScore: 0.60}

	if _, err := newResolveFixture(below).Resolve(context.Background(), "weiss", "acero weis", ""); !errors.Is(err, domain.ErrNoProviderMatch) {
		t.Fatalf("0.59 must not resolve, got %v", err)
	}
	if _, err := newResolveFixture(at).Resolve(context.Background(), "weiss", "acero weis", ""); err != nil {
		t.Fatalf("0.60 must resolve, got %v", err)
	}
}

func TestResolveFuzzyTieBrokenByDocumentCount(t *testing.T) {
	// Both providers score identically; prov-1 has more documents.
	uc := newResolveFixture(&stubScorer{defaultScore: 0.80})

	id, err := uc.Resolve(context.Background(), "weiss", "algo ambiguo", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-1" {
		t.Errorf("id = %s, want prov-1 (more documents)", id)
	}
}

func TestResolveFuzzyTieBrokenByIDWhenCountsEqual(t *testing.T) {
	providers := activeProviders()
	providers[0].DocumentCount = 12
	uc := NewResolveProviderUseCase(&fakeProviderRepo{providers: providers}, &stubScorer{defaultScore: 0.80}, 0.60)

	id, err := uc.Resolve(context.Background(), "weiss", "algo ambiguo", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "prov-1" {
		t.Errorf("id = %s, want prov-1 (lower id)", id)
	}
}

func TestResolveNoActiveProviders(t *testing.T) {
	uc := NewResolveProviderUseCase(&fakeProviderRepo{}, &stubScorer{defaultScore: 1.0}, 0.60)

	_, err := uc.Resolve(context.Background(), "empty", "anything", "123")
	if !errors.Is(err, domain.ErrNoProviderMatch) {
		t.Fatalf("expected ErrNoProviderMatch, got %v", err)
	}
}

func TestNormalizeTaxID(t *testing.T) {
	cases := map[string]string{
		"30-71215244-9": "30712152449",
		"30.71215244.9": "30712152449",
		" 30712152449 ": "30712152449",
		"":              "",
		"sin cuit":      "",
	}
	for in, want := range cases {
		if got := NormalizeTaxID(in); got != want {
			t.Errorf("NormalizeTaxID(%q) = %q, want %q", in, got, want)
		}
	}
}
