package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
)

type fakeWaiter struct {
	err   error
	waits int
}

func (f *fakeWaiter) WaitStable(ctx context.Context, path string) error {
	f.waits++
	return f.err
}

type fakeFingerprinter struct {
	fp  string
	err error
}

func (f *fakeFingerprinter) File(ctx context.Context, path string) (string, error) {
	return f.fp, f.err
}

type fakeTenantResolver struct {
	tenants map[string]domain.Tenant
}

func (f *fakeTenantResolver) Resolve(prefix string) (domain.Tenant, bool) {
	t, ok := f.tenants[prefix]
	return t, ok
}

func (f *fakeTenantResolver) Reload() error { return nil }

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

// Put mimics the conditional write of the real backend: an existing
// object under the key is never overwritten.
func (f *fakeStorage) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.objects[key]; taken {
		return domain.WrapError(domain.ErrKeyConflict, "fake put",
			errors.New("object exists"))
	}
	f.objects[key] = b
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

// fakeDocumentRepo enforces the (tenant, fingerprint) claim in memory the
// way the postgres repository does with its unique key.
type fakeDocumentRepo struct {
	mu      sync.Mutex
	docs    map[string]*domain.Document
	claims  map[string]string
	keys    map[string]bool
	markers []*domain.Document

	claimErr error
	getErr   error
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{
		docs:   make(map[string]*domain.Document),
		claims: make(map[string]string),
		keys:   make(map[string]bool),
	}
}

func claimKey(tenantID, fp string) string { return tenantID + "|" + fp }

func (f *fakeDocumentRepo) ClaimAndCreate(ctx context.Context, doc *domain.Document) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ck := claimKey(doc.TenantID, doc.Fingerprint)
	if _, taken := f.claims[ck]; taken {
		return domain.WrapError(domain.ErrDuplicate, "claim fingerprint",
			domain.ErrDuplicate)
	}
	f.claims[ck] = doc.ID
	copied := *doc
	f.docs[doc.ID] = &copied
	f.keys[doc.TenantID+"|"+doc.StorageKey] = true
	return nil
}

func (f *fakeDocumentRepo) CreateDuplicateMarker(ctx context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	f.markers = append(f.markers, &copied)
	return nil
}

func (f *fakeDocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", domain.ErrDocumentNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentRepo) FindByFingerprint(ctx context.Context, tenantID, fp string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.claims[claimKey(tenantID, fp)]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "find by fingerprint", domain.ErrDocumentNotFound)
	}
	copied := *f.docs[id]
	return &copied, nil
}

func (f *fakeDocumentRepo) KeyExists(ctx context.Context, tenantID, storageKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[tenantID+"|"+storageKey], nil
}

func (f *fakeDocumentRepo) ApplyFields(ctx context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocumentRepo) ReassignProvider(ctx context.Context, id string, providerID *string, estado domain.ReviewState, missing []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", domain.ErrDocumentNotFound)
	}
	doc.ProviderID = providerID
	doc.Estado = estado
	doc.Missing = missing
	return nil
}

func (f *fakeDocumentRepo) MarkError(ctx context.Context, id string, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", domain.ErrDocumentNotFound)
	}
	doc.Estado = domain.EstadoError
	doc.Error = errMessage
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []domain.StoredEvent
	err       error
	failFirst int
}

func (f *fakeQueue) PublishDocumentStored(ctx context.Context, event domain.StoredEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFirst > 0 {
		f.failFirst--
		return errors.New("nats: connection closed")
	}
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakeQueue) SubscribeExtractionResults(ctx context.Context, handler func(context.Context, domain.ExtractionResult) error) error {
	return nil
}

type fakeProviderRepo struct {
	providers []domain.Provider
	err       error
}

func (f *fakeProviderRepo) ListActive(ctx context.Context, tenantID string) ([]domain.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Provider
	for _, p := range f.providers {
		if p.TenantID == tenantID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Provider, error) {
	for _, p := range f.providers {
		if p.TenantID == tenantID && p.ID == id {
			copied := p
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrProviderNotFound, "get provider", domain.ErrProviderNotFound)
}

// stubScorer returns canned scores per (a,b) pair and a default otherwise.
type stubScorer struct {
	scores       map[[2]string]float64
	defaultScore float64
}

func (s *stubScorer) Score(a, b string) float64 {
	if v, ok := s.scores[[2]string{a, b}]; ok {
		return v
	}
	return s.defaultScore
}
