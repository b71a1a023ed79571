package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
)

type fakeTenants struct {
	reloadErr error
	reloads   int
}

func (f *fakeTenants) Resolve(prefix string) (domain.Tenant, bool) {
	return domain.Tenant{}, false
}

func (f *fakeTenants) Reload() error {
	f.reloads++
	return f.reloadErr
}

type fakeDeadLetters struct {
	letters []domain.DeadLetter
	err     error
}

func (f *fakeDeadLetters) Create(ctx context.Context, dl *domain.DeadLetter) error { return nil }

func (f *fakeDeadLetters) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	return f.letters, f.err
}

type fakeReassigner struct {
	updated []string
	err     error

	gotTenant   string
	gotProvider string
	gotDocs     []string
}

func (f *fakeReassigner) Reassign(ctx context.Context, tenantID, providerID string, documentIDs []string) ([]string, error) {
	f.gotTenant = tenantID
	f.gotProvider = providerID
	f.gotDocs = documentIDs
	return f.updated, f.err
}

type fakeDocuments struct {
	doc *domain.Document
	err error
}

func (f *fakeDocuments) ClaimAndCreate(ctx context.Context, doc *domain.Document) error { return nil }
func (f *fakeDocuments) CreateDuplicateMarker(ctx context.Context, doc *domain.Document) error {
	return nil
}
func (f *fakeDocuments) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return f.doc, f.err
}
func (f *fakeDocuments) FindByFingerprint(ctx context.Context, tenantID, fp string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}
func (f *fakeDocuments) KeyExists(ctx context.Context, tenantID, storageKey string) (bool, error) {
	return false, nil
}
func (f *fakeDocuments) ApplyFields(ctx context.Context, doc *domain.Document) error { return nil }
func (f *fakeDocuments) ReassignProvider(ctx context.Context, id string, providerID *string, estado domain.ReviewState, missing []string) error {
	return nil
}
func (f *fakeDocuments) MarkError(ctx context.Context, id string, errMessage string) error {
	return nil
}

type fakeStorage struct {
	url string
	err error
}

func (f *fakeStorage) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	return nil
}
func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) { return nil, nil }
func (f *fakeStorage) Delete(ctx context.Context, key string) error               { return nil }
func (f *fakeStorage) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return f.url, f.err
}

func newTestRouter(tenants *fakeTenants, releaser func() int, dl *fakeDeadLetters, re *fakeReassigner, docs *fakeDocuments, st *fakeStorage) http.Handler {
	return NewRouter(tenants, releaser, dl, re, docs, st, 15*time.Minute).Handler()
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReloadTenantsReleasesParkedFiles(t *testing.T) {
	tenants := &fakeTenants{}
	released := 0
	h := newTestRouter(tenants, func() int { released++; return 3 }, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/tenants/reload", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if tenants.reloads != 1 {
		t.Errorf("reloads = %d, want 1", tenants.reloads)
	}
	if released != 1 {
		t.Error("expected parked files to be released after reload")
	}

	var body struct {
		ReleasedFiles int `json:"released_files"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ReleasedFiles != 3 {
		t.Errorf("released_files = %d, want 3", body.ReleasedFiles)
	}
}

func TestReloadTenantsRejectsGet(t *testing.T) {
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/tenants/reload", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestListDeadLettersReturnsEmptyArray(t *testing.T) {
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/deadletters", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dead_letters":[]`) {
		t.Errorf("body = %s, want empty dead_letters array", rec.Body.String())
	}
}

func TestReassignValidatesBody(t *testing.T) {
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing provider", `{"tenant_id":"weiss","document_ids":["d1"]}`},
		{"missing documents", `{"tenant_id":"weiss","provider_id":"p1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/admin/documents/reassign", strings.NewReader(tc.body))
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestReassignPassesThroughToUseCase(t *testing.T) {
	re := &fakeReassigner{updated: []string{"d1", "d2"}}
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, re, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	body := `{"tenant_id":"weiss","provider_id":"p1","document_ids":["d1","d2"]}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/documents/reassign", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if re.gotTenant != "weiss" || re.gotProvider != "p1" || len(re.gotDocs) != 2 {
		t.Errorf("usecase got %s/%s/%v", re.gotTenant, re.gotProvider, re.gotDocs)
	}
}

func TestReassignMapsProviderNotFound(t *testing.T) {
	re := &fakeReassigner{err: domain.WrapError(domain.ErrProviderNotFound, "reassign", errors.New("tenant=weiss id=ghost"))}
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, re, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	body := `{"tenant_id":"weiss","provider_id":"ghost","document_ids":["d1"]}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/documents/reassign", strings.NewReader(body)))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetDocumentIncludesDownloadURL(t *testing.T) {
	docs := &fakeDocuments{doc: &domain.Document{
		ID:         "doc-1",
		TenantID:   "weiss",
		StorageKey: "cuit=1/2025/01/26/a.pdf",
		Estado:     domain.EstadoPendiente,
	}}
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, docs, &fakeStorage{url: "https://signed.example/a.pdf"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/documents/doc-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "https://signed.example/a.pdf") {
		t.Errorf("body missing download url: %s", rec.Body.String())
	}
}

func TestRequestIDEchoedInResponse(t *testing.T) {
	h := newTestRouter(&fakeTenants{}, nil, &fakeDeadLetters{}, &fakeReassigner{}, &fakeDocuments{}, &fakeStorage{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("request id header = %q, want req-42", got)
	}
}
