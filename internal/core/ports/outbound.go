package ports

import (
	"context"
	"io"
	"time"

	"github.com/facturo/ingesta/internal/core/domain"
)

// DocumentRepository persists and reads document state. ClaimAndCreate must
// claim the (tenant, fingerprint) pair and insert the document in a single
// transaction; a lost claim returns domain.ErrDuplicate. Field updates that
// affect the estado recompute it inside the same transaction.
type DocumentRepository interface {
	ClaimAndCreate(ctx context.Context, doc *domain.Document) error
	CreateDuplicateMarker(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*domain.Document, error)
	KeyExists(ctx context.Context, tenantID, storageKey string) (bool, error)
	ApplyFields(ctx context.Context, doc *domain.Document) error
	ReassignProvider(ctx context.Context, id string, providerID *string, estado domain.ReviewState, missing []string) error
	MarkError(ctx context.Context, id string, errMessage string) error
}

// ProviderRepository reads the tenant's counterparties for resolution.
type ProviderRepository interface {
	ListActive(ctx context.Context, tenantID string) ([]domain.Provider, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Provider, error)
}

// DeadLetterRepository records tasks that exhausted their retry budget.
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *domain.DeadLetter) error
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

// ObjectStorage is a key-addressed blob store. Put never overwrites; a
// taken key yields domain.ErrKeyConflict.
type ObjectStorage interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MessageQueue carries ingestion events to and from the extraction service.
type MessageQueue interface {
	PublishDocumentStored(ctx context.Context, event domain.StoredEvent) error
	SubscribeExtractionResults(ctx context.Context, handler func(context.Context, domain.ExtractionResult) error) error
}

// TenantResolver maps a filename prefix to its owning tenant from the
// current prefix-map snapshot.
type TenantResolver interface {
	Resolve(prefix string) (domain.Tenant, bool)
	Reload() error
}

// Fingerprinter computes a collision-resistant content fingerprint.
type Fingerprinter interface {
	File(ctx context.Context, path string) (string, error)
}

// Scorer computes a normalized similarity in [0,1] between two names.
type Scorer interface {
	Score(a, b string) float64
}

// StabilityWaiter blocks until a file stops changing or the wait budget
// runs out (domain.ErrNeverStabilized).
type StabilityWaiter interface {
	WaitStable(ctx context.Context, path string) error
}
