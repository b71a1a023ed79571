package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/core/ports"
)

// IngestFileUseCase runs the pipeline for one observed file: wait for the
// file to stabilize, fingerprint it, route it to a tenant, upload it under
// its storage key and create the document record. Steps within a task are
// sequential; the scheduler decides what happens on each error kind.
type IngestFileUseCase struct {
	waiter      ports.StabilityWaiter
	fingerprint ports.Fingerprinter
	tenants     ports.TenantResolver
	storage     ports.ObjectStorage
	repo        ports.DocumentRepository
	queue       ports.MessageQueue
	now         func() time.Time
}

func NewIngestFileUseCase(
	waiter ports.StabilityWaiter,
	fingerprint ports.Fingerprinter,
	tenants ports.TenantResolver,
	storage ports.ObjectStorage,
	repo ports.DocumentRepository,
	queue ports.MessageQueue,
) *IngestFileUseCase {
	return &IngestFileUseCase{
		waiter:      waiter,
		fingerprint: fingerprint,
		tenants:     tenants,
		storage:     storage,
		repo:        repo,
		queue:       queue,
		now:         time.Now,
	}
}

func (uc *IngestFileUseCase) Ingest(ctx context.Context, task *domain.IngestionTask) error {
	if err := uc.waiter.WaitStable(ctx, task.Path); err != nil {
		return err
	}

	fp, err := uc.fingerprint.File(ctx, task.Path)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", task.Path, err)
	}
	task.Fingerprint = fp

	prefix, ok := domain.ExtractPrefix(task.Filename)
	if !ok {
		return domain.WrapError(domain.ErrUnroutable, "route file",
			fmt.Errorf("filename %q has no prefix", task.Filename))
	}
	tenant, ok := uc.tenants.Resolve(prefix)
	if !ok {
		return domain.WrapError(domain.ErrUnroutable, "route file",
			fmt.Errorf("unknown prefix %q", prefix))
	}
	task.TenantID = tenant.ID

	existing, err := uc.repo.FindByFingerprint(ctx, tenant.ID, fp)
	if err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return uc.handleDuplicate(ctx, task, tenant, existing)
	}

	key, err := uc.buildKey(ctx, tenant, task)
	if err != nil {
		return err
	}

	if err := uc.upload(ctx, key, task.Path); err != nil {
		if !domain.IsKind(err, domain.ErrKeyConflict) {
			return err
		}
		// Another worker stored a different file under the same name on
		// the same day between the key check and the conditional write.
		// Switch to the fingerprint-suffixed key so this row points at
		// its own bytes. A conflict on the suffixed key can only come
		// from an earlier attempt of this same file, so it is safe to
		// reuse the object.
		alt := domain.DisambiguateKey(key, fp)
		if alt != key {
			if err := uc.upload(ctx, alt, task.Path); err != nil && !domain.IsKind(err, domain.ErrKeyConflict) {
				return err
			}
			key = alt
		}
		slog.Info("storage_key_conflict_resolved",
			"tenant_id", tenant.ID,
			"storage_key", key,
		)
	}

	doc := &domain.Document{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		Filename:    task.Filename,
		StorageKey:  key,
		Fingerprint: fp,
		CreatedAt:   uc.now().UTC(),
		UpdatedAt:   uc.now().UTC(),
	}
	doc.Estado, doc.Missing = domain.Evaluate(doc)

	if err := uc.repo.ClaimAndCreate(ctx, doc); err != nil {
		if domain.IsKind(err, domain.ErrDuplicate) {
			// Lost the claim to a concurrent worker; the winner's copy is
			// the document of record.
			winner, findErr := uc.repo.FindByFingerprint(ctx, tenant.ID, fp)
			if findErr != nil || winner == nil {
				return fmt.Errorf("duplicate claim without winner: %w", err)
			}
			if winner.StorageKey != key {
				if delErr := uc.storage.Delete(ctx, key); delErr != nil {
					slog.Warn("orphan_object_cleanup_failed", "storage_key", key, "error", delErr)
				}
			}
			return uc.handleDuplicate(ctx, task, tenant, winner)
		}
		return fmt.Errorf("claim and create document: %w", err)
	}
	task.DocumentID = doc.ID

	if err := uc.queue.PublishDocumentStored(ctx, domain.StoredEvent{
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		StorageKey: doc.StorageKey,
	}); err != nil {
		return fmt.Errorf("publish stored event: %w", err)
	}

	slog.Info("document_ingested",
		"document_id", doc.ID,
		"tenant_id", doc.TenantID,
		"storage_key", doc.StorageKey,
		"estado", string(doc.Estado),
	)
	return nil
}

// handleDuplicate decides between the idempotent no-op (same source file
// observed again after success) and a real duplicate (same bytes under a
// different name), which gets a DUPLICADO marker row so it stays
// discoverable. The original document is never touched.
func (uc *IngestFileUseCase) handleDuplicate(
	ctx context.Context,
	task *domain.IngestionTask,
	tenant domain.Tenant,
	existing *domain.Document,
) error {
	if existing.Filename == task.Filename {
		// A stored but still-pending document may mean the previous
		// attempt created the row and then lost the publish. Re-emitting
		// the stored event is safe (applying extraction twice converges
		// on the same state); dropping it would strand the document
		// PENDIENTE with no extraction ever triggered. A publish failure
		// here keeps the task retryable instead of finishing as a
		// duplicate.
		if existing.Estado == domain.EstadoPendiente && existing.StorageKey != "" {
			if err := uc.queue.PublishDocumentStored(ctx, domain.StoredEvent{
				DocumentID: existing.ID,
				TenantID:   existing.TenantID,
				StorageKey: existing.StorageKey,
			}); err != nil {
				return fmt.Errorf("republish stored event: %w", err)
			}
			slog.Info("stored_event_republished",
				"tenant_id", tenant.ID,
				"document_id", existing.ID,
				"storage_key", existing.StorageKey,
			)
		}
		slog.Info("duplicate_reobserved",
			"tenant_id", tenant.ID,
			"filename", task.Filename,
			"document_id", existing.ID,
		)
		return domain.WrapError(domain.ErrDuplicate, "dedup",
			fmt.Errorf("file already ingested as document %s", existing.ID))
	}

	marker := &domain.Document{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		Filename:    task.Filename,
		Fingerprint: task.Fingerprint,
		Estado:      domain.EstadoDuplicado,
		Missing:     []string{},
		Error:       fmt.Sprintf("duplicate of document %s", existing.ID),
		CreatedAt:   uc.now().UTC(),
		UpdatedAt:   uc.now().UTC(),
	}
	if err := uc.repo.CreateDuplicateMarker(ctx, marker); err != nil {
		return fmt.Errorf("create duplicate marker: %w", err)
	}
	slog.Warn("duplicate_detected",
		"tenant_id", tenant.ID,
		"filename", task.Filename,
		"original_document_id", existing.ID,
	)
	return domain.WrapError(domain.ErrDuplicate, "dedup",
		fmt.Errorf("duplicate of document %s", existing.ID))
}

func (uc *IngestFileUseCase) buildKey(ctx context.Context, tenant domain.Tenant, task *domain.IngestionTask) (string, error) {
	key := domain.BuildStorageKey(tenant.Namespace, domain.SanitizeFilename(task.Filename), uc.now())
	taken, err := uc.repo.KeyExists(ctx, tenant.ID, key)
	if err != nil {
		return "", fmt.Errorf("check storage key: %w", err)
	}
	if taken {
		key = domain.DisambiguateKey(key, task.Fingerprint)
	}
	return key, nil
}

func (uc *IngestFileUseCase) upload(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	if err := uc.storage.Put(ctx, key, f, contentTypeFor(path)); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
