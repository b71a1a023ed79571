package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/facturo/ingesta/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across ingestor/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	storage_key TEXT,
	fingerprint TEXT NOT NULL,
	provider_id TEXT,
	issue_date TIMESTAMPTZ,
	total_cents BIGINT,
	letra TEXT,
	numero TEXT,
	subtotal_cents BIGINT,
	iva_cents BIGINT,
	estado TEXT NOT NULL,
	missing_fields JSONB NOT NULL DEFAULT '[]'::jsonb,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant_estado ON documents(tenant_id, estado);
CREATE INDEX IF NOT EXISTS idx_documents_tenant_key ON documents(tenant_id, storage_key);

CREATE TABLE IF NOT EXISTS fingerprint_claims (
	tenant_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	document_id TEXT NOT NULL,
	claimed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS providers (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	legal_name TEXT NOT NULL,
	tax_id TEXT NOT NULL,
	aliases JSONB NOT NULL DEFAULT '[]'::jsonb,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_providers_tenant ON providers(tenant_id);

CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	path TEXT NOT NULL,
	filename TEXT NOT NULL,
	tenant_id TEXT,
	fingerprint TEXT,
	attempts INT NOT NULL,
	last_error TEXT NOT NULL,
	dead_letter_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// ClaimAndCreate claims the (tenant, fingerprint) pair and inserts the
// document in one transaction. When the claim already belongs to another
// document the transaction rolls back and domain.ErrDuplicate is
// returned; a concurrent duplicate can never create a second document.
func (r *DocumentRepository) ClaimAndCreate(ctx context.Context, doc *domain.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
INSERT INTO fingerprint_claims (tenant_id, fingerprint, document_id, claimed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (tenant_id, fingerprint) DO NOTHING
`, doc.TenantID, doc.Fingerprint, doc.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert fingerprint claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDuplicate, "claim fingerprint",
			fmt.Errorf("fingerprint %s already claimed for tenant %s", doc.Fingerprint, doc.TenantID))
	}

	if err := insertDocument(ctx, tx, doc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim tx: %w", err)
	}
	return nil
}

// CreateDuplicateMarker inserts a DUPLICADO row without claiming the
// fingerprint, so the original stays the document of record.
func (r *DocumentRepository) CreateDuplicateMarker(ctx context.Context, doc *domain.Document) error {
	if err := insertDocument(ctx, r.db, doc); err != nil {
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDocument(ctx context.Context, db execer, doc *domain.Document) error {
	missingJSON, err := json.Marshal(missingOrEmpty(doc.Missing))
	if err != nil {
		return fmt.Errorf("marshal missing fields: %w", err)
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO documents (
	id, tenant_id, filename, storage_key, fingerprint, provider_id, issue_date,
	total_cents, letra, numero, subtotal_cents, iva_cents,
	estado, missing_fields, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
		doc.ID, doc.TenantID, doc.Filename, nullString(doc.StorageKey), doc.Fingerprint,
		doc.ProviderID, doc.IssueDate, doc.Total, doc.Letra, doc.Numero, doc.Subtotal, doc.IVA,
		string(doc.Estado), missingJSON, doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `
id, tenant_id, filename, storage_key, fingerprint, provider_id, issue_date,
total_cents, letra, numero, subtotal_cents, iva_cents,
estado, missing_fields, error_message, created_at, updated_at
`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
				fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// FindByFingerprint resolves through the claims table, so DUPLICADO
// marker rows never shadow the original.
func (r *DocumentRepository) FindByFingerprint(ctx context.Context, tenantID, fp string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+docColumnsAliased("d")+`
FROM fingerprint_claims c
JOIN documents d ON d.id = c.document_id
WHERE c.tenant_id = $1 AND c.fingerprint = $2
`, tenantID, fp)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "find by fingerprint",
				fmt.Errorf("tenant=%s", tenantID))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) KeyExists(ctx context.Context, tenantID, storageKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM documents WHERE tenant_id = $1 AND storage_key = $2)
`, tenantID, storageKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check storage key: %w", err)
	}
	return exists, nil
}

// ApplyFields persists the extracted fields together with the recomputed
// estado; the estado is never written independently of the fields that
// produced it.
func (r *DocumentRepository) ApplyFields(ctx context.Context, doc *domain.Document) error {
	missingJSON, err := json.Marshal(missingOrEmpty(doc.Missing))
	if err != nil {
		return fmt.Errorf("marshal missing fields: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET provider_id = $2, issue_date = $3, total_cents = $4, letra = $5, numero = $6,
	subtotal_cents = $7, iva_cents = $8, estado = $9, missing_fields = $10, updated_at = $11
WHERE id = $1
`,
		doc.ID, doc.ProviderID, doc.IssueDate, doc.Total, doc.Letra, doc.Numero,
		doc.Subtotal, doc.IVA, string(doc.Estado), missingJSON, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("apply fields: %w", err)
	}
	return expectOneRow(res, doc.ID)
}

func (r *DocumentRepository) ReassignProvider(ctx context.Context, id string, providerID *string, estado domain.ReviewState, missing []string) error {
	missingJSON, err := json.Marshal(missingOrEmpty(missing))
	if err != nil {
		return fmt.Errorf("marshal missing fields: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET provider_id = $2, estado = $3, missing_fields = $4, updated_at = $5
WHERE id = $1
`, id, providerID, string(estado), missingJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reassign provider: %w", err)
	}
	return expectOneRow(res, id)
}

func (r *DocumentRepository) MarkError(ctx context.Context, id string, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET estado = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.EstadoError), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document error: %w", err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document",
			fmt.Errorf("id=%s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var storageKey, letra, numero, providerID, errMessage sql.NullString
	var issueDate sql.NullTime
	var total, subtotal, iva sql.NullInt64
	var missingRaw []byte
	var estado string

	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Filename, &storageKey, &doc.Fingerprint,
		&providerID, &issueDate, &total, &letra, &numero, &subtotal, &iva,
		&estado, &missingRaw, &errMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.StorageKey = storageKey.String
	doc.Error = errMessage.String
	doc.Estado = domain.ReviewState(estado)
	if providerID.Valid {
		doc.ProviderID = &providerID.String
	}
	if issueDate.Valid {
		t := issueDate.Time
		doc.IssueDate = &t
	}
	if total.Valid {
		doc.Total = &total.Int64
	}
	if letra.Valid {
		doc.Letra = &letra.String
	}
	if numero.Valid {
		doc.Numero = &numero.String
	}
	if subtotal.Valid {
		doc.Subtotal = &subtotal.Int64
	}
	if iva.Valid {
		doc.IVA = &iva.Int64
	}
	if err := json.Unmarshal(missingRaw, &doc.Missing); err != nil {
		return nil, fmt.Errorf("unmarshal missing fields: %w", err)
	}
	return &doc, nil
}

func docColumnsAliased(alias string) string {
	return alias + `.id, ` + alias + `.tenant_id, ` + alias + `.filename, ` + alias + `.storage_key, ` +
		alias + `.fingerprint, ` + alias + `.provider_id, ` + alias + `.issue_date, ` +
		alias + `.total_cents, ` + alias + `.letra, ` + alias + `.numero, ` +
		alias + `.subtotal_cents, ` + alias + `.iva_cents, ` + alias + `.estado, ` +
		alias + `.missing_fields, ` + alias + `.error_message, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func missingOrEmpty(missing []string) []string {
	if missing == nil {
		return []string{}
	}
	return missing
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
