package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/facturo/ingesta/internal/core/domain"
)

type DeadLetterRepository struct {
	db *sql.DB
}

func NewDeadLetterRepository(db *sql.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Create(ctx context.Context, dl *domain.DeadLetter) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO dead_letters (id, task_id, path, filename, tenant_id, fingerprint, attempts, last_error, dead_letter_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		dl.ID, dl.TaskID, dl.Path, dl.Filename, nullString(dl.TenantID),
		nullString(dl.Fingerprint), dl.Attempts, dl.LastError, dl.DeadLetterAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, task_id, path, filename, tenant_id, fingerprint, attempts, last_error, dead_letter_at
FROM dead_letters
ORDER BY dead_letter_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		var tenantID, fingerprint sql.NullString
		err := rows.Scan(&dl.ID, &dl.TaskID, &dl.Path, &dl.Filename,
			&tenantID, &fingerprint, &dl.Attempts, &dl.LastError, &dl.DeadLetterAt)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.TenantID = tenantID.String
		dl.Fingerprint = fingerprint.String
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return letters, nil
}
