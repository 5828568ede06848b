package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/HanTheDev/onboard-assistant/internal/models"
)

const resourceColumns = `
        id, tenant_id, kind, title, COALESCE(url, ''), COALESCE(file_url, ''), COALESCE(file_path, ''),
        COALESCE(file_size, 0), COALESCE(mime_type, ''), processed, COALESCE(processing_error, ''),
        created_at, updated_at`

func scanResource(row pgx.Row) (*models.Resource, error) {
	var r models.Resource
	err := row.Scan(
		&r.ID,
		&r.TenantID,
		&r.Kind,
		&r.Title,
		&r.URL,
		&r.FileURL,
		&r.FilePath,
		&r.FileSize,
		&r.MimeType,
		&r.Processed,
		&r.ProcessingError,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	query := `SELECT` + resourceColumns + `
        FROM resources
        WHERE id = $1
    `

	r, err := scanResource(db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResources loads resources by id without a tenant filter; callers
// compare tenants themselves so a mismatch is visible instead of silently
// dropped.
func (db *DB) GetResources(ctx context.Context, ids []string) ([]models.Resource, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT` + resourceColumns + `
        FROM resources
        WHERE id = ANY($1)
    `

	rows, err := db.Pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (db *DB) CountResources(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM resources WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func (db *DB) MarkProcessed(ctx context.Context, id, extractedContent string) error {
	query := `
        UPDATE resources
        SET processed = TRUE, processing_error = NULL, extracted_content = $2, updated_at = NOW()
        WHERE id = $1
    `

	tag, err := db.Pool.Exec(ctx, query, id, extractedContent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrResourceNotFound, id)
	}
	return nil
}

func (db *DB) MarkFailed(ctx context.Context, id, processingError string) error {
	query := `
        UPDATE resources
        SET processed = FALSE, processing_error = $2, updated_at = NOW()
        WHERE id = $1
    `

	_, err := db.Pool.Exec(ctx, query, id, processingError)
	return err
}
