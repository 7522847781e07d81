package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

// LastUploadedDate returns the most recent origin date directory finished
// for a product, or ErrNotFound when the product has never been uploaded.
func (r *Registry) LastUploadedDate(ctx context.Context, product string) (domain.LastUploadedDate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, product, date FROM last_uploaded_date WHERE product = $1`, product)

	var d domain.LastUploadedDate
	err := row.Scan(&d.ID, &d.Product, &d.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LastUploadedDate{}, fmt.Errorf("last uploaded date for %s: %w", product, ErrNotFound)
	}
	if err != nil {
		return domain.LastUploadedDate{}, fmt.Errorf("query last uploaded date for %s: %w", product, err)
	}
	return d, nil
}

// UpsertLastUploadedDate records the latest finished date directory for a
// product, keyed by product.
func (r *Registry) UpsertLastUploadedDate(ctx context.Context, d domain.LastUploadedDate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO last_uploaded_date (product, date)
		VALUES ($1, $2)
		ON CONFLICT (product) DO UPDATE SET date = EXCLUDED.date`,
		d.Product, d.Date)
	if err != nil {
		return fmt.Errorf("upsert last uploaded date for %s: %w", d.Product, err)
	}
	return nil
}

// RecordFailedUpload stores or refreshes the durable record of an upload
// that exhausted its retries, keyed by remote path. The creation time is
// kept from the first failure; only the error and attempt time move.
func (r *Registry) RecordFailedUpload(ctx context.Context, f domain.FailedUpload) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO failed_uploads (remote_path, product, date_dir, last_error, created_at, last_attempt)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (remote_path) DO UPDATE SET
			last_error = EXCLUDED.last_error,
			last_attempt = EXCLUDED.last_attempt`,
		f.RemotePath, f.Product, f.DateDir, f.LastError, f.LastAttempt)
	if err != nil {
		return fmt.Errorf("record failed upload %s: %w", f.RemotePath, err)
	}
	return nil
}

// FailedUploads returns every recorded failed upload, oldest first.
func (r *Registry) FailedUploads(ctx context.Context) ([]domain.FailedUpload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, remote_path, product, date_dir, last_error, created_at, last_attempt
		FROM failed_uploads
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query failed uploads: %w", err)
	}
	defer rows.Close()

	var fails []domain.FailedUpload
	for rows.Next() {
		var f domain.FailedUpload
		err := rows.Scan(&f.ID, &f.RemotePath, &f.Product, &f.DateDir, &f.LastError, &f.CreatedAt, &f.LastAttempt)
		if err != nil {
			return nil, fmt.Errorf("scan failed upload: %w", err)
		}
		fails = append(fails, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed uploads: %w", err)
	}
	return fails, nil
}
