package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

// RefPair couples a product file with the individual reference file built
// over it, for two-phase linking in one transaction.
type RefPair struct {
	NcFile  domain.NcFile
	RefFile domain.IndividualRefFile
}

// UpsertNcFile inserts or refreshes a product file row keyed by s3_path and
// returns the stored row. Re-uploading the same object is idempotent; the
// event and reference links already attached are preserved.
func (r *Registry) UpsertNcFile(ctx context.Context, f domain.NcFile) (domain.NcFile, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO nc_files (s3_path, date_time, product)
		VALUES ($1, $2, $3)
		ON CONFLICT (s3_path) DO UPDATE SET
			date_time = EXCLUDED.date_time,
			product = EXCLUDED.product
		RETURNING id, s3_path, date_time, product, event_id, ref_file_id`,
		f.S3Path, f.DateTime, f.Product)

	var out domain.NcFile
	err := row.Scan(&out.ID, &out.S3Path, &out.DateTime, &out.Product, &out.EventID, &out.RefFileID)
	if err != nil {
		return domain.NcFile{}, fmt.Errorf("upsert nc file %s: %w", f.S3Path, err)
	}
	return out, nil
}

// LinkFilePair stores an individual reference file and ties it to its
// product file in one transaction. The pair is written in two phases
// because each side carries the other's id: upsert the reference file with
// the nc file id, then point the nc file back at it.
func (r *Registry) LinkFilePair(ctx context.Context, pair RefPair) (RefPair, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return RefPair{}, fmt.Errorf("begin link file pair: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO individual_reference_files (s3_path, date_time, product, event_id, nc_file_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (s3_path) DO UPDATE SET
			date_time = EXCLUDED.date_time,
			product = EXCLUDED.product,
			nc_file_id = EXCLUDED.nc_file_id
		RETURNING id, s3_path, date_time, product, event_id, nc_file_id`,
		pair.RefFile.S3Path, pair.RefFile.DateTime, pair.RefFile.Product,
		pair.NcFile.EventID, pair.NcFile.ID)

	var ref domain.IndividualRefFile
	err = row.Scan(&ref.ID, &ref.S3Path, &ref.DateTime, &ref.Product, &ref.EventID, &ref.NcFileID)
	if err != nil {
		return RefPair{}, fmt.Errorf("upsert ref file %s: %w", pair.RefFile.S3Path, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE nc_files SET ref_file_id = $1 WHERE id = $2`, ref.ID, pair.NcFile.ID); err != nil {
		return RefPair{}, fmt.Errorf("point nc file %d at ref file %d: %w", pair.NcFile.ID, ref.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RefPair{}, fmt.Errorf("commit link file pair: %w", err)
	}

	out := pair
	out.RefFile = ref
	out.NcFile.RefFileID = &ref.ID
	return out, nil
}

// UnindexedNcFiles returns product files that have no individual reference
// file yet, oldest first. An empty product matches all products.
func (r *Registry) UnindexedNcFiles(ctx context.Context, product string) ([]domain.NcFile, error) {
	query := `
		SELECT id, s3_path, date_time, product, event_id, ref_file_id
		FROM nc_files
		WHERE ref_file_id IS NULL`
	args := []any{}
	if product != "" {
		query += ` AND product = $1`
		args = append(args, product)
	}
	query += ` ORDER BY date_time`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unindexed nc files: %w", err)
	}
	defer rows.Close()

	return collectNcFiles(rows)
}

// MatchingNcFiles returns files of the given products whose timestamp falls
// inside the window, boundaries inclusive, oldest first.
func (r *Registry) MatchingNcFiles(ctx context.Context, products []string, w domain.Window) ([]domain.NcFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, s3_path, date_time, product, event_id, ref_file_id
		FROM nc_files
		WHERE product = ANY($1) AND date_time >= $2 AND date_time <= $3
		ORDER BY date_time`, products, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("query matching nc files: %w", err)
	}
	defer rows.Close()

	return collectNcFiles(rows)
}

// RefFilesForEvent returns the individual reference files linked to an
// event, oldest first.
func (r *Registry) RefFilesForEvent(ctx context.Context, eventID int64) ([]domain.IndividualRefFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, s3_path, date_time, product, event_id, nc_file_id
		FROM individual_reference_files
		WHERE event_id = $1
		ORDER BY date_time`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query ref files for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var refs []domain.IndividualRefFile
	for rows.Next() {
		var ref domain.IndividualRefFile
		err := rows.Scan(&ref.ID, &ref.S3Path, &ref.DateTime, &ref.Product, &ref.EventID, &ref.NcFileID)
		if err != nil {
			return nil, fmt.Errorf("scan ref file: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ref files: %w", err)
	}
	return refs, nil
}

// UpsertEventRefFile records the combined reference file for an event,
// keyed by event so rebuilding replaces the previous pointer.
func (r *Registry) UpsertEventRefFile(ctx context.Context, ref domain.EventRefFile) (domain.EventRefFile, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO event_reference_files (s3_path, product, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET
			s3_path = EXCLUDED.s3_path,
			product = EXCLUDED.product
		RETURNING id, s3_path, product, event_id`,
		ref.S3Path, ref.Product, ref.EventID)

	var out domain.EventRefFile
	if err := row.Scan(&out.ID, &out.S3Path, &out.Product, &out.EventID); err != nil {
		return domain.EventRefFile{}, fmt.Errorf("upsert event ref file for event %d: %w", ref.EventID, err)
	}
	return out, nil
}

func collectNcFiles(rows pgx.Rows) ([]domain.NcFile, error) {
	var files []domain.NcFile
	for rows.Next() {
		var f domain.NcFile
		err := rows.Scan(&f.ID, &f.S3Path, &f.DateTime, &f.Product, &f.EventID, &f.RefFileID)
		if err != nil {
			return nil, fmt.Errorf("scan nc file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nc files: %w", err)
	}
	return files, nil
}
