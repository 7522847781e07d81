package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

// ErrEventNotUnmapped reports that a mapping transaction found the event
// already mapped (or modified) by the time it tried to flip the status.
var ErrEventNotUnmapped = errors.New("event is not in unmapped status")

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("not found")

const eventColumns = `id, noaa_record_id, event_id, product,
	date_time_start, date_time_end, status,
	begin_lat, begin_lon, end_lat, end_lon, county, begin_city, end_city,
	magnitude, damage_property, damage_crops,
	deaths_direct, deaths_indirect, injuries_direct, injuries_indirect,
	event_narrative, episode_narrative`

func scanEvent(row pgx.Row) (domain.NoaaEvent, error) {
	var e domain.NoaaEvent
	err := row.Scan(
		&e.ID, &e.NoaaRecordID, &e.EventID, &e.Product,
		&e.Start, &e.End, &e.Status,
		&e.BeginLat, &e.BeginLon, &e.EndLat, &e.EndLon, &e.County, &e.BeginCity, &e.EndCity,
		&e.Magnitude, &e.DamageProperty, &e.DamageCrops,
		&e.DeathsDirect, &e.DeathsIndirect, &e.InjuriesDirect, &e.InjuriesIndirect,
		&e.EventNarrative, &e.EpisodeNarrative,
	)
	return e, err
}

// UpsertNoaaRecord inserts or refreshes the tracking row for one yearly
// source file, keyed by file year, and returns the stored row.
func (r *Registry) UpsertNoaaRecord(ctx context.Context, rec domain.NoaaRecord) (domain.NoaaRecord, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO noaa_records (file_year, last_modified)
		VALUES ($1, $2)
		ON CONFLICT (file_year) DO UPDATE SET last_modified = EXCLUDED.last_modified
		RETURNING id, file_year, last_modified`,
		rec.FileYear, rec.LastModified)

	var out domain.NoaaRecord
	if err := row.Scan(&out.ID, &out.FileYear, &out.LastModified); err != nil {
		return domain.NoaaRecord{}, fmt.Errorf("upsert noaa record for %d: %w", rec.FileYear, err)
	}
	return out, nil
}

// NoaaRecords returns all tracked yearly source files keyed by file year.
func (r *Registry) NoaaRecords(ctx context.Context) (map[int]domain.NoaaRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, file_year, last_modified FROM noaa_records`)
	if err != nil {
		return nil, fmt.Errorf("query noaa records: %w", err)
	}
	defer rows.Close()

	records := make(map[int]domain.NoaaRecord)
	for rows.Next() {
		var rec domain.NoaaRecord
		if err := rows.Scan(&rec.ID, &rec.FileYear, &rec.LastModified); err != nil {
			return nil, fmt.Errorf("scan noaa record: %w", err)
		}
		records[rec.FileYear] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate noaa records: %w", err)
	}
	return records, nil
}

// UpsertEvents writes a batch of parsed events in one transaction. Rows are
// keyed by NOAA's event_id; a conflicting row is refreshed in place so that
// re-ingesting a republished year is idempotent. The stored status is
// preserved on conflict.
func (r *Registry) UpsertEvents(ctx context.Context, events []domain.NoaaEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert events: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO noaa_events (
				noaa_record_id, event_id, product,
				date_time_start, date_time_end, status,
				begin_lat, begin_lon, end_lat, end_lon, county, begin_city, end_city,
				magnitude, damage_property, damage_crops,
				deaths_direct, deaths_indirect, injuries_direct, injuries_indirect,
				event_narrative, episode_narrative
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
			)
			ON CONFLICT (event_id) DO UPDATE SET
				noaa_record_id = EXCLUDED.noaa_record_id,
				product = EXCLUDED.product,
				date_time_start = EXCLUDED.date_time_start,
				date_time_end = EXCLUDED.date_time_end,
				begin_lat = EXCLUDED.begin_lat,
				begin_lon = EXCLUDED.begin_lon,
				end_lat = EXCLUDED.end_lat,
				end_lon = EXCLUDED.end_lon,
				county = EXCLUDED.county,
				begin_city = EXCLUDED.begin_city,
				end_city = EXCLUDED.end_city,
				magnitude = EXCLUDED.magnitude,
				damage_property = EXCLUDED.damage_property,
				damage_crops = EXCLUDED.damage_crops,
				deaths_direct = EXCLUDED.deaths_direct,
				deaths_indirect = EXCLUDED.deaths_indirect,
				injuries_direct = EXCLUDED.injuries_direct,
				injuries_indirect = EXCLUDED.injuries_indirect,
				event_narrative = EXCLUDED.event_narrative,
				episode_narrative = EXCLUDED.episode_narrative`,
			e.NoaaRecordID, e.EventID, e.Product,
			e.Start, e.End, e.Status,
			e.BeginLat, e.BeginLon, e.EndLat, e.EndLon, e.County, e.BeginCity, e.EndCity,
			e.Magnitude, e.DamageProperty, e.DamageCrops,
			e.DeathsDirect, e.DeathsIndirect, e.InjuriesDirect, e.InjuriesIndirect,
			e.EventNarrative, e.EpisodeNarrative)
		if err != nil {
			return fmt.Errorf("upsert event %d: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert events: %w", err)
	}
	return nil
}

// UnmappedEvents returns events still awaiting mapping whose start time is
// at or after since, oldest first.
func (r *Registry) UnmappedEvents(ctx context.Context, since time.Time) ([]domain.NoaaEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM noaa_events
		WHERE status = 'unmapped' AND date_time_start >= $1
		ORDER BY date_time_start`, since)
	if err != nil {
		return nil, fmt.Errorf("query unmapped events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// EventsNeedingCombinedRef returns mapped events starting at or after since
// that have no combined reference file yet, oldest first.
func (r *Registry) EventsNeedingCombinedRef(ctx context.Context, since time.Time) ([]domain.NoaaEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM noaa_events e
		WHERE e.status = 'mapped' AND e.date_time_start >= $1
			AND NOT EXISTS (
				SELECT 1 FROM event_reference_files erf WHERE erf.event_id = e.id
			)
		ORDER BY e.date_time_start`, since)
	if err != nil {
		return nil, fmt.Errorf("query events needing combined ref: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// EventByID fetches a single event by its internal id.
func (r *Registry) EventByID(ctx context.Context, id int64) (domain.NoaaEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM noaa_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NoaaEvent{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.NoaaEvent{}, fmt.Errorf("query event %d: %w", id, err)
	}
	return e, nil
}

// LinkEventFiles attaches a set of product files and their individual
// reference files to an event and flips it to mapped, all in one
// transaction. The status flip is conditional on the row still being
// unmapped so that two concurrent mapping runs cannot both claim the same
// event; the loser gets ErrEventNotUnmapped and the whole transaction rolls
// back.
func (r *Registry) LinkEventFiles(ctx context.Context, eventID int64, files []domain.NcFile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin link event files: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, f := range files {
		if _, err := tx.Exec(ctx, `
			UPDATE nc_files SET event_id = $1 WHERE id = $2`, eventID, f.ID); err != nil {
			return fmt.Errorf("link nc file %d to event %d: %w", f.ID, eventID, err)
		}
		if f.RefFileID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE individual_reference_files SET event_id = $1 WHERE id = $2`,
				eventID, *f.RefFileID); err != nil {
				return fmt.Errorf("link ref file %d to event %d: %w", *f.RefFileID, eventID, err)
			}
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE noaa_events SET status = 'mapped'
		WHERE id = $1 AND status = 'unmapped'`, eventID)
	if err != nil {
		return fmt.Errorf("mark event %d mapped: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", eventID, ErrEventNotUnmapped)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit link event files: %w", err)
	}
	return nil
}

// MarkEventModified flags an event whose source row drifted on re-ingestion.
func (r *Registry) MarkEventModified(ctx context.Context, eventID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE noaa_events SET status = 'modified' WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark event %d modified: %w", eventID, err)
	}
	return nil
}

func collectEvents(rows pgx.Rows) ([]domain.NoaaEvent, error) {
	var events []domain.NoaaEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
