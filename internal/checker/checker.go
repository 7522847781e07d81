// Package checker ingests NOAA storm-event source files. It scans the
// public directory listing for per-year CSVs, parses the rows that fall in
// the radar coverage area, and records them as unmapped events.
package checker

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/config"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
)

// Store is the registry surface the checker needs.
type Store interface {
	NoaaRecords(ctx context.Context) (map[int]domain.NoaaRecord, error)
	UpsertNoaaRecord(ctx context.Context, rec domain.NoaaRecord) (domain.NoaaRecord, error)
	UpsertEvents(ctx context.Context, events []domain.NoaaEvent) error
}

// Checker compares the NOAA listing with the ingested records and pulls in
// new or republished years.
type Checker struct {
	store      Store
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	baseURL        string
	startYear      int
	stateFilter    string
	listingTimeout time.Duration
	batchSize      int
	now            func() time.Time
}

// New builds a Checker from the archive configuration.
func New(store Store, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Checker {
	return &Checker{
		store:          store,
		httpClient:     &http.Client{},
		logger:         logger,
		metrics:        metrics,
		baseURL:        cfg.NoaaBaseURL,
		startYear:      cfg.StartYear,
		stateFilter:    cfg.StateFilter,
		listingTimeout: cfg.ListingTimeout,
		batchSize:      cfg.RegistryBatchSize,
		now:            domain.Now,
	}
}

// Run performs one listing check. Each year is one batch item: new years
// are ingested, republished years are flagged, and unchanged years are
// skipped.
func (c *Checker) Run(ctx context.Context) (*batch.Summary, error) {
	summary := &batch.Summary{}

	listed := c.filterYearFiles(c.fetchListing(ctx))
	if len(listed) == 0 {
		c.logger.Info("no year files found in listing")
		return summary, nil
	}

	records, err := c.store.NoaaRecords(ctx)
	if err != nil {
		return summary, fmt.Errorf("load ingested records: %w", err)
	}

	years := make([]int, 0, len(listed))
	for year := range listed {
		years = append(years, year)
	}
	slices.Sort(years)

	for _, year := range years {
		file := listed[year]
		item := fmt.Sprintf("year %d", year)

		record, known := records[year]
		switch {
		case !known:
			if err := c.ingestYear(ctx, file); err != nil {
				c.logger.Error("ingest year failed",
					slog.Int("year", year), slog.Any("error", err))
				summary.Fail(item, err)
				continue
			}
			summary.Succeed(item)

		case !record.LastModified.Equal(file.LastModified):
			// The year was republished. Re-ingesting and diffing the
			// stored events is tracked separately; for now only the
			// record's publication date moves.
			// TODO: diff republished rows and flag drifted events as modified.
			if _, err := c.store.UpsertNoaaRecord(ctx, domain.NoaaRecord{
				FileYear:     year,
				LastModified: file.LastModified,
			}); err != nil {
				summary.Fail(item, err)
				continue
			}
			c.logger.Warn("year file republished",
				slog.Int("year", year),
				slog.Time("previous", record.LastModified),
				slog.Time("current", file.LastModified))
			summary.Succeed(item)

		default:
			summary.Skip(item, "unchanged")
		}
	}

	return summary, nil
}

// ingestYear downloads one per-year CSV, parses it, and stores the record
// and its events.
func (c *Checker) ingestYear(ctx context.Context, file yearFile) error {
	record, err := c.store.UpsertNoaaRecord(ctx, domain.NoaaRecord{
		FileYear:     file.Year,
		LastModified: file.LastModified,
	})
	if err != nil {
		return err
	}

	events, err := c.downloadEvents(ctx, file.Filename, record.ID)
	if err != nil {
		return err
	}
	c.logger.Info("parsed year file",
		slog.Int("year", file.Year), slog.Int("events", len(events)))

	for start := 0; start < len(events); start += c.batchSize {
		end := min(start+c.batchSize, len(events))
		if err := c.store.UpsertEvents(ctx, events[start:end]); err != nil {
			return fmt.Errorf("store events %d-%d: %w", start, end, err)
		}
		c.metrics.RegistryFlushSize.Observe(float64(end - start))
	}
	return nil
}

// downloadEvents fetches a gzipped CSV and extracts the rows in scope.
func (c *Checker) downloadEvents(ctx context.Context, filename string, recordID int64) ([]domain.NoaaEvent, error) {
	fileURL, err := url.JoinPath(c.baseURL, filename)
	if err != nil {
		return nil, fmt.Errorf("build file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", filename, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", filename, resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", filename, err)
	}
	defer func() { _ = gz.Close() }()

	return c.parseEvents(gz, recordID)
}

// parseEvents reads CSV rows and keeps the ones inside the coverage area
// with a recognized event type. Malformed rows are skipped with a warning.
func (c *Checker) parseEvents(r io.Reader, recordID int64) ([]domain.NoaaEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}

	known := make(map[string]struct{})
	for _, category := range domain.KnownCategories() {
		known[category] = struct{}{}
	}

	var events []domain.NoaaEvent
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("skipping malformed csv row", slog.Any("error", err))
			continue
		}

		row := make(map[string]string, len(columns))
		for name, i := range columns {
			if i < len(fields) {
				row[name] = fields[i]
			}
		}

		if row["STATE"] != c.stateFilter {
			continue
		}
		if !inCoverageArea(row["CZ_NAME"]) {
			continue
		}
		if _, ok := known[row["EVENT_TYPE"]]; !ok {
			continue
		}

		event, err := domain.EventFromCSVRow(row, recordID)
		if err != nil {
			c.logger.Warn("skipping unparseable event row",
				slog.String("event_id", row["EVENT_ID"]), slog.Any("error", err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
