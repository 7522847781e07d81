//go:build integration

package registry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRegistry brings up a throwaway PostgreSQL container, opens a
// Registry against it, and applies migrations.
func startRegistry(ctx context.Context, t *testing.T) *registry.Registry {
	t.Helper()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("storm_archive_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	reg, err := registry.Open(ctx, connStr, discardLogger())
	require.NoError(t, err, "open registry")
	t.Cleanup(reg.Close)

	require.NoError(t, reg.Migrate(ctx), "apply migrations")
	return reg
}

func seedEvent(ctx context.Context, t *testing.T, reg *registry.Registry, eventID int64, start, end time.Time) domain.NoaaEvent {
	t.Helper()

	rec, err := reg.UpsertNoaaRecord(ctx, domain.NoaaRecord{
		FileYear:     start.Year(),
		LastModified: time.Date(start.Year()+1, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, reg.UpsertEvents(ctx, []domain.NoaaEvent{{
		NoaaRecordID: rec.ID,
		EventID:      eventID,
		Product:      "Hail",
		Start:        start,
		End:          end,
		Status:       domain.StatusUnmapped,
		County:       "LLANO",
	}}))

	events, err := reg.UnmappedEvents(ctx, time.Time{})
	require.NoError(t, err)
	for _, e := range events {
		if e.EventID == eventID {
			return e
		}
	}
	t.Fatalf("seeded event %d not found among unmapped events", eventID)
	return domain.NoaaEvent{}
}

func TestUpsertNoaaRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	first, err := reg.UpsertNoaaRecord(ctx, domain.NoaaRecord{
		FileYear:     2019,
		LastModified: time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	second, err := reg.UpsertNoaaRecord(ctx, domain.NoaaRecord{
		FileYear:     2019,
		LastModified: time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same year keeps the same row")
	assert.Equal(t, time.June, second.LastModified.Month())

	records, err := reg.NoaaRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpsertEventsRefreshesWithoutResettingStatus(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	start := time.Date(2019, time.May, 9, 15, 54, 0, 0, time.UTC)
	ev := seedEvent(ctx, t, reg, 801234, start, start.Add(10*time.Minute))

	require.NoError(t, reg.LinkEventFiles(ctx, ev.ID, nil))

	// Re-ingesting the same NOAA row must not knock the event back to
	// unmapped.
	require.NoError(t, reg.UpsertEvents(ctx, []domain.NoaaEvent{{
		NoaaRecordID: ev.NoaaRecordID,
		EventID:      ev.EventID,
		Product:      "Hail",
		Start:        start,
		End:          start.Add(20 * time.Minute),
		Status:       domain.StatusUnmapped,
		County:       "LLANO",
	}}))

	got, err := reg.EventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMapped, got.Status)
	assert.Equal(t, start.Add(20*time.Minute), got.End.UTC())
}

func TestLinkFilePairTwoPhase(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	dt := time.Date(2023, time.June, 15, 14, 30, 0, 0, time.UTC)
	nc, err := reg.UpsertNcFile(ctx, domain.NcFile{
		S3Path:   "hail/20230615/COMPOSITE_20230615-143000.nc",
		DateTime: dt,
		Product:  domain.ProductHail,
	})
	require.NoError(t, err)
	require.Nil(t, nc.RefFileID)

	pair, err := reg.LinkFilePair(ctx, registry.RefPair{
		NcFile: nc,
		RefFile: domain.IndividualRefFile{
			S3Path:   "ref_files/hail/20230615/COMPOSITE_20230615-143000.json",
			DateTime: dt,
			Product:  domain.ProductHail,
		},
	})
	require.NoError(t, err)

	require.NotNil(t, pair.NcFile.RefFileID)
	require.NotNil(t, pair.RefFile.NcFileID)
	assert.Equal(t, pair.RefFile.ID, *pair.NcFile.RefFileID)
	assert.Equal(t, nc.ID, *pair.RefFile.NcFileID)

	// The file no longer counts as unindexed.
	unindexed, err := reg.UnindexedNcFiles(ctx, domain.ProductHail)
	require.NoError(t, err)
	assert.Empty(t, unindexed)

	// Relinking the same pair is idempotent.
	again, err := reg.LinkFilePair(ctx, registry.RefPair{NcFile: nc, RefFile: pair.RefFile})
	require.NoError(t, err)
	assert.Equal(t, pair.RefFile.ID, again.RefFile.ID)
}

func TestMatchingNcFilesWindowBoundariesInclusive(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	w := domain.Window{
		Start: time.Date(2023, time.June, 15, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2023, time.June, 15, 15, 0, 0, 0, time.UTC),
	}
	for _, f := range []struct {
		path string
		dt   time.Time
	}{
		{"hail/a.nc", w.Start.Add(-time.Second)},
		{"hail/b.nc", w.Start},
		{"hail/c.nc", w.Start.Add(30 * time.Minute)},
		{"hail/d.nc", w.End},
		{"hail/e.nc", w.End.Add(time.Second)},
	} {
		_, err := reg.UpsertNcFile(ctx, domain.NcFile{
			S3Path: f.path, DateTime: f.dt, Product: domain.ProductHail,
		})
		require.NoError(t, err)
	}

	got, err := reg.MatchingNcFiles(ctx, []string{domain.ProductHail}, w)
	require.NoError(t, err)

	paths := make([]string, 0, len(got))
	for _, f := range got {
		paths = append(paths, f.S3Path)
	}
	assert.Equal(t, []string{"hail/b.nc", "hail/c.nc", "hail/d.nc"}, paths)
}

func TestLinkEventFilesClaimsEventOnce(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	start := time.Date(2019, time.May, 9, 15, 54, 0, 0, time.UTC)
	ev := seedEvent(ctx, t, reg, 801235, start, start.Add(10*time.Minute))

	nc, err := reg.UpsertNcFile(ctx, domain.NcFile{
		S3Path:   "hail/20190509/COMPOSITE_20190509-155500.nc",
		DateTime: start.Add(time.Minute),
		Product:  domain.ProductHail,
	})
	require.NoError(t, err)

	require.NoError(t, reg.LinkEventFiles(ctx, ev.ID, []domain.NcFile{nc}))

	got, err := reg.EventByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMapped, got.Status)

	// The second claim loses and rolls back.
	err = reg.LinkEventFiles(ctx, ev.ID, []domain.NcFile{nc})
	require.ErrorIs(t, err, registry.ErrEventNotUnmapped)

	unmapped, err := reg.UnmappedEvents(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, unmapped)
}

// A rolled-back claim leaves earlier links untouched: the losing event's id
// must not appear on any file or reference row.
func TestLinkEventFilesRollbackKeepsPriorLinks(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	start := time.Date(2019, time.May, 9, 15, 54, 0, 0, time.UTC)
	first := seedEvent(ctx, t, reg, 801237, start, start.Add(10*time.Minute))
	second := seedEvent(ctx, t, reg, 801238, start, start.Add(10*time.Minute))

	nc, err := reg.UpsertNcFile(ctx, domain.NcFile{
		S3Path:   "hail/20190509/COMPOSITE_20190509-155600.nc",
		DateTime: start.Add(2 * time.Minute),
		Product:  domain.ProductHail,
	})
	require.NoError(t, err)

	pair, err := reg.LinkFilePair(ctx, registry.RefPair{
		NcFile: nc,
		RefFile: domain.IndividualRefFile{
			S3Path:   "ref_files/hail/20190509/COMPOSITE_20190509-155600.json",
			DateTime: nc.DateTime,
			Product:  domain.ProductHail,
		},
	})
	require.NoError(t, err)

	require.NoError(t, reg.LinkEventFiles(ctx, first.ID, []domain.NcFile{pair.NcFile}))
	require.NoError(t, reg.LinkEventFiles(ctx, second.ID, nil))

	// The already-mapped second event cannot take over the file. Its link
	// updates ran inside the failed transaction and must be gone.
	err = reg.LinkEventFiles(ctx, second.ID, []domain.NcFile{pair.NcFile})
	require.ErrorIs(t, err, registry.ErrEventNotUnmapped)

	got, err := reg.UpsertNcFile(ctx, domain.NcFile{
		S3Path: nc.S3Path, DateTime: nc.DateTime, Product: nc.Product,
	})
	require.NoError(t, err)
	require.NotNil(t, got.EventID)
	assert.Equal(t, first.ID, *got.EventID)

	refs, err := reg.RefFilesForEvent(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, pair.RefFile.ID, refs[0].ID)

	stolen, err := reg.RefFilesForEvent(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, stolen)
}

func TestEventsNeedingCombinedRef(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	start := time.Date(2019, time.May, 9, 15, 54, 0, 0, time.UTC)
	ev := seedEvent(ctx, t, reg, 801236, start, start.Add(10*time.Minute))

	// Unmapped events never need a combined ref.
	pending, err := reg.EventsNeedingCombinedRef(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, reg.LinkEventFiles(ctx, ev.ID, nil))

	pending, err = reg.EventsNeedingCombinedRef(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ev.ID, pending[0].ID)

	_, err = reg.UpsertEventRefFile(ctx, domain.EventRefFile{
		S3Path:  "event_ref_files/noaa/801236.json",
		Product: domain.ProductHail,
		EventID: ev.ID,
	})
	require.NoError(t, err)

	pending, err = reg.EventsNeedingCombinedRef(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestUploadTracking(t *testing.T) {
	ctx := context.Background()
	reg := startRegistry(ctx, t)

	_, err := reg.LastUploadedDate(ctx, domain.ProductRainfall)
	require.ErrorIs(t, err, registry.ErrNotFound)

	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.UpsertLastUploadedDate(ctx, domain.LastUploadedDate{
		Product: domain.ProductRainfall,
		Date:    day,
	}))
	require.NoError(t, reg.UpsertLastUploadedDate(ctx, domain.LastUploadedDate{
		Product: domain.ProductRainfall,
		Date:    day.AddDate(0, 0, 1),
	}))

	got, err := reg.LastUploadedDate(ctx, domain.ProductRainfall)
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, 1), got.Date.UTC())

	firstAttempt := time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)
	require.NoError(t, reg.RecordFailedUpload(ctx, domain.FailedUpload{
		RemotePath:  "/mnt/data/qpe/20240426/20240426_120000.nc.gz",
		Product:     domain.ProductRainfall,
		DateDir:     "20240426",
		LastError:   "connection reset",
		LastAttempt: firstAttempt,
	}))
	require.NoError(t, reg.RecordFailedUpload(ctx, domain.FailedUpload{
		RemotePath:  "/mnt/data/qpe/20240426/20240426_120000.nc.gz",
		Product:     domain.ProductRainfall,
		DateDir:     "20240426",
		LastError:   "permission denied",
		LastAttempt: firstAttempt.Add(time.Hour),
	}))

	fails, err := reg.FailedUploads(ctx)
	require.NoError(t, err)
	require.Len(t, fails, 1)
	assert.Equal(t, "permission denied", fails[0].LastError)
	assert.Equal(t, firstAttempt, fails[0].CreatedAt.UTC(), "creation time kept from first failure")
	assert.Equal(t, firstAttempt.Add(time.Hour), fails[0].LastAttempt.UTC())
}
