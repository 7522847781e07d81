package checker

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore records checker writes in memory.
type fakeStore struct {
	records    map[int]domain.NoaaRecord
	upserted   []domain.NoaaRecord
	events     []domain.NoaaEvent
	nextID     int64
	eventsErr  error
	recordsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int]domain.NoaaRecord), nextID: 1}
}

func (f *fakeStore) NoaaRecords(context.Context) (map[int]domain.NoaaRecord, error) {
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	out := make(map[int]domain.NoaaRecord, len(f.records))
	for k, v := range f.records {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UpsertNoaaRecord(_ context.Context, rec domain.NoaaRecord) (domain.NoaaRecord, error) {
	if existing, ok := f.records[rec.FileYear]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = f.nextID
		f.nextID++
	}
	f.records[rec.FileYear] = rec
	f.upserted = append(f.upserted, rec)
	return rec, nil
}

func (f *fakeStore) UpsertEvents(_ context.Context, events []domain.NoaaEvent) error {
	if f.eventsErr != nil {
		return f.eventsErr
	}
	f.events = append(f.events, events...)
	return nil
}

const csvHeader = "EVENT_ID,STATE,CZ_NAME,EVENT_TYPE,BEGIN_DATE_TIME,END_DATE_TIME," +
	"BEGIN_LAT,BEGIN_LON,END_LAT,END_LON,BEGIN_LOCATION,END_LOCATION," +
	"MAGNITUDE,TOR_F_SCALE,DAMAGE_PROPERTY,DAMAGE_CROPS," +
	"DEATHS_DIRECT,DEATHS_INDIRECT,INJURIES_DIRECT,INJURIES_INDIRECT," +
	"EVENT_NARRATIVE,EPISODE_NARRATIVE"

func csvRow(eventID, state, county, eventType string) string {
	return strings.Join([]string{
		eventID, state, county, eventType,
		"09-MAY-19 15:54:00", "09-MAY-19 16:10:00",
		"32.1", "-97.5", "32.2", "-97.4", "CHAPPEL", "CHAPPEL",
		"1.75", "", "10.00K", "0.00K",
		"0", "0", "0", "0",
		"Hail reported.", "Severe storms crossed the area.",
	}, ",")
}

func gzipString(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestChecker(store *fakeStore, baseURL string) *Checker {
	return &Checker{
		store:          store,
		httpClient:     &http.Client{},
		logger:         discardLogger(),
		metrics:        observability.NewMetricsForTesting(),
		baseURL:        baseURL,
		startYear:      2016,
		stateFilter:    "TEXAS",
		listingTimeout: time.Second,
		batchSize:      200,
		now: func() time.Time {
			return time.Date(2019, time.December, 1, 0, 0, 0, 0, time.UTC)
		},
	}
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
		<a href="StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz">2019</a>
		<a href="../">up</a>
		<a>no href</a>
	</body></html>`

	links, err := extractLinks(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, []string{"StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz", "../"}, links)
}

func TestFilterYearFiles(t *testing.T) {
	c := newTestChecker(newFakeStore(), "http://example.invalid")

	files := c.filterYearFiles([]string{
		"StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz",
		"StormEvents_details-ftp_v1.0_d2015_c20240117.csv.gz", // before start year
		"StormEvents_details-ftp_v1.0_d2020_c20240117.csv.gz", // after current year
		"StormEvents_fatalities-ftp_v1.0_d2019_c20240117.csv.gz",
		"readme.txt",
	})

	require.Len(t, files, 1)
	got := files[2019]
	assert.Equal(t, 2019, got.Year)
	assert.Equal(t, time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC), got.LastModified)
}

func TestRunIngestsNewYear(t *testing.T) {
	listing := `<html><body><a href="StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz">x</a></body></html>`
	csvBody := strings.Join([]string{
		csvHeader,
		csvRow("801234", "TEXAS", "DALLAS", "Hail"),
		csvRow("801235", "OKLAHOMA", "DALLAS", "Hail"),  // wrong state
		csvRow("801236", "TEXAS", "TRAVIS", "Hail"),     // outside coverage area
		csvRow("801237", "TEXAS", "DALLAS", "Wildfire"), // unrecognized type
	}, "\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".csv.gz") {
			_, _ = w.Write(gzipString(t, csvBody))
			return
		}
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	store := newFakeStore()
	c := newTestChecker(store, srv.URL)

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	succeeded, skipped, failed := summary.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Zero(t, skipped)
	assert.Zero(t, failed)

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.Equal(t, int64(801234), event.EventID)
	assert.Equal(t, "Hail", event.Product)
	assert.Equal(t, domain.StatusUnmapped, event.Status)
	assert.Equal(t, "DALLAS", event.County)
	assert.Equal(t, int64(10000), event.DamageProperty)
}

func TestRunSkipsUnchangedYear(t *testing.T) {
	listing := `<html><body><a href="StormEvents_details-ftp_v1.0_d2019_c20240117.csv.gz">x</a></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	store := newFakeStore()
	store.records[2019] = domain.NoaaRecord{
		ID:           1,
		FileYear:     2019,
		LastModified: time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC),
	}

	c := newTestChecker(store, srv.URL)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	succeeded, skipped, failed := summary.Counts()
	assert.Zero(t, succeeded)
	assert.Equal(t, 1, skipped)
	assert.Zero(t, failed)
	assert.Empty(t, store.events)
}

func TestRunFlagsRepublishedYear(t *testing.T) {
	listing := `<html><body><a href="StormEvents_details-ftp_v1.0_d2019_c20240620.csv.gz">x</a></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	store := newFakeStore()
	store.records[2019] = domain.NoaaRecord{
		ID:           1,
		FileYear:     2019,
		LastModified: time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC),
	}

	c := newTestChecker(store, srv.URL)
	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	succeeded, _, _ := summary.Counts()
	assert.Equal(t, 1, succeeded)

	assert.Equal(t, time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC),
		store.records[2019].LastModified)
	assert.Empty(t, store.events, "republished diffing not performed yet")
}

func TestRunDegradesWhenListingTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	store := newFakeStore()
	c := newTestChecker(store, srv.URL)
	c.listingTimeout = 20 * time.Millisecond

	summary, err := c.Run(context.Background())
	require.NoError(t, err)

	succeeded, skipped, failed := summary.Counts()
	assert.Zero(t, succeeded+skipped+failed)
}

func TestParseEventsSkipsMalformedRows(t *testing.T) {
	body := strings.Join([]string{
		csvHeader,
		csvRow("801234", "TEXAS", "DALLAS", "Hail"),
		csvRow("not-a-number", "TEXAS", "DALLAS", "Hail"),
	}, "\n")

	c := newTestChecker(newFakeStore(), "http://example.invalid")
	events, err := c.parseEvents(strings.NewReader(body), 7)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].NoaaRecordID)
}
