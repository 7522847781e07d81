// Package uploader copies product files from the origin radar server into
// object storage, keeping the origin's directory layout under a product
// prefix and registering every stored file.
package uploader

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
)

const uploadRetries = 3

// productBasePaths maps each product to its directory on the origin server.
var productBasePaths = map[string]string{
	domain.ProductHail:        "/mnt/data/hydro",
	domain.ProductRainfall:    "/mnt/data/qpe",
	domain.ProductSingleRadar: "/mnt/data/moments",
}

// radarSites are the single-radar site directories in scope.
var radarSites = []string{"XMDL", "XJCO", "XMSQ", "XFTW", "XUNT"}

// Origin lists and fetches files from the radar file server.
type Origin interface {
	ListDir(path string) ([]string, error)
	Download(remotePath, localPath string) error
}

// ObjectStore writes product files into the archive bucket.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Store is the registry surface the uploader needs.
type Store interface {
	UpsertNcFile(ctx context.Context, f domain.NcFile) (domain.NcFile, error)
	UpsertLastUploadedDate(ctx context.Context, d domain.LastUploadedDate) error
	RecordFailedUpload(ctx context.Context, f domain.FailedUpload) error
}

// Uploader drives one origin-to-bucket copy run.
type Uploader struct {
	origin  Origin
	objects ObjectStore
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New builds an Uploader.
func New(origin Origin, objects ObjectStore, store Store, logger *slog.Logger, metrics *observability.Metrics) *Uploader {
	return &Uploader{
		origin:  origin,
		objects: objects,
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     domain.Now,
	}
}

// Run copies every product file dated within [from, to] for the given
// products. Today is always excluded so only completed days are archived.
// Each file is one batch item; a file that exhausts its upload retries is
// recorded in failed_uploads and the run continues.
func (u *Uploader) Run(ctx context.Context, from, to time.Time, products []string) (*batch.Summary, error) {
	if len(products) == 0 {
		products = []string{domain.ProductHail, domain.ProductRainfall, domain.ProductSingleRadar}
	}

	days := u.daysInRange(from, to)
	summary := &batch.Summary{}
	if len(days) == 0 {
		u.logger.Info("no completed days in range")
		return summary, nil
	}

	tempDir, err := os.MkdirTemp("", "origin-transfer-")
	if err != nil {
		return summary, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	for _, product := range products {
		basePath, ok := productBasePaths[product]
		if !ok {
			u.logger.Warn("unknown product", slog.String("product", product))
			continue
		}
		u.logger.Info("processing product",
			slog.String("product", product), slog.Int("days", len(days)))

		if product == domain.ProductSingleRadar {
			radars, err := u.listRadarDirs(basePath)
			if err != nil {
				return summary, err
			}
			for _, radar := range radars {
				u.processDirectory(ctx, summary,
					path.Join(basePath, radar), path.Join(product, radar), product, days, tempDir)
			}
			continue
		}

		u.processDirectory(ctx, summary, basePath, product, product, days, tempDir)
	}

	return summary, nil
}

// daysInRange expands [from, to] into YYYYMMDD directory names, capping the
// range at yesterday.
func (u *Uploader) daysInRange(from, to time.Time) []string {
	yesterday := u.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	if to.After(yesterday) {
		to = yesterday
	}

	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("20060102"))
	}
	return days
}

func (u *Uploader) listRadarDirs(basePath string) ([]string, error) {
	entries, err := u.origin.ListDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("list radar dirs: %w", err)
	}
	var radars []string
	for _, e := range entries {
		if slices.Contains(radarSites, e) {
			radars = append(radars, e)
		}
	}
	slices.Sort(radars)
	return radars, nil
}

// processDirectory copies every in-range date directory under basePath into
// object storage under s3Root.
func (u *Uploader) processDirectory(ctx context.Context, summary *batch.Summary, basePath, s3Root, product string, days []string, tempDir string) {
	entries, err := u.origin.ListDir(basePath)
	if err != nil {
		u.logger.Error("list date dirs failed",
			slog.String("path", basePath), slog.Any("error", err))
		summary.Fail(basePath, err)
		return
	}

	var relevant []string
	for _, e := range entries {
		if slices.Contains(days, e) {
			relevant = append(relevant, e)
		}
	}
	slices.Sort(relevant)
	if len(relevant) == 0 {
		u.logger.Info("no relevant date dirs", slog.String("path", basePath))
		return
	}

	for _, dateDir := range relevant {
		u.processDateDir(ctx, summary, basePath, s3Root, product, dateDir, tempDir)

		date, err := time.ParseInLocation("20060102", dateDir, time.UTC)
		if err != nil {
			continue
		}
		if err := u.store.UpsertLastUploadedDate(ctx, domain.LastUploadedDate{
			Product: product,
			Date:    date,
		}); err != nil {
			u.logger.Error("record last uploaded date failed",
				slog.String("product", product), slog.Any("error", err))
		}
	}
}

func (u *Uploader) processDateDir(ctx context.Context, summary *batch.Summary, basePath, s3Root, product, dateDir, tempDir string) {
	dirPath := path.Join(basePath, dateDir)
	entries, err := u.origin.ListDir(dirPath)
	if err != nil {
		u.logger.Error("list files failed",
			slog.String("path", dirPath), slog.Any("error", err))
		summary.Fail(dirPath, err)
		return
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e, ".nc") || strings.HasSuffix(e, ".nc.gz") {
			files = append(files, e)
		}
	}
	u.logger.Info("scanning date dir",
		slog.String("path", dirPath), slog.Int("files", len(files)))

	localDir := path.Join(tempDir, product, dateDir)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		summary.Fail(dirPath, err)
		return
	}

	for _, filename := range files {
		remotePath := path.Join(dirPath, filename)
		if err := u.transferFile(ctx, remotePath, localDir, s3Root, filename, dateDir, product); err != nil {
			u.metrics.UploadFailures.Inc()
			summary.Fail(remotePath, err)
			continue
		}
		u.metrics.FilesUploaded.Inc()
		summary.Succeed(remotePath)
	}
}

// transferFile moves one file from origin to the bucket and registers it.
// A final upload failure is recorded durably and reported on the item, not
// raised.
func (u *Uploader) transferFile(ctx context.Context, remotePath, localDir, s3Root, filename, dateDir, product string) error {
	localPath := path.Join(localDir, filename)
	if err := u.origin.Download(remotePath, localPath); err != nil {
		return u.recordFailure(ctx, remotePath, product, dateDir, err)
	}
	defer func() { _ = os.Remove(localPath) }()

	key := path.Join(s3Root, dateDir, strings.TrimSuffix(filename, ".gz"))

	var lastErr error
	for attempt := 1; attempt <= uploadRetries; attempt++ {
		lastErr = u.uploadOnce(ctx, localPath, key)
		if lastErr == nil {
			break
		}
		u.logger.Warn("upload attempt failed",
			slog.String("key", key), slog.Int("attempt", attempt), slog.Any("error", lastErr))
	}
	if lastErr != nil {
		return u.recordFailure(ctx, remotePath, product, dateDir,
			fmt.Errorf("upload after %d attempts: %w", uploadRetries, lastErr))
	}

	dateTime, ok := domain.ParseFileTime(filename, product)
	if !ok {
		return fmt.Errorf("unparseable filename %s", filename)
	}
	if _, err := u.store.UpsertNcFile(ctx, domain.NcFile{
		S3Path:   key,
		DateTime: dateTime,
		Product:  product,
	}); err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}

	u.logger.Info("uploaded file", slog.String("key", key))
	return nil
}

// uploadOnce streams the local file, transparently gunzipping .gz members.
func (u *Uploader) uploadOnce(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	var body io.Reader = f
	if strings.HasSuffix(localPath, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("decompress %s: %w", localPath, err)
		}
		defer func() { _ = gz.Close() }()
		body = gz
	}

	return u.objects.Put(ctx, key, body, "application/x-netcdf")
}

func (u *Uploader) recordFailure(ctx context.Context, remotePath, product, dateDir string, cause error) error {
	u.logger.Error("file transfer failed",
		slog.String("remote_path", remotePath), slog.Any("error", cause))

	if err := u.store.RecordFailedUpload(ctx, domain.FailedUpload{
		RemotePath:  remotePath,
		Product:     product,
		DateDir:     dateDir,
		LastError:   cause.Error(),
		LastAttempt: u.now(),
	}); err != nil {
		u.logger.Error("record failed upload failed",
			slog.String("remote_path", remotePath), slog.Any("error", err))
	}
	return cause
}
