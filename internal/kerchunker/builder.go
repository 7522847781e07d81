package kerchunker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/registry"
)

// refKeyFor places the reference document next to its source file under the
// ref_files prefix: rainfall/20240101/20240101_000000.nc →
// ref_files/rainfall/20240101/20240101_000000.json.
func refKeyFor(s3Path string) string {
	dir := path.Dir(s3Path)
	base := strings.TrimSuffix(path.Base(s3Path), ".nc") + ".json"
	return path.Join("ref_files", dir, base)
}

// BuildIndividual indexes every registered product file that has no
// reference file yet. An empty product covers all products. Builds run
// concurrently; registry linking happens afterwards in batches. Per-file
// failures are recorded and skipped.
func (k *Kerchunker) BuildIndividual(ctx context.Context, product string) (*batch.Summary, error) {
	summary := &batch.Summary{}

	files, err := k.store.UnindexedNcFiles(ctx, product)
	if err != nil {
		return summary, fmt.Errorf("list unindexed files: %w", err)
	}
	k.logger.Info("building individual references", slog.Int("files", len(files)))
	if len(files) == 0 {
		return summary, nil
	}

	tempDir, err := os.MkdirTemp("", "kerchunk-")
	if err != nil {
		return summary, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	// Phase 1: build and upload reference documents concurrently.
	sem := semaphore.NewWeighted(int64(k.workers))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		pairs []registry.RefPair
	)
	for _, f := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			return summary, fmt.Errorf("acquire worker: %w", err)
		}
		wg.Add(1)
		go func(f domain.NcFile) {
			defer wg.Done()
			defer sem.Release(1)

			pair, err := k.buildOne(ctx, f, tempDir)
			if err != nil {
				k.logger.Error("build reference failed",
					slog.String("s3_path", f.S3Path), slog.Any("error", err))
				k.metrics.IndexFailures.Inc()
				summary.Fail(f.S3Path, err)
				return
			}
			mu.Lock()
			pairs = append(pairs, pair)
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	// Phase 2: link pairs in the registry in fixed-size batches.
	for start := 0; start < len(pairs); start += k.batchSize {
		end := min(start+k.batchSize, len(pairs))
		flushed := 0
		for _, pair := range pairs[start:end] {
			if _, err := k.store.LinkFilePair(ctx, pair); err != nil {
				k.logger.Error("link file pair failed",
					slog.String("s3_path", pair.NcFile.S3Path), slog.Any("error", err))
				k.metrics.IndexFailures.Inc()
				summary.Fail(pair.NcFile.S3Path, err)
				continue
			}
			flushed++
			k.metrics.IndexesBuilt.Inc()
			summary.Succeed(pair.NcFile.S3Path)
		}
		k.metrics.RegistryFlushSize.Observe(float64(flushed))
	}

	return summary, nil
}

// buildOne downloads a product file, runs the indexer on it, and uploads
// the resulting document.
func (k *Kerchunker) buildOne(ctx context.Context, f domain.NcFile, tempDir string) (registry.RefPair, error) {
	localPath, err := k.objects.DownloadToFile(ctx, f.S3Path, tempDir)
	if err != nil {
		return registry.RefPair{}, err
	}
	defer func() { _ = os.Remove(localPath) }()

	doc, err := k.indexer.Index(ctx, localPath)
	if err != nil {
		return registry.RefPair{}, err
	}

	refKey := refKeyFor(f.S3Path)
	if err := k.objects.Put(ctx, refKey, bytes.NewReader(doc), "application/json"); err != nil {
		return registry.RefPair{}, err
	}

	return registry.RefPair{
		NcFile: f,
		RefFile: domain.IndividualRefFile{
			S3Path:   refKey,
			DateTime: f.DateTime,
			Product:  f.Product,
		},
	}, nil
}
