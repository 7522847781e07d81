// Package kerchunker builds chunk-index reference files over the archived
// NetCDF products: one individual reference per file, and one combined
// reference per mapped storm event. Index extraction is CPU-bound and runs
// through a weighted semaphore; registry writes happen afterwards in
// fixed-size batches.
package kerchunker

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-archive/internal/config"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
	"github.com/couchcryptid/storm-data-archive/internal/registry"
)

// Indexer produces the reference document for one local NetCDF file.
type Indexer interface {
	Index(ctx context.Context, path string) ([]byte, error)
}

// ObjectStore is the bucket surface the kerchunker needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	DownloadToFile(ctx context.Context, key, dir string) (string, error)
}

// Store is the registry surface the kerchunker needs.
type Store interface {
	UnindexedNcFiles(ctx context.Context, product string) ([]domain.NcFile, error)
	LinkFilePair(ctx context.Context, pair registry.RefPair) (registry.RefPair, error)
	EventsNeedingCombinedRef(ctx context.Context, since time.Time) ([]domain.NoaaEvent, error)
	RefFilesForEvent(ctx context.Context, eventID int64) ([]domain.IndividualRefFile, error)
	UpsertEventRefFile(ctx context.Context, ref domain.EventRefFile) (domain.EventRefFile, error)
}

// Kerchunker drives individual and combined reference builds.
type Kerchunker struct {
	store   Store
	objects ObjectStore
	indexer Indexer
	logger  *slog.Logger
	metrics *observability.Metrics

	workers   int
	batchSize int
}

// New builds a Kerchunker from the archive configuration.
func New(store Store, objects ObjectStore, indexer Indexer, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Kerchunker {
	return &Kerchunker{
		store:     store,
		objects:   objects,
		indexer:   indexer,
		logger:    logger,
		metrics:   metrics,
		workers:   cfg.IndexWorkers,
		batchSize: cfg.RegistryBatchSize,
	}
}
