package kerchunker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

// combined is one successfully built combined reference, pending its
// registry row.
type combined struct {
	event  domain.NoaaEvent
	refKey string
}

// errNoRefFiles marks an event skipped because nothing is linked to it yet.
type errNoRefFiles struct{ eventID int64 }

func (e errNoRefFiles) Error() string {
	return fmt.Sprintf("event %d has no individual reference files", e.eventID)
}

// Combine builds one combined reference file for every mapped event
// starting at or after since that does not have one yet. Events with no
// linked individual references are skipped, not failed.
func (k *Kerchunker) Combine(ctx context.Context, since time.Time) (*batch.Summary, error) {
	summary := &batch.Summary{}

	events, err := k.store.EventsNeedingCombinedRef(ctx, since)
	if err != nil {
		return summary, fmt.Errorf("list events needing combined reference: %w", err)
	}
	k.logger.Info("building combined references", slog.Int("events", len(events)))

	// Phase 1: merge and upload combined documents concurrently.
	sem := semaphore.NewWeighted(int64(k.workers))
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []combined
	)
	for _, event := range events {
		if err := sem.Acquire(ctx, 1); err != nil {
			return summary, fmt.Errorf("acquire worker: %w", err)
		}
		wg.Add(1)
		go func(event domain.NoaaEvent) {
			defer wg.Done()
			defer sem.Release(1)

			item := "event " + strconv.FormatInt(event.ID, 10)
			refKey, err := k.combineOne(ctx, event)
			if err != nil {
				var noRefs errNoRefFiles
				if errors.As(err, &noRefs) {
					k.logger.Warn("skipping event without linked references",
						slog.Int64("event", event.ID))
					summary.Skip(item, err.Error())
					return
				}
				k.logger.Error("combine failed",
					slog.Int64("event", event.ID), slog.Any("error", err))
				summary.Fail(item, err)
				return
			}
			mu.Lock()
			results = append(results, combined{event: event, refKey: refKey})
			mu.Unlock()
		}(event)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].event.ID < results[j].event.ID })

	// Phase 2: record combined references in batches.
	for start := 0; start < len(results); start += k.batchSize {
		end := min(start+k.batchSize, len(results))
		flushed := 0
		for _, r := range results[start:end] {
			item := "event " + strconv.FormatInt(r.event.ID, 10)

			product, ok := domain.PrimaryProductFor(r.event.Product)
			if !ok {
				summary.Fail(item, fmt.Errorf("no product mapping for category %q", r.event.Product))
				continue
			}
			if _, err := k.store.UpsertEventRefFile(ctx, domain.EventRefFile{
				S3Path:  r.refKey,
				Product: product,
				EventID: r.event.ID,
			}); err != nil {
				k.logger.Error("record combined reference failed",
					slog.Int64("event", r.event.ID), slog.Any("error", err))
				summary.Fail(item, err)
				continue
			}
			flushed++
			k.metrics.CombinedBuilt.Inc()
			summary.Succeed(item)
		}
		k.metrics.RegistryFlushSize.Observe(float64(flushed))
	}

	return summary, nil
}

// combineOne merges the individual reference documents linked to one event
// and uploads the result.
func (k *Kerchunker) combineOne(ctx context.Context, event domain.NoaaEvent) (string, error) {
	refs, err := k.store.RefFilesForEvent(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("list reference files: %w", err)
	}
	if len(refs) == 0 {
		return "", errNoRefFiles{eventID: event.ID}
	}

	var (
		times []time.Time
		docs  []refDocument
	)
	for _, ref := range refs {
		t, ok := domain.InferFileTime(path.Base(ref.S3Path))
		if !ok {
			k.logger.Warn("skipping reference with unparseable name",
				slog.String("s3_path", ref.S3Path))
			continue
		}

		data, err := k.objects.GetBytes(ctx, ref.S3Path)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", ref.S3Path, err)
		}
		doc, err := parseRefDocument(data)
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", ref.S3Path, err)
		}

		times = append(times, t)
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return "", errNoRefFiles{eventID: event.ID}
	}

	merged, err := combineDocs(times, docs)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("encode combined document: %w", err)
	}

	refKey := path.Join("event_ref_files", "noaa", strconv.FormatInt(event.ID, 10)+".json")
	if err := k.objects.Put(ctx, refKey, bytes.NewReader(payload), "application/json"); err != nil {
		return "", err
	}
	return refKey, nil
}
