// Package mapper links storm events to the product files that cover their
// time window and flips them to mapped. Each event is processed in one
// registry transaction, so a mapped event always has its files attached.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/domain"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
	"github.com/couchcryptid/storm-data-archive/internal/registry"
)

// Store is the registry surface the mapper needs.
type Store interface {
	UnmappedEvents(ctx context.Context, since time.Time) ([]domain.NoaaEvent, error)
	MatchingNcFiles(ctx context.Context, products []string, w domain.Window) ([]domain.NcFile, error)
	LinkEventFiles(ctx context.Context, eventID int64, files []domain.NcFile) error
}

// Notifier publishes mapped events downstream. Optional; nil disables
// notification.
type Notifier interface {
	NotifyMapped(ctx context.Context, mapped []domain.MappedEvent) error
}

// Mapper drives one mapping run.
type Mapper struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New builds a Mapper. notifier may be nil.
func New(store Store, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Mapper {
	return &Mapper{store: store, notifier: notifier, logger: logger, metrics: metrics}
}

// FindOverlapping returns the product files covering an event category's
// padded time window. An empty result is not an error.
func (m *Mapper) FindOverlapping(ctx context.Context, category string, start, end time.Time) ([]domain.NcFile, error) {
	products, ok := domain.ProductsFor(category)
	if !ok {
		return nil, fmt.Errorf("unrecognized event category %q", category)
	}
	return m.store.MatchingNcFiles(ctx, products, domain.PadWindow(start, end))
}

// MapEvents maps every unmapped event starting at or after since. Events
// with no overlapping files stay unmapped and are revisited on the next
// run. A mapping transaction that fails rolls back wholly; the run
// continues with the next event.
func (m *Mapper) MapEvents(ctx context.Context, since time.Time) (*batch.Summary, error) {
	summary := &batch.Summary{}

	events, err := m.store.UnmappedEvents(ctx, since)
	if err != nil {
		return summary, fmt.Errorf("list unmapped events: %w", err)
	}
	m.logger.Info("mapping events", slog.Int("events", len(events)))

	var mapped []domain.MappedEvent
	for _, event := range events {
		item := "event " + strconv.FormatInt(event.ID, 10)

		files, err := m.FindOverlapping(ctx, event.Product, event.Start, event.End)
		if err != nil {
			m.logger.Warn("cannot resolve files for event",
				slog.Int64("event", event.ID),
				slog.String("category", event.Product),
				slog.Any("error", err))
			summary.Skip(item, err.Error())
			continue
		}
		if len(files) == 0 {
			m.logger.Warn("no matching files for event",
				slog.Int64("event", event.ID),
				slog.String("category", event.Product),
				slog.Time("start", event.Start),
				slog.Time("end", event.End))
			summary.Skip(item, "no matching files")
			continue
		}

		if err := m.store.LinkEventFiles(ctx, event.ID, files); err != nil {
			if errors.Is(err, registry.ErrEventNotUnmapped) {
				m.logger.Info("event claimed by another run", slog.Int64("event", event.ID))
				summary.Skip(item, "already mapped")
				continue
			}
			m.logger.Error("mapping transaction failed",
				slog.Int64("event", event.ID), slog.Any("error", err))
			m.metrics.MappingFailures.Inc()
			summary.Fail(item, err)
			continue
		}

		m.logger.Info("mapped event",
			slog.Int64("event", event.ID), slog.Int("files", len(files)))
		m.metrics.EventsMapped.Inc()
		summary.Succeed(item)
		mapped = append(mapped, domain.MappedEvent{Event: event, Files: files})
	}

	// Notification is best effort: the registry already holds the truth.
	if m.notifier != nil && len(mapped) > 0 {
		if err := m.notifier.NotifyMapped(ctx, mapped); err != nil {
			m.logger.Warn("publish mapped events failed", slog.Any("error", err))
		}
	}

	return summary, nil
}
