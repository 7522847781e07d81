package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	kafkaadapter "github.com/couchcryptid/storm-data-archive/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-archive/internal/adapter/kerchunk"
	"github.com/couchcryptid/storm-data-archive/internal/adapter/origin"
	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/checker"
	"github.com/couchcryptid/storm-data-archive/internal/kerchunker"
	"github.com/couchcryptid/storm-data-archive/internal/mapper"
	"github.com/couchcryptid/storm-data-archive/internal/uploader"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ingest new or republished NOAA storm-event files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob("check", func(ctx context.Context, a *app) (*batch.Summary, error) {
			c := checker.New(a.registry, a.cfg, a.logger, a.metrics)
			return c.Run(ctx)
		})
	},
}

var (
	uploadFrom     string
	uploadTo       string
	uploadProducts []string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Copy product files from the origin server into object storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDate(uploadFrom)
		if err != nil {
			return err
		}
		to, err := parseDate(uploadTo)
		if err != nil {
			return err
		}
		if to.Before(from) {
			return fmt.Errorf("--to %s is before --from %s", uploadTo, uploadFrom)
		}

		return runJob("upload", func(ctx context.Context, a *app) (*batch.Summary, error) {
			org, err := origin.Dial(a.cfg, a.logger)
			if err != nil {
				return nil, err
			}
			defer func() { _ = org.Close() }()

			u := uploader.New(org, a.objects, a.registry, a.logger, a.metrics)
			return u.Run(ctx, from, to, uploadProducts)
		})
	},
}

var indexProduct string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build individual chunk indexes for unindexed product files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob("index", func(ctx context.Context, a *app) (*batch.Summary, error) {
			idx := kerchunk.NewCommandIndexer(a.cfg.IndexerCommand, a.logger)
			k := kerchunker.New(a.registry, a.objects, idx, a.cfg, a.logger, a.metrics)
			return k.BuildIndividual(ctx, indexProduct)
		})
	},
}

var mapSince string

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Link unmapped events to their overlapping product files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob("map", func(ctx context.Context, a *app) (*batch.Summary, error) {
			since, err := sinceOrStartYear(mapSince, a)
			if err != nil {
				return nil, err
			}

			var notifier mapper.Notifier
			if a.cfg.KafkaEnabled {
				n := kafkaadapter.NewNotifier(a.cfg, a.logger)
				defer func() { _ = n.Close() }()
				notifier = n
				a.logger.Info("mapped-event notification enabled",
					"topic", a.cfg.KafkaMappedTopic)
			}

			m := mapper.New(a.registry, notifier, a.logger, a.metrics)
			return m.MapEvents(ctx, since)
		})
	},
}

var combineSince string

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Build combined per-event chunk indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob("combine", func(ctx context.Context, a *app) (*batch.Summary, error) {
			since, err := sinceOrStartYear(combineSince, a)
			if err != nil {
				return nil, err
			}

			idx := kerchunk.NewCommandIndexer(a.cfg.IndexerCommand, a.logger)
			k := kerchunker.New(a.registry, a.objects, idx, a.cfg, a.logger, a.metrics)
			return k.Combine(ctx, since)
		})
	},
}

// sinceOrStartYear resolves a --since flag, defaulting to January 1st of
// the configured start year.
func sinceOrStartYear(flag string, a *app) (time.Time, error) {
	if flag == "" {
		return time.Date(a.cfg.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	return parseDate(flag)
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFrom, "from", "", "first day to copy (YYYY-MM-DD)")
	uploadCmd.Flags().StringVar(&uploadTo, "to", "", "last day to copy (YYYY-MM-DD); today is always excluded")
	uploadCmd.Flags().StringSliceVar(&uploadProducts, "products", nil,
		"products to copy (hail, rainfall, singleradar); default all")
	_ = uploadCmd.MarkFlagRequired("from")
	_ = uploadCmd.MarkFlagRequired("to")

	indexCmd.Flags().StringVar(&indexProduct, "product", "", "only index files of this product")

	mapCmd.Flags().StringVar(&mapSince, "since", "", "only map events starting on or after this date (YYYY-MM-DD)")
	combineCmd.Flags().StringVar(&combineSince, "since", "", "only combine events starting on or after this date (YYYY-MM-DD)")
}
