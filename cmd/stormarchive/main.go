// Command stormarchive drives the storm data archive: ingest NOAA event
// files, copy radar products into object storage, build individual and
// combined chunk indexes, and map events to their covering files.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-archive/internal/adapter/httpadapter"
	"github.com/couchcryptid/storm-data-archive/internal/adapter/objstore"
	"github.com/couchcryptid/storm-data-archive/internal/batch"
	"github.com/couchcryptid/storm-data-archive/internal/config"
	"github.com/couchcryptid/storm-data-archive/internal/observability"
	"github.com/couchcryptid/storm-data-archive/internal/registry"
)

var serveStatus bool

var rootCmd = &cobra.Command{
	Use:   "stormarchive",
	Short: "Archive NOAA storm events and the radar products covering them",
	Long: `stormarchive ingests NOAA storm-event CSVs, copies radar and rainfall
NetCDF files from the origin server into object storage, builds per-file
chunk indexes, maps events to time-overlapping files, and combines the
per-file indexes into one index per event.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&serveStatus, "serve-status", false,
		"expose /healthz, /readyz, and /metrics while the command runs")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(combineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the runtime every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *registry.Registry
	objects  *objstore.Store
	status   *httpadapter.Server
}

// newApp loads configuration, connects the registry, applies migrations,
// and optionally starts the status server.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	reg, err := registry.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := reg.Migrate(ctx); err != nil {
		reg.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	objects, err := objstore.New(ctx, cfg, logger)
	if err != nil {
		reg.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics, registry: reg, objects: objects}

	if serveStatus {
		a.status = httpadapter.NewServer(cfg.HTTPAddr, reg, logger)
		go func() {
			if err := a.status.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	return a, nil
}

func (a *app) close() {
	if a.status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.status.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("status server shutdown error", "error", err)
		}
	}
	a.registry.Close()
}

// runJob wraps a batch run with signal handling, run metrics, and summary
// logging. The command fails when any item failed.
func runJob(job string, run func(ctx context.Context, a *app) (*batch.Summary, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		slog.Error("startup failed", "job", job, "error", err)
		return err
	}
	defer a.close()

	a.metrics.RunActive.Set(1)
	defer a.metrics.RunActive.Set(0)
	started := time.Now()

	summary, err := run(ctx, a)
	a.metrics.RunDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		a.logger.Error("run failed", "job", job, "error", err)
		return err
	}

	succeeded, skipped, failed := summary.Counts()
	a.logger.Info("run complete",
		"job", job,
		"succeeded", succeeded,
		"skipped", skipped,
		"failed", failed,
		"duration", time.Since(started).Round(time.Millisecond))

	for _, item := range summary.Failures() {
		a.logger.Error("item failed", "job", job, "item", item.ID, "reason", item.Reason)
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d of %d items failed", job, failed, succeeded+skipped+failed)
	}
	return nil
}

// parseDate parses a YYYY-MM-DD flag value in UTC.
func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
