package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/mine-metrics-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/mine-metrics-etl/internal/adapter/kafka"
	"github.com/couchcryptid/mine-metrics-etl/internal/adapter/minedb"
	"github.com/couchcryptid/mine-metrics-etl/internal/adapter/openmeteo"
	"github.com/couchcryptid/mine-metrics-etl/internal/adapter/sensorcsv"
	"github.com/couchcryptid/mine-metrics-etl/internal/adapter/warehouse"
	"github.com/couchcryptid/mine-metrics-etl/internal/config"
	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
	"github.com/couchcryptid/mine-metrics-etl/internal/observability"
	"github.com/couchcryptid/mine-metrics-etl/internal/pipeline"
)

// weatherCacheSize covers a full year of reprocessing without eviction.
const weatherCacheSize = 366

func main() {
	var startFlag, endFlag string
	flag.StringVar(&startFlag, "start", "", "first date to process (YYYY-MM-DD); default resumes after the watermark")
	flag.StringVar(&endFlag, "end", "", "last date to process (YYYY-MM-DD); default is yesterday")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	source, err := minedb.Open(cfg.MySQLDSN(), cfg.SourceBatch, logger)
	if err != nil {
		logger.Error("failed to connect to operational store", "error", err)
		os.Exit(1)
	}

	equipment := sensorcsv.NewReader(cfg.IoTDataPath, logger)

	weatherClient := openmeteo.NewClient(cfg.SiteLatitude, cfg.SiteLongitude, cfg.SiteTimezone, cfg.WeatherTimeout, logger)
	weather := openmeteo.NewCachedReader(weatherClient, weatherCacheSize)

	wh, err := warehouse.Open(cfg.WarehouseDSN, logger)
	if err != nil {
		logger.Error("failed to connect to warehouse", "error", err)
		os.Exit(1)
	}

	// Anomaly alert feed (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var publisher pipeline.AnomalyPublisher
	var alerts *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		alerts = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		publisher = alerts
		logger.Info("anomaly alert feed enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("anomaly alert feed disabled")
	}

	p := pipeline.New(source, equipment, weather, wh, wh, publisher, logger, metrics, pipeline.Options{
		Thresholds: cfg.Thresholds,
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ops HTTP surface stays up for the lifetime of the run.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	r, err := resolveRange(ctx, wh, startFlag, endFlag)
	if err != nil {
		logger.Error("failed to resolve date range", "error", err)
		os.Exit(1)
	}

	summary, err := p.Run(ctx, r)
	if err != nil {
		logger.Error("pipeline error", "error", err)
	}
	for _, res := range summary.Results {
		if res.State == pipeline.StateFailed {
			logger.Error("date failed",
				"date", res.Date.Format(time.DateOnly),
				"stage", res.FailedStage.String(),
				"attempts", res.Attempts,
				"error", res.Err,
			)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if alerts != nil {
		if err := alerts.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if err != nil || summary.Failed() > 0 {
		os.Exit(1)
	}
}

// resolveRange turns the -start/-end flags into an inclusive date range.
// Without -start the run resumes the day after the stored watermark; without
// -end it stops at yesterday, the latest date whose sources are complete.
func resolveRange(ctx context.Context, wh *warehouse.Writer, startFlag, endFlag string) (domain.DateRange, error) {
	var r domain.DateRange

	if endFlag != "" {
		end, err := time.Parse(time.DateOnly, endFlag)
		if err != nil {
			return r, fmt.Errorf("invalid -end: %w", err)
		}
		r.End = domain.Day(end)
	} else {
		r.End = domain.Day(domain.Clock().Now()).AddDate(0, 0, -1)
	}

	if startFlag != "" {
		start, err := time.Parse(time.DateOnly, startFlag)
		if err != nil {
			return r, fmt.Errorf("invalid -start: %w", err)
		}
		r.Start = domain.Day(start)
		return r, nil
	}

	wm, ok, err := wh.Watermark(ctx)
	if err != nil {
		return r, fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		return r, errors.New("no watermark yet: pass -start for the first run")
	}
	r.Start = domain.Day(wm).AddDate(0, 0, 1)
	return r, nil
}
