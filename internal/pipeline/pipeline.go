package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
	"github.com/couchcryptid/mine-metrics-etl/internal/observability"
)

// ProductionReader extracts one date's production log records.
type ProductionReader interface {
	ReadProduction(ctx context.Context, day time.Time) ([]domain.ProductionRecord, error)
}

// EquipmentReader extracts one date's hourly telemetry readings.
type EquipmentReader interface {
	ReadEquipment(ctx context.Context, day time.Time) ([]domain.EquipmentReading, error)
}

// WeatherReader extracts one date's weather observations.
type WeatherReader interface {
	ReadWeather(ctx context.Context, day time.Time) ([]domain.WeatherRecord, error)
}

// WarehouseWriter persists the daily aggregate and anomaly logs.
// UpsertDaily must be atomic per date with replace-wholesale merge semantics;
// AppendAnomalies is append-only and may duplicate rows on retry.
type WarehouseWriter interface {
	UpsertDaily(ctx context.Context, m domain.DailyProductionMetrics) error
	AppendAnomalies(ctx context.Context, s domain.AnomalySet) error
}

// WatermarkStore tracks the latest date known to be fully processed.
type WatermarkStore interface {
	Watermark(ctx context.Context) (time.Time, bool, error)
	SaveWatermark(ctx context.Context, day time.Time) error
}

// AnomalyPublisher pushes flagged anomalies to the alert feed. Optional and
// advisory: publish errors are logged, never failing a date.
type AnomalyPublisher interface {
	PublishAnomalies(ctx context.Context, day time.Time, s domain.AnomalySet) error
}

// Pipeline orchestrates extraction, classification, aggregation, and the
// warehouse write for a date range. Dates are independent units of work
// processed in parallel; stages within one date run strictly in order.
type Pipeline struct {
	production ProductionReader
	equipment  EquipmentReader
	weather    WeatherReader
	writer     WarehouseWriter
	watermarks WatermarkStore
	publisher  AnomalyPublisher

	thresholds domain.Thresholds
	logger     *slog.Logger
	metrics    *observability.Metrics

	workers    int
	maxRetries int
	ready      atomic.Bool

	mu      sync.Mutex
	lastRun *RunSummary
}

// Options carries the orchestration knobs.
type Options struct {
	Thresholds domain.Thresholds
	Workers    int
	MaxRetries int
}

// New creates a Pipeline. Watermarks and publisher may be nil to disable
// watermark tracking and the anomaly alert feed.
func New(
	production ProductionReader,
	equipment EquipmentReader,
	weather WeatherReader,
	writer WarehouseWriter,
	watermarks WatermarkStore,
	publisher AnomalyPublisher,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Pipeline {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		production: production,
		equipment:  equipment,
		weather:    weather,
		writer:     writer,
		watermarks: watermarks,
		publisher:  publisher,
		thresholds: opts.Thresholds,
		logger:     logger,
		metrics:    metrics,
		workers:    workers,
		maxRetries: opts.MaxRetries,
	}
}

// CheckReadiness returns nil once at least one date has been durably written,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any date yet")
	}
	return nil
}

// LastRun returns the summary of the most recently completed run, if any.
func (p *Pipeline) LastRun() (RunSummary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRun == nil {
		return RunSummary{}, false
	}
	return *p.lastRun, true
}

// Run processes every date in the inclusive range and returns the per-date
// status report. One bad date never aborts the rest: failures are isolated,
// recorded in the summary, and the remaining dates continue. Cancellation is
// cooperative between dates; a date whose write completed is not rolled back.
func (p *Pipeline) Run(ctx context.Context, r domain.DateRange) (RunSummary, error) {
	if !r.Valid() {
		return RunSummary{}, fmt.Errorf("invalid date range: start %s, end %s",
			r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}

	days := r.Days()
	p.logger.Info("run started",
		"start", r.Start.Format(time.DateOnly),
		"end", r.End.Format(time.DateOnly),
		"dates", len(days),
		"workers", p.workers,
	)
	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)

	work := make(chan time.Time)
	results := make([]DateResult, 0, len(days))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for day := range work {
				res := p.processDate(ctx, day)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, day := range days {
		select {
		case <-ctx.Done():
			// Cooperative cancellation between dates: unfed dates stay
			// Pending in the summary.
			mu.Lock()
			results = append(results, DateResult{Date: day, State: StatePending, Err: ctx.Err()})
			mu.Unlock()
			continue feed
		case work <- day:
		}
	}
	close(work)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Date.Before(results[j].Date) })
	summary := RunSummary{Range: r, Results: results}

	p.advanceWatermark(ctx, summary)

	p.mu.Lock()
	p.lastRun = &summary
	p.mu.Unlock()

	p.logger.Info("run finished",
		"done", summary.Done(),
		"failed", summary.Failed(),
		"dates", len(days),
	)
	return summary, nil
}

// processDate drives one date through the full stage sequence.
func (p *Pipeline) processDate(ctx context.Context, day time.Time) DateResult {
	res := DateResult{Date: day, State: StatePending}
	log := p.logger.With("date", day.Format(time.DateOnly))

	// Extract.
	var (
		prod     []domain.ProductionRecord
		readings []domain.EquipmentReading
		weather  []domain.WeatherRecord
	)
	if !p.runStage(ctx, log, StateExtracting, &res, func(ctx context.Context) error {
		var err error
		if prod, err = p.production.ReadProduction(ctx, day); err != nil {
			return fmt.Errorf("production: %w", err)
		}
		if readings, err = p.equipment.ReadEquipment(ctx, day); err != nil {
			return fmt.Errorf("equipment: %w", err)
		}
		if weather, err = p.weather.ReadWeather(ctx, day); err != nil {
			return fmt.Errorf("weather: %w", err)
		}
		return nil
	}) {
		return res
	}
	p.metrics.RecordsExtracted.WithLabelValues("production").Add(float64(len(prod)))
	p.metrics.RecordsExtracted.WithLabelValues("iot").Add(float64(len(readings)))
	p.metrics.RecordsExtracted.WithLabelValues("weather").Add(float64(len(weather)))

	// Classify. Pure and total: never fails, so no retry path.
	res.State = StateClassifying
	start := time.Now()
	anomalies, equip := p.classify(day, prod, readings, weather)
	p.metrics.StageDuration.WithLabelValues(StateClassifying.String()).Observe(time.Since(start).Seconds())
	res.Anomalies = anomalies.Len()

	// Aggregate.
	res.State = StateAggregating
	start = time.Now()
	metrics := domain.Aggregate(day, prod, equip, weather)
	p.metrics.StageDuration.WithLabelValues(StateAggregating.String()).Observe(time.Since(start).Seconds())

	// Write. The upsert is idempotent per date; the anomaly append is
	// at-least-once under retry, which downstream consumers accept.
	if !p.runStage(ctx, log, StateWriting, &res, func(ctx context.Context) error {
		if err := p.writer.UpsertDaily(ctx, metrics); err != nil {
			return err
		}
		p.metrics.WarehouseUpserts.Inc()
		if anomalies.Empty() {
			return nil
		}
		if err := p.writer.AppendAnomalies(ctx, anomalies); err != nil {
			return err
		}
		p.metrics.AnomaliesAppended.Add(float64(anomalies.Len()))
		return nil
	}) {
		return res
	}

	if p.publisher != nil && !anomalies.Empty() {
		if err := p.publisher.PublishAnomalies(ctx, day, anomalies); err != nil {
			log.Warn("anomaly publish failed", "error", err)
		}
	}

	res.State = StateDone
	p.ready.Store(true)
	p.metrics.DatesProcessed.Inc()
	log.Info("date done", "production_records", len(prod), "anomalies", res.Anomalies)
	return res
}

// classify runs every raw record through the anomaly rules, folds the hourly
// telemetry to the daily grain, and classifies the folded record too.
func (p *Pipeline) classify(
	day time.Time,
	prod []domain.ProductionRecord,
	readings []domain.EquipmentReading,
	weather []domain.WeatherRecord,
) (domain.AnomalySet, []domain.EquipmentRecord) {
	var set domain.AnomalySet
	now := domain.Clock().Now()

	for _, r := range prod {
		if v := domain.ClassifyProduction(r, p.thresholds); v.IsAnomalous() {
			p.metrics.AnomaliesFlagged.WithLabelValues("production", v.Reason).Inc()
			set.Production = append(set.Production, domain.ProductionAnomaly{
				Date:          domain.Day(day),
				MineID:        r.MineID,
				MineName:      r.MineName,
				Shift:         r.Shift,
				TonsExtracted: r.TonsExtracted,
				QualityGrade:  r.QualityGrade,
				Reason:        v.Reason,
				DetectedAt:    now,
			})
		}
	}

	for _, r := range readings {
		if v := domain.ClassifyReading(r); v.IsAnomalous() {
			p.metrics.AnomaliesFlagged.WithLabelValues("iot", v.Reason).Inc()
			set.IoT = append(set.IoT, domain.IoTAnomaly{
				Date:            domain.Day(day),
				EquipmentID:     r.EquipmentID,
				FuelConsumption: r.FuelConsumption,
				Reason:          v.Reason,
				DetectedAt:      now,
			})
		}
	}

	var equip []domain.EquipmentRecord
	if len(readings) > 0 {
		rec := domain.FoldReadings(day, readings)
		equip = append(equip, rec)
		if v := domain.ClassifyEquipment(rec, p.thresholds); v.IsAnomalous() {
			p.metrics.AnomaliesFlagged.WithLabelValues("iot", v.Reason).Inc()
			set.IoT = append(set.IoT, domain.IoTAnomaly{
				Date:            rec.Date,
				Utilization:     rec.Utilization,
				FuelConsumption: rec.TotalFuelConsumption,
				Reason:          v.Reason,
				DetectedAt:      now,
			})
		}
	}

	for _, r := range weather {
		if v := domain.ClassifyWeather(r, p.thresholds); v.IsAnomalous() {
			p.metrics.AnomaliesFlagged.WithLabelValues("weather", v.Reason).Inc()
			set.Weather = append(set.Weather, domain.WeatherAnomaly{
				Date:               r.Date,
				MeanTemperature:    r.MeanTemperature,
				TotalPrecipitation: r.TotalPrecipitation,
				Reason:             v.Reason,
				DetectedAt:         now,
			})
		}
	}

	return set, equip
}

// runStage executes fn for one stage, retrying transient errors with
// exponential backoff up to the configured bound. Returns false when the
// stage failed terminally, leaving res in the Failed state.
func (p *Pipeline) runStage(ctx context.Context, log *slog.Logger, stage State, res *DateResult, fn func(context.Context) error) bool {
	res.State = stage

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		start := time.Now()
		err = fn(ctx)
		p.metrics.StageDuration.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())
		res.Attempts++

		if err == nil {
			return true
		}
		if !retryable(err) || ctx.Err() != nil || attempt == p.maxRetries {
			break
		}

		log.Warn("stage failed, retrying",
			"stage", stage.String(), "attempt", attempt+1, "backoff", backoff, "error", err)
		p.metrics.StageRetries.Inc()
		if !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}

	log.Error("date failed", "stage", stage.String(), "attempts", res.Attempts, "error", err)
	res.FailedStage = stage
	res.State = StateFailed
	res.Err = err
	p.metrics.DatesFailed.Inc()
	return false
}

// advanceWatermark moves the stored watermark to the latest date in this run
// up to which every date succeeded. Failures here are logged, not fatal: the
// watermark is an optimization for incremental scheduling, not a correctness
// guard.
func (p *Pipeline) advanceWatermark(ctx context.Context, summary RunSummary) {
	if p.watermarks == nil {
		return
	}

	var candidate time.Time
	for _, r := range summary.Results {
		if r.State != StateDone {
			break
		}
		candidate = r.Date
	}
	if candidate.IsZero() {
		return
	}

	current, ok, err := p.watermarks.Watermark(ctx)
	if err != nil {
		p.logger.Warn("watermark read failed", "error", err)
		return
	}
	if ok && !candidate.After(current) {
		return
	}
	if err := p.watermarks.SaveWatermark(ctx, candidate); err != nil {
		p.logger.Warn("watermark save failed", "error", err)
		return
	}
	p.logger.Info("watermark advanced", "watermark", candidate.Format(time.DateOnly))
}

// retryable reports whether the error kind is transient. Schema mismatches
// are data-quality defects and never retried.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrSourceUnavailable) || errors.Is(err, domain.ErrWriteFailure)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
