//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/couchcryptid/mine-metrics-etl/internal/adapter/warehouse"
	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
	"github.com/couchcryptid/mine-metrics-etl/internal/observability"
	"github.com/couchcryptid/mine-metrics-etl/internal/pipeline"
)

// Fixed-data readers standing in for the MySQL, CSV, and Open-Meteo sources.

type stubProduction struct{ records []domain.ProductionRecord }

func (s *stubProduction) ReadProduction(_ context.Context, day time.Time) ([]domain.ProductionRecord, error) {
	var out []domain.ProductionRecord
	for _, r := range s.records {
		if r.Date.Equal(domain.Day(day)) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubEquipment struct{ readings []domain.EquipmentReading }

func (s *stubEquipment) ReadEquipment(_ context.Context, day time.Time) ([]domain.EquipmentReading, error) {
	var out []domain.EquipmentReading
	for _, r := range s.readings {
		if domain.Day(r.Timestamp).Equal(domain.Day(day)) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubWeather struct{ records []domain.WeatherRecord }

func (s *stubWeather) ReadWeather(_ context.Context, day time.Time) ([]domain.WeatherRecord, error) {
	var out []domain.WeatherRecord
	for _, r := range s.records {
		if r.Date.Equal(domain.Day(day)) {
			out = append(out, r)
		}
	}
	return out, nil
}

// TestWarehouseUpsertIdempotent verifies replace-wholesale merge semantics
// against a real Postgres: upserting the same date twice leaves one row with
// the latest values.
func TestWarehouseUpsertIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)

	w, err := warehouse.Open(dsn, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Migrate())

	day := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	metrics := domain.DailyProductionMetrics{
		Date:                 day,
		TotalProductionDaily: decimal.NewFromInt(150),
		TotalFuelConsumption: decimal.NewFromInt(60),
		FuelEfficiency:       decimal.NewFromFloat(2.5),
	}
	require.NoError(t, w.UpsertDaily(ctx, metrics))

	metrics.TotalProductionDaily = decimal.NewFromInt(175)
	require.NoError(t, w.UpsertDaily(ctx, metrics))

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Table("daily_production_metrics").Count(&count).Error)
	assert.Equal(t, int64(1), count, "upsert must not duplicate the date row")

	var total string
	require.NoError(t, db.Table("daily_production_metrics").
		Where("date = ?", day).
		Pluck("total_production_daily", &total).Error)
	totalDec, err := decimal.NewFromString(total)
	require.NoError(t, err)
	assert.True(t, totalDec.Equal(decimal.NewFromInt(175)), "got %s", total)
}

// TestPipelineAgainstWarehouse drives the full pipeline into a real Postgres
// warehouse: aggregate row written, anomalies appended, watermark advanced,
// and a second run does not duplicate the fact row.
func TestPipelineAgainstWarehouse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)

	w, err := warehouse.Open(dsn, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Migrate())

	day := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	production := &stubProduction{records: []domain.ProductionRecord{
		{Date: day, MineID: 1, Shift: "day", TonsExtracted: decimal.NewFromInt(100), QualityGrade: decimal.NewFromFloat(3.5)},
		{Date: day, MineID: 1, Shift: "night", TonsExtracted: decimal.NewFromInt(-40), QualityGrade: decimal.NewFromFloat(4.0)},
	}}
	equipment := &stubEquipment{readings: []domain.EquipmentReading{
		{Timestamp: day.Add(1 * time.Hour), EquipmentID: "EXC-01", Status: "active", FuelConsumption: decimal.NewFromFloat(12.5)},
		{Timestamp: day.Add(2 * time.Hour), EquipmentID: "EXC-01", Status: "idle", FuelConsumption: decimal.NewFromFloat(0.5)},
	}}
	weather := &stubWeather{records: []domain.WeatherRecord{
		{Date: day, MeanTemperature: 27.0, TotalPrecipitation: 8.5},
	}}

	p := pipeline.New(production, equipment, weather, w, w, nil,
		discardLogger(), observability.NewMetricsForTesting(),
		pipeline.Options{Thresholds: domain.DefaultThresholds(), Workers: 2, MaxRetries: 1})

	run := func() pipeline.RunSummary {
		summary, err := p.Run(ctx, domain.DateRange{Start: day, End: day})
		require.NoError(t, err)
		return summary
	}

	summary := run()
	assert.Equal(t, 1, summary.Done())
	assert.Equal(t, 0, summary.Failed())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	var factCount, anomalyCount int64
	require.NoError(t, db.Table("daily_production_metrics").Count(&factCount).Error)
	require.NoError(t, db.Table("anomaly_production_log").Count(&anomalyCount).Error)
	assert.Equal(t, int64(1), factCount)
	assert.Equal(t, int64(1), anomalyCount, "negative tonnage record should be flagged")

	wm, ok, err := w.Watermark(ctx)
	require.NoError(t, err)
	require.True(t, ok, "watermark should exist after a successful run")
	assert.Equal(t, day, wm)

	// Reprocessing the same date must replace, not duplicate, the fact row.
	run()
	require.NoError(t, db.Table("daily_production_metrics").Count(&factCount).Error)
	assert.Equal(t, int64(1), factCount)
}
