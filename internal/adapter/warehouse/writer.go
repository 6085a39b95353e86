// Package warehouse persists the daily aggregate and anomaly logs to the
// analytical PostgreSQL database. The daily fact is merged on date with
// replace-wholesale semantics; the anomaly logs are append-only.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// pipelineName keys the watermark row for this pipeline.
const pipelineName = "daily_production_metrics"

// Writer implements pipeline.WarehouseWriter and pipeline.WatermarkStore
// over the warehouse database.
type Writer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the warehouse and returns a Writer.
func Open(dsn string, logger *slog.Logger) (*Writer, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w: %w", domain.ErrWriteFailure, err)
	}
	return NewWriter(db, logger), nil
}

// NewWriter wraps an existing gorm handle. Used directly by tests, which
// substitute SQLite for PostgreSQL.
func NewWriter(db *gorm.DB, logger *slog.Logger) *Writer {
	return &Writer{db: db, logger: logger}
}

// UpsertDaily inserts or replaces the aggregate row for the metric's date.
// The merge is keyed by date and replaces every column, so a re-run never
// duplicates the row and never leaves a partially updated one visible: the
// single INSERT ... ON CONFLICT statement is atomic from the caller's side.
func (w *Writer) UpsertDaily(ctx context.Context, m domain.DailyProductionMetrics) error {
	row := toRow(m, domain.Clock().Now())

	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert daily metrics for %s: %w: %w",
			m.Date.Format(time.DateOnly), domain.ErrWriteFailure, err)
	}
	return nil
}

// AppendAnomalies appends every anomaly in the set to its log table inside
// one transaction. Pure append: no dedup, no key. Retrying after a partial
// failure may duplicate rows, which the at-least-once contract allows.
func (w *Writer) AppendAnomalies(ctx context.Context, s domain.AnomalySet) error {
	if s.Empty() {
		return nil
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(s.Production) > 0 {
			rows := make([]productionAnomalyRow, len(s.Production))
			for i, a := range s.Production {
				rows[i] = productionAnomalyRow{
					Date:          a.Date,
					MineID:        a.MineID,
					MineName:      a.MineName,
					Shift:         a.Shift,
					TonsExtracted: a.TonsExtracted,
					QualityGrade:  a.QualityGrade,
					Reason:        a.Reason,
					DetectedAt:    a.DetectedAt,
				}
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		if len(s.IoT) > 0 {
			rows := make([]iotAnomalyRow, len(s.IoT))
			for i, a := range s.IoT {
				rows[i] = iotAnomalyRow{
					Date:            a.Date,
					EquipmentID:     a.EquipmentID,
					Utilization:     a.Utilization,
					FuelConsumption: a.FuelConsumption,
					Reason:          a.Reason,
					DetectedAt:      a.DetectedAt,
				}
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		if len(s.Weather) > 0 {
			rows := make([]weatherAnomalyRow, len(s.Weather))
			for i, a := range s.Weather {
				rows[i] = weatherAnomalyRow{
					Date:               a.Date,
					MeanTemperature:    a.MeanTemperature,
					TotalPrecipitation: a.TotalPrecipitation,
					Reason:             a.Reason,
					DetectedAt:         a.DetectedAt,
				}
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append anomalies: %w: %w", domain.ErrWriteFailure, err)
	}
	return nil
}

// Watermark returns the stored watermark date, with ok=false when no run has
// completed yet.
func (w *Writer) Watermark(ctx context.Context) (time.Time, bool, error) {
	var row watermarkRow
	err := w.db.WithContext(ctx).
		Where("pipeline = ?", pipelineName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w: %w", domain.ErrWriteFailure, err)
	}
	return domain.Day(row.Watermark), true, nil
}

// SaveWatermark upserts the watermark row for this pipeline.
func (w *Writer) SaveWatermark(ctx context.Context, day time.Time) error {
	row := watermarkRow{
		Pipeline:  pipelineName,
		Watermark: domain.Day(day),
		UpdatedAt: domain.Clock().Now(),
	}
	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pipeline"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save watermark: %w: %w", domain.ErrWriteFailure, err)
	}
	return nil
}

// Migrate creates the warehouse tables. Production schemas are provisioned
// externally; this exists for tests and local development.
func (w *Writer) Migrate() error {
	return w.db.AutoMigrate(
		&dailyMetricsRow{},
		&productionAnomalyRow{},
		&iotAnomalyRow{},
		&weatherAnomalyRow{},
		&watermarkRow{},
	)
}
