// Package minedb reads the operational MySQL store: the production_logs fact
// table and the mines reference dimension. Access is read-only and paginated
// so a date with many shift records never materializes in one query.
package minedb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// Reader implements pipeline.ProductionReader over the operational store.
type Reader struct {
	db     *gorm.DB
	batch  int
	logger *slog.Logger

	mineMu    sync.Mutex
	mineNames map[int64]string
}

// Open connects to the operational MySQL store.
func Open(dsn string, batch int, logger *slog.Logger) (*Reader, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open operational store: %w: %w", domain.ErrSourceUnavailable, err)
	}
	return NewReader(db, batch, logger), nil
}

// NewReader wraps an existing gorm handle. Used directly by tests.
func NewReader(db *gorm.DB, batch int, logger *slog.Logger) *Reader {
	if batch < 1 {
		batch = 500
	}
	return &Reader{db: db, batch: batch, logger: logger}
}

// ReadProduction returns every production log record for the given day.
// Rows are read in primary-key pages of the configured batch size; each call
// restarts the query, so a retried date re-reads a consistent snapshot.
// Query failures wrap ErrSourceUnavailable; rows whose required columns are
// NULL wrap ErrSchemaMismatch and fail the date.
func (r *Reader) ReadProduction(ctx context.Context, day time.Time) ([]domain.ProductionRecord, error) {
	names := r.mines(ctx)

	day = domain.Day(day)
	var records []domain.ProductionRecord
	var convErr error

	var page []productionLogRow
	result := r.db.WithContext(ctx).
		Where("date = ?", day).
		FindInBatches(&page, r.batch, func(_ *gorm.DB, _ int) error {
			for _, row := range page {
				rec, err := row.toRecord(names)
				if err != nil {
					convErr = err
					return err
				}
				records = append(records, rec)
			}
			return nil
		})
	if result.Error != nil {
		if convErr != nil {
			return nil, convErr
		}
		return nil, fmt.Errorf("read production logs for %s: %w: %w",
			day.Format(time.DateOnly), domain.ErrSourceUnavailable, result.Error)
	}

	return records, nil
}

// Mines returns the mines reference dimension.
func (r *Reader) Mines(ctx context.Context) ([]domain.Mine, error) {
	var rows []mineRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read mines dimension: %w: %w", domain.ErrSourceUnavailable, err)
	}
	mines := make([]domain.Mine, len(rows))
	for i, row := range rows {
		mines[i] = domain.Mine{ID: row.ID, Name: row.Name, Location: row.Location}
	}
	return mines, nil
}

// mines lazily loads and caches the id→name map used to label anomaly rows.
// A missing dimension is not fatal: names stay empty and extraction proceeds.
// Only a successful load is cached, so a transient failure on one date does
// not leave every later date without names.
func (r *Reader) mines(ctx context.Context) map[int64]string {
	r.mineMu.Lock()
	defer r.mineMu.Unlock()

	if r.mineNames != nil {
		return r.mineNames
	}

	mines, err := r.Mines(ctx)
	if err != nil {
		r.logger.Warn("mines dimension unavailable, anomaly rows will carry ids only", "error", err)
		return map[int64]string{}
	}
	names := make(map[int64]string, len(mines))
	for _, m := range mines {
		names[m.ID] = m.Name
	}
	r.mineNames = names
	return names
}
