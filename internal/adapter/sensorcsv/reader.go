// Package sensorcsv reads the hourly equipment telemetry export produced by
// the IoT platform: one CSV row per equipment unit per hour, with a status
// column and fuel consumption for the hour.
package sensorcsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// timestamp layouts seen in exports from different platform versions.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Reader implements pipeline.EquipmentReader over a telemetry CSV export.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the CSV file at path. The file is opened on
// every read, so each call observes the latest export and a retried date
// restarts cleanly.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// ReadEquipment streams the CSV and returns the hourly readings whose
// timestamp falls on the given day. A missing or unreadable file wraps
// ErrSourceUnavailable; a malformed header or an untypeable row wraps
// ErrSchemaMismatch. Value-domain oddities (negative fuel, unknown status)
// pass through for the classifier to flag.
func (r *Reader) ReadEquipment(ctx context.Context, day time.Time) ([]domain.EquipmentReading, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry export %s: %w: %w", r.path, domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read telemetry header: %w: %w", domain.ErrSchemaMismatch, err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	day = domain.Day(day)
	var readings []domain.EquipmentReading
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("telemetry line %d: %w: %w", line, domain.ErrSchemaMismatch, err)
		}

		reading, err := cols.toReading(row)
		if err != nil {
			return nil, fmt.Errorf("telemetry line %d: %w", line, err)
		}
		if domain.Day(reading.Timestamp).Equal(day) {
			readings = append(readings, reading)
		}
	}

	return readings, nil
}

// columns holds the index of each required CSV column.
type columns struct {
	timestamp, equipmentID, status, fuel int
}

func mapColumns(header []string) (columns, error) {
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}

	c := columns{timestamp: -1, equipmentID: -1, status: -1, fuel: -1}
	var ok bool
	if c.timestamp, ok = idx["timestamp"]; !ok {
		return c, fmt.Errorf("telemetry header missing column %q: %w", "timestamp", domain.ErrSchemaMismatch)
	}
	if c.equipmentID, ok = idx["equipment_id"]; !ok {
		return c, fmt.Errorf("telemetry header missing column %q: %w", "equipment_id", domain.ErrSchemaMismatch)
	}
	if c.status, ok = idx["status"]; !ok {
		return c, fmt.Errorf("telemetry header missing column %q: %w", "status", domain.ErrSchemaMismatch)
	}
	if c.fuel, ok = idx["fuel_consumption"]; !ok {
		return c, fmt.Errorf("telemetry header missing column %q: %w", "fuel_consumption", domain.ErrSchemaMismatch)
	}
	return c, nil
}

func (c columns) toReading(row []string) (domain.EquipmentReading, error) {
	ts, err := parseTimestamp(row[c.timestamp])
	if err != nil {
		return domain.EquipmentReading{}, fmt.Errorf(
			"unparseable timestamp %q: %w", row[c.timestamp], domain.ErrSchemaMismatch)
	}
	fuel, err := decimal.NewFromString(strings.TrimSpace(row[c.fuel]))
	if err != nil {
		return domain.EquipmentReading{}, fmt.Errorf(
			"unparseable fuel_consumption %q: %w", row[c.fuel], domain.ErrSchemaMismatch)
	}
	return domain.EquipmentReading{
		Timestamp:       ts,
		EquipmentID:     strings.TrimSpace(row[c.equipmentID]),
		Status:          strings.ToLower(strings.TrimSpace(row[c.status])),
		FuelConsumption: fuel,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no layout matches %q", s)
}
