package sensorcsv

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

var testDay = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func writeCSV(t *testing.T, content string) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "equipment_sensors.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return NewReader(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReadEquipment(t *testing.T) {
	r := writeCSV(t, `timestamp,equipment_id,status,fuel_consumption
2024-01-01 00:00:00,EXC-01,active,12.5
2024-01-01 01:00:00,EXC-01,idle,0.4
2024-01-01 00:00:00,HTK-02,ACTIVE,30.0
2024-01-02 00:00:00,EXC-01,active,11.0
`)

	readings, err := r.ReadEquipment(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, readings, 3, "next day's row filtered out")

	assert.Equal(t, "EXC-01", readings[0].EquipmentID)
	assert.Equal(t, "active", readings[0].Status)
	assert.True(t, readings[0].Active())
	assert.True(t, readings[0].FuelConsumption.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, "active", readings[2].Status, "status normalized to lower case")
}

func TestReadEquipment_TimestampLayouts(t *testing.T) {
	r := writeCSV(t, `timestamp,equipment_id,status,fuel_consumption
2024-01-01T06:00:00Z,EXC-01,active,1.0
2024-01-01T07:00:00,EXC-01,active,1.0
`)

	readings, err := r.ReadEquipment(context.Background(), testDay)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestReadEquipment_MissingFile(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "absent.csv"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.ReadEquipment(context.Background(), testDay)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestReadEquipment_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{
			name: "missing column",
			csv:  "timestamp,equipment_id,fuel_consumption\n2024-01-01 00:00:00,EXC-01,1.0\n",
		},
		{
			name: "unparseable timestamp",
			csv:  "timestamp,equipment_id,status,fuel_consumption\nyesterday,EXC-01,active,1.0\n",
		},
		{
			name: "unparseable fuel",
			csv:  "timestamp,equipment_id,status,fuel_consumption\n2024-01-01 00:00:00,EXC-01,active,lots\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := writeCSV(t, tt.csv)
			_, err := r.ReadEquipment(context.Background(), testDay)
			assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
		})
	}
}

func TestReadEquipment_NegativeFuelPassesThrough(t *testing.T) {
	// Value-domain violations are the classifier's to flag, not the reader's
	// to reject: the record must stay accounted for.
	r := writeCSV(t, `timestamp,equipment_id,status,fuel_consumption
2024-01-01 00:00:00,EXC-01,active,-3.5
`)

	readings, err := r.ReadEquipment(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].FuelConsumption.IsNegative())
	assert.True(t, domain.ClassifyReading(readings[0]).IsAnomalous())
}

func TestReadEquipment_EmptyDay(t *testing.T) {
	r := writeCSV(t, `timestamp,equipment_id,status,fuel_consumption
2024-01-05 00:00:00,EXC-01,active,1.0
`)

	readings, err := r.ReadEquipment(context.Background(), testDay)
	require.NoError(t, err)
	assert.Empty(t, readings)
}
