package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Day truncates t to midnight UTC. All record dates and the warehouse grain
// use this normalized form so map keys and SQL date columns line up.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive [Start, End] span of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether both endpoints are set and End is not before Start.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Days returns every calendar day in the range, ascending.
func (r DateRange) Days() []time.Time {
	if !r.Valid() {
		return nil
	}
	var days []time.Time
	for d := Day(r.Start); !d.After(Day(r.End)); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// ProductionRecord is one shift-level production log entry from the
// operational store. Many records exist per (date, mine, shift).
type ProductionRecord struct {
	Date          time.Time
	MineID        int64
	MineName      string
	Shift         string
	TonsExtracted decimal.Decimal
	QualityGrade  decimal.Decimal
}

// EquipmentReading is one hourly telemetry row from the IoT feed.
type EquipmentReading struct {
	Timestamp       time.Time
	EquipmentID     string
	Status          string
	FuelConsumption decimal.Decimal
}

// Active reports whether the equipment unit was running during this hour.
func (r EquipmentReading) Active() bool {
	return r.Status == "active"
}

// EquipmentRecord is the IoT feed folded to the daily grain: fleet-wide
// utilization and total fuel burn for one date.
type EquipmentRecord struct {
	Date                 time.Time
	Utilization          float64 // fraction of fleet-hours spent active, 0.0-1.0
	TotalFuelConsumption decimal.Decimal
	UnitCount            int
}

// WeatherRecord is one daily weather observation for the mine site.
type WeatherRecord struct {
	Date               time.Time
	MeanTemperature    float64 // degrees Celsius
	TotalPrecipitation float64 // millimetres
}

// Mine is a row from the mines reference dimension.
type Mine struct {
	ID       int64
	Name     string
	Location string
}

// DailyProductionMetrics is the warehouse fact at date grain. Exactly one row
// exists per date; re-running the pipeline for a date replaces the row
// wholesale. Nil pointer fields map to NULL columns for feeds with no data.
type DailyProductionMetrics struct {
	Date                 time.Time
	TotalProductionDaily decimal.Decimal
	AverageQualityGrade  *decimal.Decimal // tonnage-weighted, nil when no production
	EquipmentUtilization *float64
	TotalFuelConsumption decimal.Decimal
	MeanTemperature      *float64
	TotalPrecipitation   *float64
	FuelEfficiency       decimal.Decimal // tons per unit of fuel, zero when no fuel burned
}
