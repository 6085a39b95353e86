package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FoldReadings collapses one date's hourly telemetry to the daily grain.
// Utilization is the fraction of fleet-hours spent active: active readings
// divided by 24 hours times the number of distinct equipment units seen that
// day. Fuel consumption is summed across all readings.
func FoldReadings(date time.Time, readings []EquipmentReading) EquipmentRecord {
	rec := EquipmentRecord{Date: Day(date), TotalFuelConsumption: decimal.Zero}
	if len(readings) == 0 {
		return rec
	}

	units := make(map[string]struct{}, 8)
	var activeHours int
	for _, r := range readings {
		units[r.EquipmentID] = struct{}{}
		if r.Active() {
			activeHours++
		}
		rec.TotalFuelConsumption = rec.TotalFuelConsumption.Add(r.FuelConsumption)
	}

	rec.UnitCount = len(units)
	rec.Utilization = float64(activeHours) / (24 * float64(len(units)))
	return rec
}
