package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Aggregate folds all raw records for one date into the single warehouse row
// for that date. Anomalous records are included: they are logged for audit by
// the classifier but never excluded from totals, since exclusion would
// silently understate production.
//
// Per-metric semantics:
//   - total_production_daily: sum of tons_extracted over all production records
//   - average_quality_grade: tonnage-weighted mean, rounded to 2 places;
//     plain arithmetic mean when the date's tonnage is not positive
//   - equipment_utilization: arithmetic mean of per-record utilization
//   - total_fuel_consumption: sum of fuel over equipment records
//   - mean_temperature: arithmetic mean over weather records
//   - total_precipitation: sum over weather records
//   - fuel_efficiency: production / fuel, zero (never a fault) when no fuel
//     was burned
//
// A date with no records at all still produces a row with zero totals and
// NULL per-feed fields, preserving the contiguous daily series downstream
// consumers expect.
func Aggregate(date time.Time, prod []ProductionRecord, equip []EquipmentRecord, weather []WeatherRecord) DailyProductionMetrics {
	m := DailyProductionMetrics{Date: Day(date)}

	totalTons := decimal.Zero
	weightedQuality := decimal.Zero
	plainQuality := decimal.Zero
	for _, r := range prod {
		totalTons = totalTons.Add(r.TonsExtracted)
		weightedQuality = weightedQuality.Add(r.QualityGrade.Mul(r.TonsExtracted))
		plainQuality = plainQuality.Add(r.QualityGrade)
	}
	m.TotalProductionDaily = totalTons

	if len(prod) > 0 {
		var avg decimal.Decimal
		if totalTons.IsPositive() {
			avg = weightedQuality.DivRound(totalTons, 2)
		} else {
			avg = plainQuality.DivRound(decimal.NewFromInt(int64(len(prod))), 2)
		}
		m.AverageQualityGrade = &avg
	}

	totalFuel := decimal.Zero
	if len(equip) > 0 {
		var utilSum float64
		for _, r := range equip {
			utilSum += r.Utilization
			totalFuel = totalFuel.Add(r.TotalFuelConsumption)
		}
		util := utilSum / float64(len(equip))
		m.EquipmentUtilization = &util
	}
	m.TotalFuelConsumption = totalFuel

	if len(weather) > 0 {
		var tempSum, precipSum float64
		for _, r := range weather {
			tempSum = tempSum + r.MeanTemperature
			precipSum = precipSum + r.TotalPrecipitation
		}
		temp := tempSum / float64(len(weather))
		m.MeanTemperature = &temp
		m.TotalPrecipitation = &precipSum
	}

	if totalFuel.IsPositive() {
		m.FuelEfficiency = totalTons.DivRound(totalFuel, 4)
	} else {
		m.FuelEfficiency = decimal.Zero
	}

	return m
}
