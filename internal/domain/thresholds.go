package domain

import "github.com/shopspring/decimal"

// Thresholds are the static operating bounds the anomaly classifier checks
// records against. They are injected configuration, never package constants,
// so deployments can tune them per site and tests can pin them.
type Thresholds struct {
	// Production bounds.
	QualityGradeMin decimal.Decimal // typically 0
	QualityGradeMax decimal.Decimal // typically 5
	TonsCeiling     decimal.Decimal // max plausible tons per shift record

	// Equipment bounds. Utilization is a fraction of fleet-hours.
	UtilizationMin float64
	UtilizationMax float64

	// Weather bounds, physically plausible for the mine site region.
	TemperatureMin   float64 // degrees Celsius
	TemperatureMax   float64
	PrecipitationMax float64 // millimetres per day
}

// DefaultThresholds returns the bounds tuned for the Berau basin deployment.
// Temperature limits cover the equatorial lowland climate with margin.
func DefaultThresholds() Thresholds {
	return Thresholds{
		QualityGradeMin:  decimal.Zero,
		QualityGradeMax:  decimal.NewFromInt(5),
		TonsCeiling:      decimal.NewFromInt(10000),
		UtilizationMin:   0,
		UtilizationMax:   1,
		TemperatureMin:   10,
		TemperatureMax:   45,
		PrecipitationMax: 500,
	}
}
