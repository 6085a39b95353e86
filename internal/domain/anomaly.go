package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductionAnomaly is an append-only audit entry for a flagged production
// record. It carries enough of the source record to identify the condition.
type ProductionAnomaly struct {
	Date          time.Time
	MineID        int64
	MineName      string
	Shift         string
	TonsExtracted decimal.Decimal
	QualityGrade  decimal.Decimal
	Reason        string
	DetectedAt    time.Time
}

// IoTAnomaly is an audit entry for a flagged telemetry reading or for the
// folded daily equipment record (EquipmentID empty in the latter case).
type IoTAnomaly struct {
	Date            time.Time
	EquipmentID     string
	Utilization     float64
	FuelConsumption decimal.Decimal
	Reason          string
	DetectedAt      time.Time
}

// WeatherAnomaly is an audit entry for a flagged weather observation.
type WeatherAnomaly struct {
	Date               time.Time
	MeanTemperature    float64
	TotalPrecipitation float64
	Reason             string
	DetectedAt         time.Time
}

// AnomalySet collects every anomaly flagged while processing one date.
type AnomalySet struct {
	Production []ProductionAnomaly
	IoT        []IoTAnomaly
	Weather    []WeatherAnomaly
}

// Empty reports whether no anomalies were flagged.
func (s AnomalySet) Empty() bool {
	return len(s.Production) == 0 && len(s.IoT) == 0 && len(s.Weather) == 0
}

// Len returns the total number of anomalies across all three feeds.
func (s AnomalySet) Len() int {
	return len(s.Production) + len(s.IoT) + len(s.Weather)
}
