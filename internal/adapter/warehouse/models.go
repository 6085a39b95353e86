package warehouse

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// dailyMetricsRow maps domain.DailyProductionMetrics onto the
// daily_production_metrics table. Decimal columns carry volume quantities,
// float columns carry ratios and sensor readings, per the warehouse DDL.
type dailyMetricsRow struct {
	Date                 time.Time        `gorm:"column:date;primaryKey;type:date"`
	TotalProductionDaily decimal.Decimal  `gorm:"column:total_production_daily;type:decimal(14,3);not null"`
	AverageQualityGrade  *decimal.Decimal `gorm:"column:average_quality_grade;type:decimal(4,2)"`
	EquipmentUtilization *float64         `gorm:"column:equipment_utilization"`
	TotalFuelConsumption decimal.Decimal  `gorm:"column:total_fuel_consumption;type:decimal(14,3);not null"`
	MeanTemperature      *float64         `gorm:"column:mean_temperature"`
	TotalPrecipitation   *float64         `gorm:"column:total_precipitation"`
	FuelEfficiency       decimal.Decimal  `gorm:"column:fuel_efficiency;type:decimal(14,4);not null"`
	UpdatedAt            time.Time        `gorm:"column:updated_at"`
}

func (dailyMetricsRow) TableName() string { return "daily_production_metrics" }

// Anomaly log rows. Append-only: surrogate id, no uniqueness constraints.

type productionAnomalyRow struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Date          time.Time       `gorm:"column:date;type:date;index;not null"`
	MineID        int64           `gorm:"column:mine_id;not null"`
	MineName      string          `gorm:"column:mine_name"`
	Shift         string          `gorm:"column:shift"`
	TonsExtracted decimal.Decimal `gorm:"column:tons_extracted;type:decimal(14,3)"`
	QualityGrade  decimal.Decimal `gorm:"column:quality_grade;type:decimal(4,2)"`
	Reason        string          `gorm:"column:reason;not null"`
	DetectedAt    time.Time       `gorm:"column:detected_at;not null"`
}

func (productionAnomalyRow) TableName() string { return "anomaly_production_log" }

type iotAnomalyRow struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Date            time.Time       `gorm:"column:date;type:date;index;not null"`
	EquipmentID     string          `gorm:"column:equipment_id"`
	Utilization     float64         `gorm:"column:equipment_utilization"`
	FuelConsumption decimal.Decimal `gorm:"column:fuel_consumption;type:decimal(14,3)"`
	Reason          string          `gorm:"column:reason;not null"`
	DetectedAt      time.Time       `gorm:"column:detected_at;not null"`
}

func (iotAnomalyRow) TableName() string { return "anomaly_iot_log" }

type weatherAnomalyRow struct {
	ID                 int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Date               time.Time `gorm:"column:date;type:date;index;not null"`
	MeanTemperature    float64   `gorm:"column:mean_temperature"`
	TotalPrecipitation float64   `gorm:"column:total_precipitation"`
	Reason             string    `gorm:"column:reason;not null"`
	DetectedAt         time.Time `gorm:"column:detected_at;not null"`
}

func (weatherAnomalyRow) TableName() string { return "anomaly_weather_log" }

// watermarkRow tracks the latest date fully processed per pipeline name.
type watermarkRow struct {
	Pipeline  string    `gorm:"column:pipeline;primaryKey"`
	Watermark time.Time `gorm:"column:watermark;type:date;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (watermarkRow) TableName() string { return "etl_watermarks" }

func toRow(m domain.DailyProductionMetrics, now time.Time) dailyMetricsRow {
	return dailyMetricsRow{
		Date:                 m.Date,
		TotalProductionDaily: m.TotalProductionDaily,
		AverageQualityGrade:  m.AverageQualityGrade,
		EquipmentUtilization: m.EquipmentUtilization,
		TotalFuelConsumption: m.TotalFuelConsumption,
		MeanTemperature:      m.MeanTemperature,
		TotalPrecipitation:   m.TotalPrecipitation,
		FuelEfficiency:       m.FuelEfficiency,
		UpdatedAt:            now,
	}
}
