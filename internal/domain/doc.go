// Package domain models the coal-mining operational records and the daily
// analytical warehouse derived from them.
//
// # Data Sources
//
// Production logs come from the operational MySQL store, one row per mine per
// shift per day: tons extracted and a coal quality grade on a 0-5 scale.
// Equipment telemetry arrives as an hourly per-unit CSV export from the IoT
// platform: a status column ("active", "idle", "maintenance") and fuel
// consumption for the hour. Weather observations are daily mean temperature
// and precipitation totals for the mine site, fetched from the Open-Meteo
// archive and forecast APIs.
//
// # Grain
//
// The warehouse fact DailyProductionMetrics has one row per calendar day.
// Dates are normalized to midnight UTC by [Day]; every component keys by that
// normalized form.
//
// # Aggregation Conventions
//
// Tonnage and fuel quantities are decimals ([decimal.Decimal]) because the
// warehouse declares DECIMAL columns and the sums must reproduce bit-for-bit.
// Ratios and sensor readings (utilization, temperature, precipitation) are
// float64. The quality grade average is tonnage-weighted: a 100-ton day shift
// at grade 3.5 and a 50-ton night shift at grade 4.0 average to 3.67, not
// 3.75. Utilization is fleet-hours active divided by total fleet-hours
// (24 x distinct units), the convention inherited from the IoT export.
//
// # Anomalies
//
// Classification is pure and total: every record, however malformed, yields
// exactly one Verdict. Rules evaluate in a fixed declared order and the first
// violated rule wins. Flagged records are logged to the anomaly tables for
// audit but still participate in aggregation; excluding them would silently
// understate production totals.
package domain
