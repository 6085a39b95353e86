package domain

// Verdict is the outcome of classifying a single raw record: Normal, or
// Anomalous with a machine-readable reason.
type Verdict struct {
	Reason string
}

// Normal is the verdict for records inside all operating bounds.
var Normal = Verdict{}

// Anomalous builds a verdict carrying the given reason.
func Anomalous(reason string) Verdict {
	return Verdict{Reason: reason}
}

// IsAnomalous reports whether the verdict flags the record.
func (v Verdict) IsAnomalous() bool {
	return v.Reason != ""
}

// Anomaly reasons. Rules are evaluated in the order the Classify* functions
// declare them; the first violated rule wins, so a record never yields more
// than one verdict.
const (
	ReasonDateMissing             = "date_missing"
	ReasonShiftMissing            = "shift_missing"
	ReasonTonsNegative            = "tons_extracted_negative"
	ReasonTonsAboveCeiling        = "tons_extracted_above_ceiling"
	ReasonQualityGradeOutOfRange  = "quality_grade_out_of_range"
	ReasonEquipmentIDMissing      = "equipment_id_missing"
	ReasonUtilizationOutOfRange   = "equipment_utilization_out_of_range"
	ReasonFuelNegative            = "fuel_consumption_negative"
	ReasonTemperatureOutOfRange   = "temperature_out_of_range"
	ReasonPrecipitationOutOfRange = "precipitation_out_of_range"
)

// ClassifyProduction checks one production log record against the thresholds.
// Total over malformed input: a record with a missing date or shift is itself
// Anomalous rather than an error, so every record is accounted for.
//
// Rule order: date, shift, tons negative, tons ceiling, quality range.
func ClassifyProduction(r ProductionRecord, t Thresholds) Verdict {
	switch {
	case r.Date.IsZero():
		return Anomalous(ReasonDateMissing)
	case r.Shift == "":
		return Anomalous(ReasonShiftMissing)
	case r.TonsExtracted.IsNegative():
		return Anomalous(ReasonTonsNegative)
	case r.TonsExtracted.GreaterThan(t.TonsCeiling):
		return Anomalous(ReasonTonsAboveCeiling)
	case r.QualityGrade.LessThan(t.QualityGradeMin) || r.QualityGrade.GreaterThan(t.QualityGradeMax):
		return Anomalous(ReasonQualityGradeOutOfRange)
	}
	return Normal
}

// ClassifyReading checks one hourly telemetry row.
//
// Rule order: timestamp, equipment id, fuel negative.
func ClassifyReading(r EquipmentReading) Verdict {
	switch {
	case r.Timestamp.IsZero():
		return Anomalous(ReasonDateMissing)
	case r.EquipmentID == "":
		return Anomalous(ReasonEquipmentIDMissing)
	case r.FuelConsumption.IsNegative():
		return Anomalous(ReasonFuelNegative)
	}
	return Normal
}

// ClassifyEquipment checks the daily equipment record folded from the hourly
// feed.
//
// Rule order: date, utilization range, fuel negative.
func ClassifyEquipment(r EquipmentRecord, t Thresholds) Verdict {
	switch {
	case r.Date.IsZero():
		return Anomalous(ReasonDateMissing)
	case r.Utilization < t.UtilizationMin || r.Utilization > t.UtilizationMax:
		return Anomalous(ReasonUtilizationOutOfRange)
	case r.TotalFuelConsumption.IsNegative():
		return Anomalous(ReasonFuelNegative)
	}
	return Normal
}

// ClassifyWeather checks one daily weather observation.
//
// Rule order: date, temperature range, precipitation range.
func ClassifyWeather(r WeatherRecord, t Thresholds) Verdict {
	switch {
	case r.Date.IsZero():
		return Anomalous(ReasonDateMissing)
	case r.MeanTemperature < t.TemperatureMin || r.MeanTemperature > t.TemperatureMax:
		return Anomalous(ReasonTemperatureOutOfRange)
	case r.TotalPrecipitation < 0 || r.TotalPrecipitation > t.PrecipitationMax:
		return Anomalous(ReasonPrecipitationOutOfRange)
	}
	return Normal
}
