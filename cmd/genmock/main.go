// Command genmock generates deterministic mock fixtures for local development
// and the test suites: an hourly equipment telemetry CSV, a production_logs
// seed script for the operational MySQL store, and a weather API fixture. It
// runs every generated record through the actual domain classifier so the
// printed anomaly counts match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out-dir data/mock \
//	  -start 2024-01-01 -days 7 -units 6
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

var statuses = []string{"active", "active", "active", "idle", "idle", "maintenance"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "output directory for fixtures")
	startStr := flag.String("start", "2024-01-01", "first date to generate (YYYY-MM-DD)")
	days := flag.Int("days", 7, "number of days to generate")
	units := flag.Int("units", 6, "equipment units in the fleet")
	seed := flag.Int64("seed", 42, "random seed, fixed for reproducible fixtures")
	flag.Parse()

	start, err := time.Parse(time.DateOnly, *startStr)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	start = domain.Day(start)

	rng := rand.New(rand.NewSource(*seed))

	readings := generateReadings(rng, start, *days, *units)
	production := generateProduction(rng, start, *days)
	weather := generateWeather(rng, start, *days)

	if err := writeTelemetryCSV(filepath.Join(*outDir, "equipment_sensors.csv"), readings); err != nil {
		return fmt.Errorf("writing telemetry fixture: %w", err)
	}
	log.Printf("wrote telemetry fixture: %d readings", len(readings))

	if err := writeProductionSQL(filepath.Join(*outDir, "production_logs.sql"), production); err != nil {
		return fmt.Errorf("writing production seed: %w", err)
	}
	log.Printf("wrote production seed: %d rows", len(production))

	if err := writeWeatherJSON(filepath.Join(*outDir, "weather_daily.json"), weather); err != nil {
		return fmt.Errorf("writing weather fixture: %w", err)
	}
	log.Printf("wrote weather fixture: %d days", len(weather))

	printStats(start, *days, production, readings, weather)
	return nil
}

func generateReadings(rng *rand.Rand, start time.Time, days, units int) []domain.EquipmentReading {
	var readings []domain.EquipmentReading
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		for u := 0; u < units; u++ {
			id := fmt.Sprintf("EXC-%02d", u+1)
			for h := 0; h < 24; h++ {
				status := statuses[rng.Intn(len(statuses))]
				var fuel float64
				switch status {
				case "active":
					fuel = 8 + rng.Float64()*8
				case "idle":
					fuel = 0.2 + rng.Float64()*0.6
				}
				// Sprinkle in sensor glitches for the anomaly path.
				if rng.Intn(200) == 0 {
					fuel = -fuel
				}
				readings = append(readings, domain.EquipmentReading{
					Timestamp:       day.Add(time.Duration(h) * time.Hour),
					EquipmentID:     id,
					Status:          status,
					FuelConsumption: decimal.NewFromFloat(fuel).Round(2),
				})
			}
		}
	}
	return readings
}

func generateProduction(rng *rand.Rand, start time.Time, days int) []domain.ProductionRecord {
	var records []domain.ProductionRecord
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		for mine := int64(1); mine <= 3; mine++ {
			for _, shift := range []string{"day", "night"} {
				tons := decimal.NewFromFloat(400 + rng.Float64()*500).Round(2)
				grade := decimal.NewFromFloat(2.8 + rng.Float64()*2.0).Round(2)
				// Occasional bad log entries, again for the anomaly path.
				switch rng.Intn(25) {
				case 0:
					tons = tons.Neg()
				case 1:
					grade = decimal.NewFromFloat(7.2)
				}
				records = append(records, domain.ProductionRecord{
					Date:          day,
					MineID:        mine,
					Shift:         shift,
					TonsExtracted: tons,
					QualityGrade:  grade,
				})
			}
		}
	}
	return records
}

func generateWeather(rng *rand.Rand, start time.Time, days int) []domain.WeatherRecord {
	records := make([]domain.WeatherRecord, 0, days)
	for d := 0; d < days; d++ {
		records = append(records, domain.WeatherRecord{
			Date:               start.AddDate(0, 0, d),
			MeanTemperature:    24 + rng.Float64()*7,
			TotalPrecipitation: rng.Float64() * 40,
		})
	}
	return records
}

func writeTelemetryCSV(path string, readings []domain.EquipmentReading) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "equipment_id", "status", "fuel_consumption"}); err != nil {
		return err
	}
	for _, r := range readings {
		err := w.Write([]string{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.EquipmentID,
			r.Status,
			r.FuelConsumption.String(),
		})
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeProductionSQL(path string, records []domain.ProductionRecord) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintln(f, "INSERT INTO production_logs (date, mine_id, shift, tons_extracted, quality_grade) VALUES")
	for i, r := range records {
		sep := ","
		if i == len(records)-1 {
			sep = ";"
		}
		fmt.Fprintf(f, "  ('%s', %d, '%s', %s, %s)%s\n",
			r.Date.Format(time.DateOnly), r.MineID, r.Shift,
			r.TonsExtracted.String(), r.QualityGrade.String(), sep)
	}
	return nil
}

// writeWeatherJSON emits the fixture in the open-meteo daily response shape so
// it can back a stub weather API directly.
func writeWeatherJSON(path string, records []domain.WeatherRecord) error {
	type dailyBlock struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m_mean"`
		Precipitation []float64 `json:"precipitation_sum"`
	}
	var d dailyBlock
	for _, r := range records {
		d.Time = append(d.Time, r.Date.Format(time.DateOnly))
		d.Temperature = append(d.Temperature, round1(r.MeanTemperature))
		d.Precipitation = append(d.Precipitation, round1(r.TotalPrecipitation))
	}

	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]dailyBlock{"daily": d})
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func round1(v float64) float64 {
	s, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	return s
}

func printStats(start time.Time, days int, production []domain.ProductionRecord, readings []domain.EquipmentReading, weather []domain.WeatherRecord) {
	thresholds := domain.DefaultThresholds()

	prodAnomalies := 0
	for _, r := range production {
		if domain.ClassifyProduction(r, thresholds).IsAnomalous() {
			prodAnomalies++
		}
	}
	iotAnomalies := 0
	for _, r := range readings {
		if domain.ClassifyReading(r).IsAnomalous() {
			iotAnomalies++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Production rows: %d (%d anomalous)\n", len(production), prodAnomalies)
	fmt.Printf("Telemetry readings: %d (%d anomalous)\n", len(readings), iotAnomalies)

	// Aggregate the first day end to end so expected fact-row values are easy
	// to paste into tests.
	day := domain.Day(start)
	var prodDay []domain.ProductionRecord
	for _, r := range production {
		if r.Date.Equal(day) {
			prodDay = append(prodDay, r)
		}
	}
	var readDay []domain.EquipmentReading
	for _, r := range readings {
		if domain.Day(r.Timestamp).Equal(day) {
			readDay = append(readDay, r)
		}
	}
	var weatherDay []domain.WeatherRecord
	for _, r := range weather {
		if r.Date.Equal(day) {
			weatherDay = append(weatherDay, r)
		}
	}

	var equip []domain.EquipmentRecord
	if len(readDay) > 0 {
		equip = append(equip, domain.FoldReadings(day, readDay))
	}
	m := domain.Aggregate(day, prodDay, equip, weatherDay)

	fmt.Printf("\nFirst day (%s, %d days generated):\n", day.Format(time.DateOnly), days)
	fmt.Printf("  Total production: %s t\n", m.TotalProductionDaily.String())
	if m.AverageQualityGrade != nil {
		fmt.Printf("  Avg quality grade: %s\n", m.AverageQualityGrade.String())
	}
	if m.EquipmentUtilization != nil {
		fmt.Printf("  Equipment utilization: %.4f\n", *m.EquipmentUtilization)
	}
	fmt.Printf("  Total fuel: %s L\n", m.TotalFuelConsumption.String())
	fmt.Printf("  Fuel efficiency: %s t/L\n", m.FuelEfficiency.String())
}
