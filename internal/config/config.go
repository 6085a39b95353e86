package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
// A .env file in the working directory is loaded first if present.
type Config struct {
	// Operational source (MySQL production_logs + mines dimension).
	MySQLHost     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// IoT equipment telemetry CSV export.
	IoTDataPath string

	// Warehouse sink (PostgreSQL).
	WarehouseDSN string

	// Mine site, for the weather API.
	SiteLatitude  float64
	SiteLongitude float64
	SiteTimezone  string

	// Ops HTTP surface and logging.
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Orchestration.
	Workers        int
	MaxRetries     int
	SourceBatch    int // rows per page when reading production logs
	WeatherTimeout time.Duration

	// Anomaly alert feed (optional).
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Anomaly classification bounds.
	Thresholds domain.Thresholds
}

// Load reads configuration from the environment, applying defaults where
// unset. Defaults for the site coordinates are the Berau basin deployment
// the pipeline was built for.
func Load() (*Config, error) {
	// Optional; absence is the normal case outside local development.
	_ = godotenv.Load()

	shutdownTimeout, err := durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := durationOrDefault("WEATHER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	lat, err := floatOrDefault("SITE_LATITUDE", 2.0167)
	if err != nil {
		return nil, err
	}
	lon, err := floatOrDefault("SITE_LONGITUDE", 117.3)
	if err != nil {
		return nil, err
	}

	thresholds, err := loadThresholds()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		MySQLHost:     envOrDefault("MYSQL_HOST", "localhost:3306"),
		MySQLUser:     os.Getenv("MYSQL_USER"),
		MySQLPassword: os.Getenv("MYSQL_PASSWORD"),
		MySQLDatabase: envOrDefault("MYSQL_DATABASE", "mine_ops"),

		IoTDataPath: envOrDefault("IOT_DATA_PATH", "./data/iot/equipment_sensors.csv"),

		WarehouseDSN: os.Getenv("WAREHOUSE_DSN"),

		SiteLatitude:  lat,
		SiteLongitude: lon,
		SiteTimezone:  envOrDefault("SITE_TIMEZONE", "Asia/Jakarta"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Workers:        intOrDefault("WORKERS", 4),
		MaxRetries:     intOrDefault("MAX_RETRIES", 3),
		SourceBatch:    intOrDefault("SOURCE_BATCH", 500),
		WeatherTimeout: weatherTimeout,

		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "mine-anomaly-alerts"),

		Thresholds: thresholds,
	}

	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}

	if cfg.MySQLUser == "" {
		return nil, errors.New("MYSQL_USER is required")
	}
	if cfg.MySQLPassword == "" {
		return nil, errors.New("MYSQL_PASSWORD is required")
	}
	if cfg.WarehouseDSN == "" {
		return nil, errors.New("WAREHOUSE_DSN is required")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("MAX_RETRIES must not be negative")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// MySQLDSN assembles the go-sql-driver DSN for the operational store.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLDatabase)
}

func loadThresholds() (domain.Thresholds, error) {
	t := domain.DefaultThresholds()

	var err error
	if t.TonsCeiling, err = decimalOrDefault("TONS_CEILING", t.TonsCeiling); err != nil {
		return t, err
	}
	if t.QualityGradeMin, err = decimalOrDefault("QUALITY_GRADE_MIN", t.QualityGradeMin); err != nil {
		return t, err
	}
	if t.QualityGradeMax, err = decimalOrDefault("QUALITY_GRADE_MAX", t.QualityGradeMax); err != nil {
		return t, err
	}
	if t.UtilizationMin, err = floatOrDefault("UTILIZATION_MIN", t.UtilizationMin); err != nil {
		return t, err
	}
	if t.UtilizationMax, err = floatOrDefault("UTILIZATION_MAX", t.UtilizationMax); err != nil {
		return t, err
	}
	if t.TemperatureMin, err = floatOrDefault("TEMPERATURE_MIN", t.TemperatureMin); err != nil {
		return t, err
	}
	if t.TemperatureMax, err = floatOrDefault("TEMPERATURE_MAX", t.TemperatureMax); err != nil {
		return t, err
	}
	if t.PrecipitationMax, err = floatOrDefault("PRECIPITATION_MAX", t.PrecipitationMax); err != nil {
		return t, err
	}
	return t, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func floatOrDefault(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func decimalOrDefault(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
