package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// archiveCutoff is how far back the forecast API reliably serves history.
// Older dates come from the archive API instead.
const archiveCutoff = 90 * 24 * time.Hour

// Client fetches daily weather observations for the mine site from the
// Open-Meteo forecast and archive APIs.
type Client struct {
	latitude    float64
	longitude   float64
	timezone    string
	httpClient  *http.Client
	forecastURL string
	archiveURL  string
	logger      *slog.Logger
}

// NewClient creates an Open-Meteo client pinned to one site.
func NewClient(latitude, longitude float64, timezone string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		latitude:  latitude,
		longitude: longitude,
		timezone:  timezone,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		archiveURL:  "https://archive-api.open-meteo.com/v1/archive",
		logger:      logger,
	}
}

// ReadWeather fetches one date's observations. Dates older than the forecast
// API's history window are served by the archive API; the two report the same
// daily variables, so the caller sees a single seamless feed.
func (c *Client) ReadWeather(ctx context.Context, day time.Time) ([]domain.WeatherRecord, error) {
	day = domain.Day(day)

	base := c.forecastURL
	source := "forecast"
	if day.Before(domain.Clock().Now().Add(-archiveCutoff)) {
		base = c.archiveURL
		source = "archive"
	}

	date := day.Format("2006-01-02")
	params := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", c.latitude)},
		"longitude":  {fmt.Sprintf("%.4f", c.longitude)},
		"daily":      {"temperature_2m_mean,precipitation_sum"},
		"timezone":   {c.timezone},
		"start_date": {date},
		"end_date":   {date},
	}

	return c.doRequest(ctx, base+"?"+params.Encode(), source)
}

func (c *Client) doRequest(ctx context.Context, fullURL, source string) ([]domain.WeatherRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s weather request: %w", domain.ErrSourceUnavailable, source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: open-meteo %s API: status %d: %s", domain.ErrSourceUnavailable, source, resp.StatusCode, body)
	}

	var meteoResp response
	if err := json.NewDecoder(resp.Body).Decode(&meteoResp); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %w", domain.ErrSchemaMismatch, source, err)
	}

	d := meteoResp.Daily
	if len(d.Temperature) != len(d.Time) || len(d.Precipitation) != len(d.Time) {
		return nil, fmt.Errorf("%w: %s daily arrays misaligned: %d times, %d temperatures, %d precipitations",
			domain.ErrSchemaMismatch, source, len(d.Time), len(d.Temperature), len(d.Precipitation))
	}

	records := make([]domain.WeatherRecord, 0, len(d.Time))
	for i, ts := range d.Time {
		date, err := time.Parse("2006-01-02", ts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s daily time %q: %w", domain.ErrSchemaMismatch, source, ts, err)
		}
		if d.Temperature[i] == nil || d.Precipitation[i] == nil {
			// The archive lags a few days behind real time; nulls mean the
			// observation simply is not in yet.
			c.logger.Debug("weather observation not yet available", "date", ts, "source", source)
			continue
		}
		records = append(records, domain.WeatherRecord{
			Date:               domain.Day(date),
			MeanTemperature:    *d.Temperature[i],
			TotalPrecipitation: *d.Precipitation[i],
		})
	}
	return records, nil
}

// Open-Meteo API response types.

type response struct {
	Daily daily `json:"daily"`
}

type daily struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m_mean"`
	Precipitation []*float64 `json:"precipitation_sum"`
}
