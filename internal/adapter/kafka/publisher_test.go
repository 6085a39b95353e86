package kafka

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	day := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	anomaly := domain.ProductionAnomaly{
		Date:          day,
		MineID:        3,
		Shift:         "night",
		TonsExtracted: decimal.NewFromInt(-40),
		Reason:        domain.ReasonTonsNegative,
		DetectedAt:    time.Date(2024, time.January, 6, 2, 0, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(day, feedProduction, anomaly.Reason, anomaly)
	require.NoError(t, err)

	assert.Equal(t, []byte("2024-01-05"), msg.Key)
	assert.Contains(t, string(msg.Value), `"MineID":3`)
	assert.Contains(t, string(msg.Value), `"TonsExtracted":"-40"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "feed", msg.Headers[0].Key)
	assert.Equal(t, []byte(feedProduction), msg.Headers[0].Value)
	assert.Equal(t, "reason", msg.Headers[1].Key)
	assert.Equal(t, []byte(domain.ReasonTonsNegative), msg.Headers[1].Value)
}

func TestSerializeToMessage_KeyNormalizesTimeOfDay(t *testing.T) {
	day := time.Date(2024, time.January, 5, 17, 30, 0, 0, time.UTC)

	msg, err := serializeToMessage(day, feedWeather, domain.ReasonPrecipitationOutOfRange, domain.WeatherAnomaly{})
	require.NoError(t, err)
	assert.Equal(t, []byte("2024-01-05"), msg.Key)
}
