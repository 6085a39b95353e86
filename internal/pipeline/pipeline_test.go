package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
	"github.com/couchcryptid/mine-metrics-etl/internal/observability"
	"github.com/couchcryptid/mine-metrics-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// --- mocks ---

type mockProduction struct {
	mu      sync.Mutex
	records map[string][]domain.ProductionRecord
	fail    map[string]error // per-date error, returned on every call
	once    map[string]error // per-date error, returned on the first call only
	calls   map[string]int
}

func (m *mockProduction) ReadProduction(_ context.Context, day time.Time) ([]domain.ProductionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := day.Format(time.DateOnly)
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[key]++
	if err := m.fail[key]; err != nil {
		return nil, err
	}
	if err := m.once[key]; err != nil && m.calls[key] == 1 {
		return nil, err
	}
	return m.records[key], nil
}

type mockEquipment struct {
	readings map[string][]domain.EquipmentReading
}

func (m *mockEquipment) ReadEquipment(_ context.Context, day time.Time) ([]domain.EquipmentReading, error) {
	return m.readings[day.Format(time.DateOnly)], nil
}

type mockWeather struct {
	records map[string][]domain.WeatherRecord
}

func (m *mockWeather) ReadWeather(_ context.Context, day time.Time) ([]domain.WeatherRecord, error) {
	return m.records[day.Format(time.DateOnly)], nil
}

type mockWriter struct {
	mu        sync.Mutex
	upserts   map[string]domain.DailyProductionMetrics
	anomalies []domain.AnomalySet
	failWrite error
}

func (m *mockWriter) UpsertDaily(_ context.Context, dm domain.DailyProductionMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	if m.upserts == nil {
		m.upserts = map[string]domain.DailyProductionMetrics{}
	}
	m.upserts[dm.Date.Format(time.DateOnly)] = dm
	return nil
}

func (m *mockWriter) AppendAnomalies(_ context.Context, s domain.AnomalySet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies = append(m.anomalies, s)
	return nil
}

type mockWatermarks struct {
	mu    sync.Mutex
	saved []time.Time
}

func (m *mockWatermarks) Watermark(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return time.Time{}, false, nil
	}
	return m.saved[len(m.saved)-1], true, nil
}

func (m *mockWatermarks) SaveWatermark(_ context.Context, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, day)
	return nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dateKey(offset int) string {
	return day1.AddDate(0, 0, offset).Format(time.DateOnly)
}

func productionFor(days ...int) map[string][]domain.ProductionRecord {
	out := make(map[string][]domain.ProductionRecord, len(days))
	for _, d := range days {
		date := day1.AddDate(0, 0, d)
		out[dateKey(d)] = []domain.ProductionRecord{
			{Date: date, MineID: 1, Shift: "day", TonsExtracted: decimal.NewFromInt(100), QualityGrade: decimal.NewFromFloat(3.5)},
			{Date: date, MineID: 2, Shift: "night", TonsExtracted: decimal.NewFromInt(50), QualityGrade: decimal.NewFromInt(4)},
		}
	}
	return out
}

func newPipeline(t *testing.T, prod pipeline.ProductionReader, w *mockWriter, wm pipeline.WatermarkStore, opts pipeline.Options) *pipeline.Pipeline {
	t.Helper()
	if opts.Thresholds == (domain.Thresholds{}) {
		opts.Thresholds = domain.DefaultThresholds()
	}
	return pipeline.New(
		prod,
		&mockEquipment{},
		&mockWeather{},
		w,
		wm,
		nil,
		discardLogger(),
		observability.NewMetricsForTesting(),
		opts,
	)
}

// --- tests ---

func TestRun_HappyPath(t *testing.T) {
	prod := &mockProduction{records: productionFor(0, 1)}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 2, MaxRetries: 1})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1.AddDate(0, 0, 1)})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Done())
	assert.Zero(t, summary.Failed())
	require.Len(t, summary.Results, 2)
	assert.Equal(t, day1, summary.Results[0].Date, "results sorted by date")

	row, ok := w.upserts[dateKey(0)]
	require.True(t, ok)
	assert.True(t, row.TotalProductionDaily.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, row.AverageQualityGrade)
	assert.True(t, row.AverageQualityGrade.Equal(decimal.NewFromFloat(3.67)))

	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	// Day 2's source read always fails: days 1 and 3 must still complete.
	prod := &mockProduction{
		records: productionFor(0, 2),
		fail:    map[string]error{dateKey(1): fmt.Errorf("dial tcp: %w", domain.ErrSourceUnavailable)},
	}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 1})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1.AddDate(0, 0, 2)})
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, pipeline.StateDone, summary.Results[0].State)
	assert.Equal(t, pipeline.StateFailed, summary.Results[1].State)
	assert.Equal(t, pipeline.StateDone, summary.Results[2].State)

	failed := summary.Results[1]
	assert.Equal(t, pipeline.StateExtracting, failed.FailedStage)
	assert.ErrorIs(t, failed.Err, domain.ErrSourceUnavailable)
	assert.Equal(t, 2, failed.Attempts, "one initial attempt plus one retry")

	assert.Len(t, w.upserts, 2)
	_, day2Written := w.upserts[dateKey(1)]
	assert.False(t, day2Written)
}

func TestRun_SchemaMismatchNotRetried(t *testing.T) {
	prod := &mockProduction{
		fail: map[string]error{dateKey(0): fmt.Errorf("row 14: %w", domain.ErrSchemaMismatch)},
	}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 3})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, pipeline.StateFailed, summary.Results[0].State)
	assert.Equal(t, 1, summary.Results[0].Attempts, "non-retryable errors fail immediately")
	assert.Equal(t, 1, prod.calls[dateKey(0)])
}

func TestRun_TransientErrorRecovers(t *testing.T) {
	prod := &mockProduction{
		records: productionFor(0),
		once:    map[string]error{dateKey(0): domain.ErrSourceUnavailable},
	}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 2})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, pipeline.StateDone, summary.Results[0].State)
	assert.Equal(t, 2, prod.calls[dateKey(0)])
}

func TestRun_Idempotent(t *testing.T) {
	prod := &mockProduction{records: productionFor(0)}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 1})
	r := domain.DateRange{Start: day1, End: day1}

	_, err := p.Run(context.Background(), r)
	require.NoError(t, err)
	first := w.upserts[dateKey(0)]

	_, err = p.Run(context.Background(), r)
	require.NoError(t, err)
	second := w.upserts[dateKey(0)]

	assert.Len(t, w.upserts, 1, "exactly one row per date")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("re-run produced different values (-first +second):\n%s", diff)
	}
}

func TestRun_AnomaliesLoggedAndStillAggregated(t *testing.T) {
	date := day1
	prod := &mockProduction{records: map[string][]domain.ProductionRecord{
		dateKey(0): {
			{Date: date, MineID: 1, Shift: "day", TonsExtracted: decimal.NewFromInt(100), QualityGrade: decimal.NewFromInt(3)},
			{Date: date, MineID: 1, Shift: "night", TonsExtracted: decimal.NewFromInt(100), QualityGrade: decimal.NewFromInt(7)},
		},
	}}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 1})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Results[0].Anomalies)

	require.Len(t, w.anomalies, 1)
	require.Len(t, w.anomalies[0].Production, 1)
	flagged := w.anomalies[0].Production[0]
	assert.Equal(t, domain.ReasonQualityGradeOutOfRange, flagged.Reason)
	assert.True(t, flagged.QualityGrade.Equal(decimal.NewFromInt(7)))

	// The flagged record still contributes 7.0 x tons to the weighted mean.
	row := w.upserts[dateKey(0)]
	require.NotNil(t, row.AverageQualityGrade)
	assert.True(t, row.AverageQualityGrade.Equal(decimal.NewFromInt(5)),
		"weighted quality = %s", row.AverageQualityGrade)
}

func TestRun_WriteFailureFailsDate(t *testing.T) {
	prod := &mockProduction{records: productionFor(0)}
	w := &mockWriter{failWrite: fmt.Errorf("connection reset: %w", domain.ErrWriteFailure)}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 1})

	summary, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1})
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, pipeline.StateFailed, summary.Results[0].State)
	assert.Equal(t, pipeline.StateWriting, summary.Results[0].FailedStage)
	assert.ErrorIs(t, summary.Results[0].Err, domain.ErrWriteFailure)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestRun_InvalidRange(t *testing.T) {
	p := newPipeline(t, &mockProduction{}, &mockWriter{}, nil, pipeline.Options{Workers: 1})

	_, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1.AddDate(0, 0, -1)})
	assert.Error(t, err)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	prod := &mockProduction{records: productionFor(0, 1)}
	w := &mockWriter{}

	p := newPipeline(t, prod, w, nil, pipeline.Options{Workers: 1, MaxRetries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.Run(ctx, domain.DateRange{Start: day1, End: day1.AddDate(0, 0, 1)})
	require.NoError(t, err)

	// No date was written; unfed dates remain pending with the cancellation cause.
	assert.Empty(t, w.upserts)
	for _, r := range summary.Results {
		if r.State == pipeline.StatePending {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
}

func TestRun_WatermarkAdvancesThroughContiguousDone(t *testing.T) {
	// Day 2 fails: the watermark may only advance to day 1 even though day 3
	// succeeded.
	prod := &mockProduction{
		records: productionFor(0, 2),
		fail:    map[string]error{dateKey(1): domain.ErrSourceUnavailable},
	}
	w := &mockWriter{}
	wm := &mockWatermarks{}

	p := newPipeline(t, prod, w, wm, pipeline.Options{Workers: 1, MaxRetries: 0})

	_, err := p.Run(context.Background(), domain.DateRange{Start: day1, End: day1.AddDate(0, 0, 2)})
	require.NoError(t, err)

	require.Len(t, wm.saved, 1)
	assert.Equal(t, day1, wm.saved[0])
}
