package parking_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"parking-system/internal/parking"
	"parking-system/internal/store/memstore"
)

type testTelemetry struct {
	provider *parking.TelemetryProvider
	spans    *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

func newTestTelemetry(t *testing.T) *testTelemetry {
	t.Helper()

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	provider := parking.NewTelemetryProviderFrom(tp, mp, "parking-system-test")
	t.Cleanup(func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	return &testTelemetry{provider: provider, spans: spans, reader: reader}
}

func (tt *testTelemetry) spanNames() []string {
	var names []string
	for _, span := range tt.spans.Ended() {
		names = append(names, span.Name())
	}
	return names
}

func (tt *testTelemetry) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, tt.reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	require.True(t, ok, "metric %s not recorded", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

type scriptedInput struct {
	selection        int
	vehicleRegNumber string
}

func (in scriptedInput) ReadSelection() (int, error) { return in.selection, nil }

func (in scriptedInput) ReadVehicleRegistrationNumber() (string, error) {
	return in.vehicleRegNumber, nil
}

func TestInstrumentedParkingServiceIntegration(t *testing.T) {
	telemetry := newTestTelemetry(t)
	metrics, err := parking.NewParkingMetrics(telemetry.provider)
	require.NoError(t, err)

	store := memstore.New(2, 1)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	service := parking.NewParkingService(scriptedInput{1, "ABCDEF"}, store, store,
		parking.WithOutput(&bytes.Buffer{}),
		parking.WithClock(func() time.Time { return now }),
	)
	ips := parking.NewInstrumentedParkingService(service, telemetry.provider, metrics)
	ctx := context.Background()

	result, err := ips.ProcessIncomingVehicle(ctx)
	require.NoError(t, err)
	assert.Equal(t, parking.OutcomeCheckedIn, result.Outcome)

	rm := telemetry.collect(t)
	assert.Equal(t, int64(1), sumInt64(t, rm, "parking_checkins_total"))
	assert.Equal(t, int64(1), sumInt64(t, rm, "parking_occupancy"))

	now = now.Add(2 * time.Hour)
	result, err = ips.ProcessExitingVehicle(ctx)
	require.NoError(t, err)
	assert.Equal(t, parking.OutcomeCheckedOut, result.Outcome)
	assert.InDelta(t, 3.0, result.Ticket.Price, 1e-9)

	rm = telemetry.collect(t)
	assert.Equal(t, int64(1), sumInt64(t, rm, "parking_checkouts_total"))
	assert.Equal(t, int64(0), sumInt64(t, rm, "parking_occupancy"))

	fares, ok := findMetric(rm, "parking_fare_amount")
	require.True(t, ok)
	histogram, ok := fares.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.InDelta(t, 3.0, histogram.DataPoints[0].Sum, 1e-9)

	assert.Equal(t, []string{
		"parking_service.process_incoming_vehicle",
		"parking_service.process_exiting_vehicle",
	}, telemetry.spanNames())
}

func TestInstrumentedParkingServiceRecordsNotParked(t *testing.T) {
	telemetry := newTestTelemetry(t)
	metrics, err := parking.NewParkingMetrics(telemetry.provider)
	require.NoError(t, err)

	store := memstore.New(1, 0)
	service := parking.NewParkingService(scriptedInput{1, "ABCDEF"}, store, store, parking.WithOutput(&bytes.Buffer{}))
	ips := parking.NewInstrumentedParkingService(service, telemetry.provider, metrics)

	result, err := ips.ProcessExitingVehicle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, parking.OutcomeNotParked, result.Outcome)

	rm := telemetry.collect(t)
	assert.Equal(t, int64(1), sumInt64(t, rm, "parking_checkouts_total"))
	_, ok := findMetric(rm, "parking_fare_amount")
	assert.False(t, ok)

	ended := telemetry.spans.Ended()
	require.Len(t, ended, 1)
	var outcome string
	for _, attr := range ended[0].Attributes() {
		if attr.Key == "parking.outcome" {
			outcome = attr.Value.AsString()
		}
	}
	assert.Equal(t, string(parking.OutcomeNotParked), outcome)
}

func TestInstrumentedParkingServiceRecordsErrors(t *testing.T) {
	telemetry := newTestTelemetry(t)
	metrics, err := parking.NewParkingMetrics(telemetry.provider)
	require.NoError(t, err)

	store := memstore.New(1, 0)
	service := parking.NewParkingService(scriptedInput{7, "ABCDEF"}, store, store, parking.WithOutput(&bytes.Buffer{}))
	ips := parking.NewInstrumentedParkingService(service, telemetry.provider, metrics)

	_, err = ips.ProcessIncomingVehicle(context.Background())
	assert.ErrorIs(t, err, parking.ErrInvalidVehicleType)

	ended := telemetry.spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Error", ended[0].Status().Code.String())
	assert.NotEmpty(t, ended[0].Events())
}
