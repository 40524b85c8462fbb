package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"parking-system/internal/parking"
	"parking-system/internal/store/memstore"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type failingSpots struct{}

func (failingSpots) GetNextAvailableSlot(context.Context, parking.ParkingType) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingSpots) UpdateParking(context.Context, *parking.ParkingSpot) (bool, error) {
	return false, errors.New("connection refused")
}

type testEnv struct {
	router http.Handler
	store  *memstore.Store
	clock  *clock
}

func newTestEnv(t *testing.T, store *memstore.Store, customize func(*Dependencies)) *testEnv {
	t.Helper()

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(tracetest.NewSpanRecorder()))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	telemetry := parking.NewTelemetryProviderFrom(tp, mp, "parking-system-test")
	metrics, err := parking.NewParkingMetrics(telemetry)
	require.NoError(t, err)

	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	deps := Dependencies{
		ServiceName: "parking-system-test",
		Spots:       store,
		Tickets:     store,
		Telemetry:   telemetry,
		Metrics:     metrics,
		Clock:       c.Now,
	}
	if customize != nil {
		customize(&deps)
	}

	return &testEnv{
		router: NewRouter(NewHandler(deps)),
		store:  store,
		clock:  c,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func ticketData(t *testing.T, resp Response) TicketResponse {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var ticket TicketResponse
	require.NoError(t, json.Unmarshal(raw, &ticket))
	return ticket
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	rec, _ := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "parking-system-test", health.Service)
}

func TestHealthCheckNotReady(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), func(d *Dependencies) {
		d.Ready = func(context.Context) error { return errors.New("database down") }
	})

	rec, _ := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIncomingVehicle(t *testing.T) {
	env := newTestEnv(t, memstore.New(2, 1), nil)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", `{"vehicle_type":"car","registration":"ABCDEF"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	ticket := ticketData(t, resp)
	assert.Equal(t, 1, ticket.ParkingNumber)
	assert.Equal(t, "CAR", ticket.ParkingType)
	assert.Equal(t, "ABCDEF", ticket.Registration)
	assert.Nil(t, ticket.OutTime)
	assert.Contains(t, resp.Notices, "Please park your vehicle in spot number:1")
	assert.Contains(t, resp.Notices, "Generated Ticket and saved in DB")

	assert.False(t, env.store.Spots()[0].IsAvailable)
}

func TestIncomingVehicleAlreadyParked(t *testing.T) {
	env := newTestEnv(t, memstore.New(2, 1), nil)
	body := `{"vehicle_type":"CAR","registration":"ABCDEF"}`

	rec, _ := env.do(t, http.MethodPost, "/api/parking/incoming", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Notices, "Le véhicule est déjà dans le parking")
	assert.Len(t, env.store.OpenTickets(), 1)
}

func TestIncomingVehicleNoSpot(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 0), nil)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", `{"vehicle_type":"BIKE","registration":"BIKE01"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp.Notices, "Error fetching parking number from DB. Parking slots might be full")
}

func TestIncomingVehicleValidation(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"vehicle_type":`},
		{name: "unknown type", body: `{"vehicle_type":"TRUCK","registration":"ABCDEF"}`},
		{name: "missing registration", body: `{"vehicle_type":"CAR","registration":"  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
		})
	}
	assert.Empty(t, env.store.OpenTickets())
}

func TestIncomingVehicleStoreFailure(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), func(d *Dependencies) {
		d.Spots = failingSpots{}
	})

	rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", `{"vehicle_type":"CAR","registration":"ABCDEF"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Check-in failed", resp.Error)
}

func TestExitingVehicleNotParked(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/exiting", `{"registration":"GHOST"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Notices, "Ce véhicule n'est pas dans le parking")
}

func TestCheckInAndOut(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	rec, _ := env.do(t, http.MethodPost, "/api/parking/incoming", `{"vehicle_type":"CAR","registration":"ABCDEF"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	env.clock.now = env.clock.now.Add(time.Hour)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/exiting", `{"registration":"ABCDEF"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ticket := ticketData(t, resp)
	assert.InDelta(t, 1.5, ticket.Price, 1e-9)
	assert.False(t, ticket.RecurringUser)
	require.NotNil(t, ticket.OutTime)
	assert.Contains(t, resp.Notices, "Please pay the parking fare:1.50")
	assert.True(t, env.store.Spots()[0].IsAvailable)

	rec, resp = env.do(t, http.MethodGet, "/api/parking/tickets/ABCDEF", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stored := ticketData(t, resp)
	assert.Equal(t, ticket.TicketID, stored.TicketID)
	require.NotNil(t, stored.OutTime)
}

func TestRecurringUserGetsDiscount(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)
	in := `{"vehicle_type":"CAR","registration":"ABCDEF"}`
	out := `{"registration":"ABCDEF"}`

	env.do(t, http.MethodPost, "/api/parking/incoming", in)
	env.clock.now = env.clock.now.Add(time.Hour)
	env.do(t, http.MethodPost, "/api/parking/exiting", out)

	rec, resp := env.do(t, http.MethodPost, "/api/parking/incoming", in)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, ticketData(t, resp).RecurringUser)

	env.clock.now = env.clock.now.Add(2 * time.Hour)
	rec, resp = env.do(t, http.MethodPost, "/api/parking/exiting", out)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 2*1.5*0.95, ticketData(t, resp).Price, 1e-9)
}

func TestGetTicketNotFound(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	rec, resp := env.do(t, http.MethodGet, "/api/parking/tickets/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Ticket not found", resp.Error)
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/parking/tickets/NOPE", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	require.NotNil(t, resp.Meta)
	assert.Equal(t, "req-42", resp.Meta.RequestID)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, memstore.New(1, 1), nil)
	env.do(t, http.MethodGet, "/api/parking/tickets/NOPE", "")

	rec, _ := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",route="/api/parking/tickets/{registration}",status="404"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds")
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

// rendezvousSpots holds every caller of GetNextAvailableSlot until all
// expected callers have read the same free spot.
type rendezvousSpots struct {
	*memstore.Store
	arrived sync.WaitGroup
}

func (s *rendezvousSpots) GetNextAvailableSlot(ctx context.Context, parkingType parking.ParkingType) (int, error) {
	number, err := s.Store.GetNextAvailableSlot(ctx, parkingType)
	s.arrived.Done()
	s.arrived.Wait()
	return number, err
}

func TestShellAndAPICheckInRaceForLastSpot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(1, 0)
	spots := &rendezvousSpots{Store: store}
	spots.arrived.Add(2)

	env := newTestEnv(t, store, func(d *Dependencies) {
		d.Spots = spots
	})
	shell := parking.NewParkingService(parking.StaticInputReader{
		Selection:        parking.SelectionFor(parking.ParkingTypeCar),
		VehicleRegNumber: "SHELL1",
	}, spots, store, parking.WithOutput(io.Discard), parking.WithClock(env.clock.Now))

	var wg sync.WaitGroup
	var shellResult *parking.Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		shellResult, _ = shell.ProcessIncomingVehicle(ctx)
	}()

	rec, _ := env.do(t, http.MethodPost, "/api/parking/incoming", `{"vehicle_type":"CAR","registration":"HTTP1"}`)
	wg.Wait()

	require.NotNil(t, shellResult)
	apiWon := rec.Code == http.StatusCreated
	shellWon := shellResult.Outcome == parking.OutcomeCheckedIn
	assert.NotEqual(t, apiWon, shellWon, "exactly one check-in gets the spot")

	open := store.OpenTickets()
	require.Len(t, open, 1)
	assert.Equal(t, 1, open[0].ParkingSpot.ID)
	assert.False(t, store.Spots()[0].IsAvailable)
}
