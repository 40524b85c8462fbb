package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"parking-system/internal/logging"
	"parking-system/internal/parking"
)

// Dependencies are shared by every request. Publisher and Fare may be nil.
type Dependencies struct {
	ServiceName string
	Spots       parking.ParkingSpotStore
	Tickets     parking.TicketStore
	Fare        *parking.FareCalculator
	Publisher   parking.TicketEventPublisher
	Telemetry   *parking.TelemetryProvider
	Metrics     *parking.ParkingMetrics
	Clock       func() time.Time
	Ready       func(ctx context.Context) error
}

type Handler struct {
	deps Dependencies
	// mu keeps one check-in or check-out in flight at a time.
	mu sync.Mutex
}

func NewHandler(deps Dependencies) *Handler {
	if deps.ServiceName == "" {
		deps.ServiceName = parking.DefaultServiceName
	}
	return &Handler{deps: deps}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Ready != nil {
		if err := h.deps.Ready(ctx); err != nil {
			logging.Error(ctx).Err(err).Msg("readiness check failed")
			WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "unhealthy",
				Service: h.deps.ServiceName,
				Meta:    extractMeta(ctx),
			})
			return
		}
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.deps.ServiceName,
		Meta:    extractMeta(ctx),
	})
}

func (h *Handler) IncomingVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req IncomingVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	parkingType := parking.ParkingType(strings.ToUpper(strings.TrimSpace(req.VehicleType)))
	if !parkingType.Valid() {
		WriteError(ctx, w, http.StatusBadRequest, "vehicle_type must be CAR or BIKE")
		return
	}
	registration := strings.TrimSpace(req.Registration)
	if registration == "" {
		WriteError(ctx, w, http.StatusBadRequest, "Registration number is required")
		return
	}

	input := parking.StaticInputReader{
		Selection:        parking.SelectionFor(parkingType),
		VehicleRegNumber: registration,
	}

	h.mu.Lock()
	var out bytes.Buffer
	result, err := h.newService(input, &out).ProcessIncomingVehicle(ctx)
	h.mu.Unlock()

	notices := splitNotices(out.String())
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", registration).Msg("check-in failed")
		WriteError(ctx, w, statusForError(err), "Check-in failed", notices...)
		return
	}

	switch result.Outcome {
	case parking.OutcomeCheckedIn:
		WriteSuccess(ctx, w, http.StatusCreated, "Vehicle checked in", newTicketResponse(result.Ticket, result.Recurring), notices)
	case parking.OutcomeNoSpotAvailable:
		WriteError(ctx, w, http.StatusConflict, "No parking spot available", notices...)
	case parking.OutcomeAlreadyParked:
		WriteError(ctx, w, http.StatusConflict, "Vehicle is already parked", notices...)
	default:
		WriteError(ctx, w, http.StatusInternalServerError, "Check-in failed", notices...)
	}
}

func (h *Handler) ExitingVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ExitingVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return
	}

	registration := strings.TrimSpace(req.Registration)
	if registration == "" {
		WriteError(ctx, w, http.StatusBadRequest, "Registration number is required")
		return
	}

	input := parking.StaticInputReader{VehicleRegNumber: registration}

	h.mu.Lock()
	var out bytes.Buffer
	result, err := h.newService(input, &out).ProcessExitingVehicle(ctx)
	h.mu.Unlock()

	notices := splitNotices(out.String())
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", registration).Msg("check-out failed")
		WriteError(ctx, w, statusForError(err), "Check-out failed", notices...)
		return
	}

	switch result.Outcome {
	case parking.OutcomeCheckedOut:
		WriteSuccess(ctx, w, http.StatusOK, "Vehicle checked out", newTicketResponse(result.Ticket, result.Recurring), notices)
	case parking.OutcomeNotParked:
		WriteError(ctx, w, http.StatusNotFound, "Vehicle is not parked", notices...)
	default:
		WriteError(ctx, w, http.StatusInternalServerError, "Check-out failed", notices...)
	}
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registration := chi.URLParam(r, "registration")
	if registration == "" {
		WriteError(ctx, w, http.StatusBadRequest, "Registration number is required")
		return
	}

	ticket, err := h.deps.Tickets.GetTicket(ctx, registration)
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", registration).Msg("ticket lookup failed")
		WriteError(ctx, w, http.StatusInternalServerError, "Ticket lookup failed")
		return
	}
	if ticket == nil {
		WriteError(ctx, w, http.StatusNotFound, "Ticket not found")
		return
	}

	WriteSuccess(ctx, w, http.StatusOK, "Ticket found", newTicketResponse(ticket, false), nil)
}

func (h *Handler) newService(input parking.InputReader, out *bytes.Buffer) *parking.InstrumentedParkingService {
	opts := []parking.Option{parking.WithOutput(out)}
	if h.deps.Fare != nil {
		opts = append(opts, parking.WithFareCalculator(h.deps.Fare))
	}
	if h.deps.Publisher != nil {
		opts = append(opts, parking.WithPublisher(h.deps.Publisher))
	}
	if h.deps.Clock != nil {
		opts = append(opts, parking.WithClock(h.deps.Clock))
	}

	service := parking.NewParkingService(input, h.deps.Spots, h.deps.Tickets, opts...)
	return parking.NewInstrumentedParkingService(service, h.deps.Telemetry, h.deps.Metrics)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, parking.ErrInvalidVehicleType), errors.Is(err, parking.ErrEmptyRegistration):
		return http.StatusBadRequest
	case errors.Is(err, parking.ErrTicketNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func splitNotices(out string) []string {
	var notices []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			notices = append(notices, line)
		}
	}
	return notices
}
