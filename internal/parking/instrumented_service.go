package parking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ParkingMetrics holds the instruments shared by every instrumented service
// built from the same telemetry provider.
type ParkingMetrics struct {
	checkinOperations  metric.Int64Counter
	checkoutOperations metric.Int64Counter
	occupancyGauge     metric.Int64UpDownCounter
	fareAmount         metric.Float64Histogram
	operationDuration  metric.Float64Histogram
}

func NewParkingMetrics(telemetry *TelemetryProvider) (*ParkingMetrics, error) {
	meter := telemetry.Meter()

	checkinOperations, err := meter.Int64Counter("parking_checkins_total",
		metric.WithDescription("Total number of check-in transactions"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	checkoutOperations, err := meter.Int64Counter("parking_checkouts_total",
		metric.WithDescription("Total number of check-out transactions"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64UpDownCounter("parking_occupancy",
		metric.WithDescription("Current number of occupied parking spots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	fareAmount, err := meter.Float64Histogram("parking_fare_amount",
		metric.WithDescription("Fare charged at check-out"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of parking service operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &ParkingMetrics{
		checkinOperations:  checkinOperations,
		checkoutOperations: checkoutOperations,
		occupancyGauge:     occupancyGauge,
		fareAmount:         fareAmount,
		operationDuration:  operationDuration,
	}, nil
}

type InstrumentedParkingService struct {
	*ParkingService
	telemetry *TelemetryProvider
	metrics   *ParkingMetrics
}

func NewInstrumentedParkingService(service *ParkingService, telemetry *TelemetryProvider, metrics *ParkingMetrics) *InstrumentedParkingService {
	return &InstrumentedParkingService{
		ParkingService: service,
		telemetry:      telemetry,
		metrics:        metrics,
	}
}

func (ips *InstrumentedParkingService) ProcessIncomingVehicle(ctx context.Context) (*Result, error) {
	tracer := ips.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "parking_service.process_incoming_vehicle")
	defer span.End()

	start := time.Now()

	span.AddEvent("finding_available_spot")

	result, err := ips.ParkingService.ProcessIncomingVehicle(ctx)

	duration := time.Since(start).Seconds()
	labels := ips.record(span, "check_in", result, err)

	ips.metrics.checkinOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	if err == nil && result.Outcome == OutcomeCheckedIn {
		span.AddEvent("spot_allocated", trace.WithAttributes(
			attribute.Int("parking_number", result.Ticket.ParkingSpot.ID),
		))
		ips.metrics.occupancyGauge.Add(ctx, 1, metric.WithAttributes(
			attribute.String("parking_type", string(result.Ticket.ParkingSpot.ParkingType)),
		))
	}

	ips.metrics.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return result, err
}

func (ips *InstrumentedParkingService) ProcessExitingVehicle(ctx context.Context) (*Result, error) {
	tracer := ips.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "parking_service.process_exiting_vehicle")
	defer span.End()

	start := time.Now()

	span.AddEvent("looking_up_ticket")

	result, err := ips.ParkingService.ProcessExitingVehicle(ctx)

	duration := time.Since(start).Seconds()
	labels := ips.record(span, "check_out", result, err)

	ips.metrics.checkoutOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	if err == nil && result.Outcome == OutcomeCheckedOut {
		parkingType := attribute.String("parking_type", string(result.Ticket.ParkingSpot.ParkingType))
		span.SetAttributes(attribute.Float64("ticket.price", result.Ticket.Price))
		span.AddEvent("spot_released", trace.WithAttributes(
			attribute.Int("parking_number", result.Ticket.ParkingSpot.ID),
		))
		ips.metrics.occupancyGauge.Add(ctx, -1, metric.WithAttributes(parkingType))
		ips.metrics.fareAmount.Record(ctx, result.Ticket.Price, metric.WithAttributes(
			parkingType,
			attribute.Bool("recurring_user", result.Recurring),
		))
	}

	ips.metrics.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))

	return result, err
}

// record annotates the span with the transaction result and returns the
// metric labels for it.
func (ips *InstrumentedParkingService) record(span trace.Span, operation string, result *Result, err error) []attribute.KeyValue {
	labels := []attribute.KeyValue{
		attribute.String("operation", operation),
	}

	if result != nil {
		labels = append(labels, attribute.String("outcome", string(result.Outcome)))
		span.SetAttributes(
			attribute.String("parking.outcome", string(result.Outcome)),
			attribute.Bool("parking.recurring_user", result.Recurring),
		)
		if result.Ticket != nil {
			span.SetAttributes(attribute.String("vehicle.registration_number", result.Ticket.VehicleRegNumber))
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", "failed"))
	} else {
		labels = append(labels, attribute.String("status", "success"))
	}

	return labels
}
