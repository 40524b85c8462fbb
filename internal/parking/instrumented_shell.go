package parking

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parking-system/internal/logging"
)

type VehicleProcessor interface {
	ProcessIncomingVehicle(ctx context.Context) (*Result, error)
	ProcessExitingVehicle(ctx context.Context) (*Result, error)
}

// InstrumentedShell is the attendant console. It reads menu choices from the
// same input the processor reads vehicle details from.
type InstrumentedShell struct {
	processor VehicleProcessor
	input     InputReader
	out       io.Writer
	telemetry *TelemetryProvider
}

func NewInstrumentedShell(processor VehicleProcessor, input InputReader, out io.Writer, telemetry *TelemetryProvider) *InstrumentedShell {
	return &InstrumentedShell{
		processor: processor,
		input:     input,
		out:       out,
		telemetry: telemetry,
	}
}

func (s *InstrumentedShell) Run(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")
	fmt.Fprintln(s.out, "Welcome to Parking System!")

	for {
		if ctx.Err() != nil {
			break
		}

		s.printMenu()
		option, err := s.input.ReadSelection()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				span.RecordError(err)
				logging.Error(ctx).Err(err).Msg("unable to read menu option")
			}
			break
		}

		// Create a new span for each command
		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.Int("command.option", option)))

		keepRunning := s.processCommand(cmdCtx, option)
		cmdSpan.End()

		if !keepRunning {
			break
		}
	}

	span.AddEvent("shell_ended")
}

func (s *InstrumentedShell) printMenu() {
	fmt.Fprintln(s.out, "Please select an option. Simply enter the number to choose an action")
	fmt.Fprintln(s.out, "1 New Vehicle Entering - Allocate Parking Space")
	fmt.Fprintln(s.out, "2 Vehicle Exiting - Generate Ticket Price")
	fmt.Fprintln(s.out, "3 Shutdown System")
}

func (s *InstrumentedShell) processCommand(ctx context.Context, option int) bool {
	span := trace.SpanFromContext(ctx)

	switch option {
	case 1:
		s.handleIncoming(ctx)
	case 2:
		s.handleExiting(ctx)
	case 3:
		span.AddEvent("shutdown_requested")
		fmt.Fprintln(s.out, "Exiting from the system!")
		return false
	default:
		span.AddEvent("unknown_command", trace.WithAttributes(
			attribute.Int("unknown_option", option),
		))
		fmt.Fprintln(s.out, "Unsupported option. Please enter a number corresponding to the provided menu")
	}
	return true
}

func (s *InstrumentedShell) handleIncoming(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.incoming_command")
	defer span.End()

	result, err := s.processor.ProcessIncomingVehicle(ctx)
	if err != nil {
		span.AddEvent("check_in_failed")
		logFailure(ctx, err).Err(err).Msg("unable to process incoming vehicle")
		return
	}
	span.SetAttributes(attribute.String("parking.outcome", string(result.Outcome)))
}

func (s *InstrumentedShell) handleExiting(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.exiting_command")
	defer span.End()

	result, err := s.processor.ProcessExitingVehicle(ctx)
	if err != nil {
		span.AddEvent("check_out_failed")
		logFailure(ctx, err).Err(err).Msg("unable to process exiting vehicle")
		return
	}
	span.SetAttributes(attribute.String("parking.outcome", string(result.Outcome)))
}

// logFailure reports bad attendant input as a warning and anything else as an
// error.
func logFailure(ctx context.Context, err error) *zerolog.Event {
	if errors.Is(err, ErrInvalidVehicleType) || errors.Is(err, ErrEmptyRegistration) {
		return logging.Warn(ctx)
	}
	return logging.Error(ctx)
}
