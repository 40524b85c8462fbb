package parking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"parking-system/internal/logging"
)

const (
	msgSelectVehicleType   = "Please select vehicle type from menu"
	msgIncorrectInput      = "Incorrect input provided"
	msgTypeRegistration    = "Please type the vehicle registration number and press enter key"
	msgNoSpotAvailable     = "Error fetching parking number from DB. Parking slots might be full"
	msgAlreadyInParking    = "Le véhicule est déjà dans le parking"
	msgNotInParking        = "Ce véhicule n'est pas dans le parking"
	msgRecurringUser       = "Heureux de vous revoir ! En tant qu’utilisateur régulier de notre parking, vous allez obtenir une remise de 5%"
	msgTicketSaved         = "Generated Ticket and saved in DB"
	msgUnableUpdateTicket  = "Unable to update ticket information. Error occurred"
	msgUnableUpdateParking = "Unable to update parking spot information. Error occurred"
	msgUnableSaveTicket    = "Unable to save ticket information. Error occurred"
	receiptTimeLayout      = time.DateTime
)

type Outcome string

const (
	OutcomeCheckedIn       Outcome = "checked_in"
	OutcomeCheckedOut      Outcome = "checked_out"
	OutcomeNoSpotAvailable Outcome = "no_spot_available"
	OutcomeAlreadyParked   Outcome = "already_parked"
	OutcomeNotParked       Outcome = "not_parked"
	OutcomeInvalidInput    Outcome = "invalid_input"
	OutcomeUpdateFailed    Outcome = "update_failed"
)

// Result describes how a check-in or check-out ended. Ticket is set whenever
// the transaction got far enough to create or load one.
type Result struct {
	Outcome   Outcome
	Ticket    *Ticket
	Recurring bool
}

// ParkingService runs one check-in or check-out transaction at a time against
// the injected input and storage collaborators.
type ParkingService struct {
	input     InputReader
	spots     ParkingSpotStore
	tickets   TicketStore
	fare      *FareCalculator
	publisher TicketEventPublisher
	out       io.Writer
	now       func() time.Time
}

type Option func(*ParkingService)

func WithFareCalculator(fc *FareCalculator) Option {
	return func(s *ParkingService) { s.fare = fc }
}

func WithPublisher(p TicketEventPublisher) Option {
	return func(s *ParkingService) { s.publisher = p }
}

// WithOutput sets where user-visible notices are written.
func WithOutput(w io.Writer) Option {
	return func(s *ParkingService) { s.out = w }
}

func WithClock(now func() time.Time) Option {
	return func(s *ParkingService) { s.now = now }
}

func NewParkingService(input InputReader, spots ParkingSpotStore, tickets TicketStore, opts ...Option) *ParkingService {
	s := &ParkingService{
		input:     input,
		spots:     spots,
		tickets:   tickets,
		fare:      NewFareCalculator(),
		publisher: noopPublisher{},
		out:       os.Stdout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetNextParkingNumberIfAvailable reads the vehicle type and returns a free
// spot for it. A full facility yields a nil spot and a nil error.
func (s *ParkingService) GetNextParkingNumberIfAvailable(ctx context.Context) (*ParkingSpot, error) {
	parkingType, err := s.readVehicleType()
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("error parsing user input for type of vehicle")
		return nil, err
	}

	number, err := s.spots.GetNextAvailableSlot(ctx, parkingType)
	if err != nil {
		logging.Error(ctx).Err(err).Str("parking_type", string(parkingType)).Msg("error fetching next available parking slot")
		return nil, fmt.Errorf("fetch next available slot: %w", err)
	}

	if number <= 0 {
		s.notify(msgNoSpotAvailable)
		return nil, nil
	}

	return NewParkingSpot(number, parkingType, true), nil
}

func (s *ParkingService) ProcessIncomingVehicle(ctx context.Context) (*Result, error) {
	spot, err := s.GetNextParkingNumberIfAvailable(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidVehicleType) {
			return &Result{Outcome: OutcomeInvalidInput}, err
		}
		return &Result{Outcome: OutcomeUpdateFailed}, err
	}
	if spot == nil {
		return &Result{Outcome: OutcomeNoSpotAvailable}, nil
	}

	vehicleRegNumber, err := s.readVehicleRegNumber()
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("unable to read vehicle registration number")
		return &Result{Outcome: OutcomeInvalidInput}, err
	}

	parked, err := s.tickets.IsAlreadyInParking(ctx, vehicleRegNumber)
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to process incoming vehicle")
		return &Result{Outcome: OutcomeUpdateFailed}, fmt.Errorf("check parking status: %w", err)
	}
	if parked {
		s.notify(msgAlreadyInParking)
		return &Result{Outcome: OutcomeAlreadyParked}, nil
	}

	spot.Occupy()
	if ok, err := s.spots.UpdateParking(ctx, spot); err != nil || !ok {
		s.notify(msgUnableUpdateParking)
		logging.Error(ctx).Err(err).Int("parking_number", spot.ID).Msg("unable to process incoming vehicle")
		return &Result{Outcome: OutcomeUpdateFailed}, joinStoreError(ErrUpdateParking, err)
	}

	recurring, err := s.isRecurringUser(ctx, vehicleRegNumber)
	if err != nil {
		return &Result{Outcome: OutcomeUpdateFailed}, err
	}
	if recurring {
		s.notify(msgRecurringUser)
	}

	ticket := NewTicket(spot, vehicleRegNumber, s.now())
	if ok, err := s.tickets.SaveTicket(ctx, ticket); err != nil || !ok {
		s.notify(msgUnableSaveTicket)
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to process incoming vehicle")
		return &Result{Outcome: OutcomeUpdateFailed, Ticket: ticket, Recurring: recurring}, joinStoreError(ErrSaveTicket, err)
	}

	s.notify(msgTicketSaved)
	s.notify(fmt.Sprintf("Please park your vehicle in spot number:%d", spot.ID))
	s.notify(fmt.Sprintf("Recorded in-time for vehicle number:%s is:%s", vehicleRegNumber, ticket.InTime.Format(receiptTimeLayout)))

	if err := s.publisher.PublishCheckedIn(ctx, ticket); err != nil {
		logging.Warn(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to publish check-in event")
	}

	return &Result{Outcome: OutcomeCheckedIn, Ticket: ticket, Recurring: recurring}, nil
}

func (s *ParkingService) ProcessExitingVehicle(ctx context.Context) (*Result, error) {
	vehicleRegNumber, err := s.readVehicleRegNumber()
	if err != nil {
		logging.Warn(ctx).Err(err).Msg("unable to read vehicle registration number")
		return &Result{Outcome: OutcomeInvalidInput}, err
	}

	parked, err := s.tickets.IsAlreadyInParking(ctx, vehicleRegNumber)
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to process exiting vehicle")
		return &Result{Outcome: OutcomeUpdateFailed}, fmt.Errorf("check parking status: %w", err)
	}
	if !parked {
		s.notify(msgNotInParking)
		return &Result{Outcome: OutcomeNotParked}, nil
	}

	ticket, err := s.tickets.GetTicket(ctx, vehicleRegNumber)
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to process exiting vehicle")
		return &Result{Outcome: OutcomeUpdateFailed}, fmt.Errorf("get ticket: %w", err)
	}
	if ticket == nil {
		return &Result{Outcome: OutcomeUpdateFailed}, fmt.Errorf("%w: %s", ErrTicketNotFound, vehicleRegNumber)
	}

	recurring, err := s.isRecurringUser(ctx, vehicleRegNumber)
	if err != nil {
		return &Result{Outcome: OutcomeUpdateFailed, Ticket: ticket}, err
	}

	outTime := s.now()
	ticket.OutTime = &outTime
	if err := s.fare.CalculateFare(ticket, recurring); err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("fare calculation rejected ticket")
		return &Result{Outcome: OutcomeUpdateFailed, Ticket: ticket, Recurring: recurring}, err
	}

	// The spot is released only once the paid ticket is stored.
	if ok, err := s.tickets.UpdateTicket(ctx, ticket); err != nil || !ok {
		s.notify(msgUnableUpdateTicket)
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to process exiting vehicle")
		return &Result{Outcome: OutcomeUpdateFailed, Ticket: ticket, Recurring: recurring}, joinStoreError(ErrUpdateTicket, err)
	}

	ticket.ParkingSpot.Release()
	if ok, err := s.spots.UpdateParking(ctx, ticket.ParkingSpot); err != nil || !ok {
		s.notify(msgUnableUpdateParking)
		logging.Error(ctx).Err(err).Int("parking_number", ticket.ParkingSpot.ID).Msg("unable to release parking spot")
		return &Result{Outcome: OutcomeUpdateFailed, Ticket: ticket, Recurring: recurring}, joinStoreError(ErrUpdateParking, err)
	}

	s.notify(fmt.Sprintf("Please pay the parking fare:%.2f", ticket.Price))
	s.notify(fmt.Sprintf("Recorded out-time for vehicle number:%s is:%s", vehicleRegNumber, ticket.OutTime.Format(receiptTimeLayout)))

	if err := s.publisher.PublishCheckedOut(ctx, ticket); err != nil {
		logging.Warn(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to publish check-out event")
	}

	return &Result{Outcome: OutcomeCheckedOut, Ticket: ticket, Recurring: recurring}, nil
}

func (s *ParkingService) readVehicleType() (ParkingType, error) {
	s.notify(msgSelectVehicleType)
	s.notify("1 CAR")
	s.notify("2 BIKE")

	selection, err := s.input.ReadSelection()
	if err != nil {
		return "", fmt.Errorf("read vehicle type: %w", err)
	}

	parkingType, err := ParkingTypeFromSelection(selection)
	if err != nil {
		s.notify(msgIncorrectInput)
		return "", err
	}
	return parkingType, nil
}

func (s *ParkingService) readVehicleRegNumber() (string, error) {
	s.notify(msgTypeRegistration)

	vehicleRegNumber, err := s.input.ReadVehicleRegistrationNumber()
	if err != nil {
		return "", fmt.Errorf("read vehicle registration number: %w", err)
	}
	if vehicleRegNumber == "" {
		return "", ErrEmptyRegistration
	}
	return vehicleRegNumber, nil
}

func (s *ParkingService) isRecurringUser(ctx context.Context, vehicleRegNumber string) (bool, error) {
	count, err := s.tickets.GetNbTicket(ctx, vehicleRegNumber)
	if err != nil {
		logging.Error(ctx).Err(err).Str("vehicle_reg_number", vehicleRegNumber).Msg("unable to count previous tickets")
		return false, fmt.Errorf("count tickets: %w", err)
	}
	return count > 0, nil
}

func (s *ParkingService) notify(msg string) {
	fmt.Fprintln(s.out, msg)
}

// joinStoreError keeps the sentinel for a store that reported false and wraps
// the underlying cause when the store returned one.
func joinStoreError(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
