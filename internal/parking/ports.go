package parking

import "context"

type InputReader interface {
	// ReadSelection returns the vehicle type menu choice: 1 for CAR, 2 for BIKE.
	ReadSelection() (int, error)
	ReadVehicleRegistrationNumber() (string, error)
}

type ParkingSpotStore interface {
	// GetNextAvailableSlot returns the lowest free spot number for the type,
	// or 0 when every spot of that type is taken.
	GetNextAvailableSlot(ctx context.Context, parkingType ParkingType) (int, error)
	UpdateParking(ctx context.Context, spot *ParkingSpot) (bool, error)
}

type TicketStore interface {
	SaveTicket(ctx context.Context, ticket *Ticket) (bool, error)
	// GetTicket returns the most recent ticket for the registration number.
	GetTicket(ctx context.Context, vehicleRegNumber string) (*Ticket, error)
	UpdateTicket(ctx context.Context, ticket *Ticket) (bool, error)
	IsAlreadyInParking(ctx context.Context, vehicleRegNumber string) (bool, error)
	// GetNbTicket counts completed tickets, so an open ticket is never included.
	GetNbTicket(ctx context.Context, vehicleRegNumber string) (int, error)
}

// TicketEventPublisher is notified after a check-in or check-out is persisted.
type TicketEventPublisher interface {
	PublishCheckedIn(ctx context.Context, ticket *Ticket) error
	PublishCheckedOut(ctx context.Context, ticket *Ticket) error
}

type noopPublisher struct{}

func (noopPublisher) PublishCheckedIn(context.Context, *Ticket) error  { return nil }
func (noopPublisher) PublishCheckedOut(context.Context, *Ticket) error { return nil }
