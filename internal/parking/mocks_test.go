package parking

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockInputReader struct {
	mock.Mock
}

func (m *mockInputReader) ReadSelection() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *mockInputReader) ReadVehicleRegistrationNumber() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type mockSpotStore struct {
	mock.Mock
}

func (m *mockSpotStore) GetNextAvailableSlot(ctx context.Context, parkingType ParkingType) (int, error) {
	args := m.Called(ctx, parkingType)
	return args.Int(0), args.Error(1)
}

func (m *mockSpotStore) UpdateParking(ctx context.Context, spot *ParkingSpot) (bool, error) {
	args := m.Called(ctx, spot)
	return args.Bool(0), args.Error(1)
}

type mockTicketStore struct {
	mock.Mock
}

func (m *mockTicketStore) SaveTicket(ctx context.Context, ticket *Ticket) (bool, error) {
	args := m.Called(ctx, ticket)
	return args.Bool(0), args.Error(1)
}

func (m *mockTicketStore) GetTicket(ctx context.Context, vehicleRegNumber string) (*Ticket, error) {
	args := m.Called(ctx, vehicleRegNumber)
	ticket, _ := args.Get(0).(*Ticket)
	return ticket, args.Error(1)
}

func (m *mockTicketStore) UpdateTicket(ctx context.Context, ticket *Ticket) (bool, error) {
	args := m.Called(ctx, ticket)
	return args.Bool(0), args.Error(1)
}

func (m *mockTicketStore) IsAlreadyInParking(ctx context.Context, vehicleRegNumber string) (bool, error) {
	args := m.Called(ctx, vehicleRegNumber)
	return args.Bool(0), args.Error(1)
}

func (m *mockTicketStore) GetNbTicket(ctx context.Context, vehicleRegNumber string) (int, error) {
	args := m.Called(ctx, vehicleRegNumber)
	return args.Int(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCheckedIn(ctx context.Context, ticket *Ticket) error {
	return m.Called(ctx, ticket).Error(0)
}

func (m *mockPublisher) PublishCheckedOut(ctx context.Context, ticket *Ticket) error {
	return m.Called(ctx, ticket).Error(0)
}
