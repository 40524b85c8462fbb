// Package memstore keeps parking spots and tickets in process memory. Spots
// are numbered from 1 in the order they are laid out: cars first, then bikes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"parking-system/internal/parking"
)

type Store struct {
	mu      sync.RWMutex
	spots   []*parking.ParkingSpot
	tickets []*parking.Ticket
	nextID  int
}

func New(carSpots, bikeSpots int) *Store {
	spots := make([]*parking.ParkingSpot, 0, carSpots+bikeSpots)
	for i := 0; i < carSpots; i++ {
		spots = append(spots, parking.NewParkingSpot(len(spots)+1, parking.ParkingTypeCar, true))
	}
	for i := 0; i < bikeSpots; i++ {
		spots = append(spots, parking.NewParkingSpot(len(spots)+1, parking.ParkingTypeBike, true))
	}

	return &Store{
		spots:  spots,
		nextID: 1,
	}
}

func (s *Store) GetNextAvailableSlot(_ context.Context, parkingType parking.ParkingType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, spot := range s.spots {
		if spot.IsAvailable && spot.ParkingType == parkingType {
			return spot.ID, nil
		}
	}
	return 0, nil
}

// UpdateParking stores the spot's availability. Occupying a spot that is
// already taken reports false, so two check-ins cannot both claim it.
func (s *Store) UpdateParking(_ context.Context, spot *parking.ParkingSpot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spot.ID < 1 || spot.ID > len(s.spots) {
		return false, nil
	}
	stored := s.spots[spot.ID-1]
	if !spot.IsAvailable && !stored.IsAvailable {
		return false, nil
	}
	stored.IsAvailable = spot.IsAvailable
	return true, nil
}

// Spots returns a snapshot of every spot ordered by number.
func (s *Store) Spots() []parking.ParkingSpot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]parking.ParkingSpot, len(s.spots))
	for i, spot := range s.spots {
		out[i] = *spot
	}
	return out
}

func (s *Store) SaveTicket(_ context.Context, ticket *parking.Ticket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket.ParkingSpot == nil || ticket.ParkingSpot.ID < 1 || ticket.ParkingSpot.ID > len(s.spots) {
		return false, fmt.Errorf("ticket for %s has no valid parking spot", ticket.VehicleRegNumber)
	}

	stored := cloneTicket(ticket)
	stored.ID = s.nextID
	s.nextID++
	ticket.ID = stored.ID
	s.tickets = append(s.tickets, stored)
	return true, nil
}

func (s *Store) GetTicket(_ context.Context, vehicleRegNumber string) (*parking.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestTicket(vehicleRegNumber)
	if latest == nil {
		return nil, nil
	}

	ticket := cloneTicket(latest)
	ticket.ParkingSpot = parking.NewParkingSpot(latest.ParkingSpot.ID, latest.ParkingSpot.ParkingType, s.spots[latest.ParkingSpot.ID-1].IsAvailable)
	return ticket, nil
}

func (s *Store) UpdateTicket(_ context.Context, ticket *parking.Ticket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.tickets {
		if stored.ID == ticket.ID {
			stored.Price = ticket.Price
			stored.OutTime = copyOutTime(ticket)
			return true, nil
		}
	}
	return false, nil
}

// UpdateTicketInTime rewrites the in-time of a stored ticket.
func (s *Store) UpdateTicketInTime(_ context.Context, ticket *parking.Ticket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.tickets {
		if stored.ID == ticket.ID {
			stored.InTime = ticket.InTime
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) IsAlreadyInParking(_ context.Context, vehicleRegNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, stored := range s.tickets {
		if stored.VehicleRegNumber == vehicleRegNumber && stored.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetNbTicket(_ context.Context, vehicleRegNumber string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, stored := range s.tickets {
		if stored.VehicleRegNumber == vehicleRegNumber && !stored.IsOpen() {
			count++
		}
	}
	return count, nil
}

// OpenTickets returns the tickets of vehicles currently parked, ordered by spot.
func (s *Store) OpenTickets() []*parking.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var open []*parking.Ticket
	for _, stored := range s.tickets {
		if stored.IsOpen() {
			open = append(open, cloneTicket(stored))
		}
	}

	sort.Slice(open, func(i, j int) bool {
		return open[i].ParkingSpot.ID < open[j].ParkingSpot.ID
	})
	return open
}

// latestTicket must be called with s.mu held.
func (s *Store) latestTicket(vehicleRegNumber string) *parking.Ticket {
	var latest *parking.Ticket
	for _, stored := range s.tickets {
		if stored.VehicleRegNumber != vehicleRegNumber {
			continue
		}
		if latest == nil || !stored.InTime.Before(latest.InTime) {
			latest = stored
		}
	}
	return latest
}

func cloneTicket(t *parking.Ticket) *parking.Ticket {
	c := *t
	c.OutTime = copyOutTime(t)
	if t.ParkingSpot != nil {
		spot := *t.ParkingSpot
		c.ParkingSpot = &spot
	}
	return &c
}

func copyOutTime(t *parking.Ticket) *time.Time {
	if t.OutTime == nil {
		return nil
	}
	out := *t.OutTime
	return &out
}
