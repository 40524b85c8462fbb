package parking

import "time"

// Ticket is one parking session. OutTime stays nil while the vehicle is parked
// and Price stays 0 until the fare is calculated at check-out.
type Ticket struct {
	ID               int
	ParkingSpot      *ParkingSpot
	VehicleRegNumber string
	Price            float64
	InTime           time.Time
	OutTime          *time.Time
}

func NewTicket(spot *ParkingSpot, vehicleRegNumber string, inTime time.Time) *Ticket {
	return &Ticket{
		ParkingSpot:      spot,
		VehicleRegNumber: vehicleRegNumber,
		InTime:           inTime,
	}
}

func (t *Ticket) IsOpen() bool {
	return t.OutTime == nil
}
