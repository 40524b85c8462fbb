package parking

import "fmt"

type ParkingType string

const (
	ParkingTypeCar  ParkingType = "CAR"
	ParkingTypeBike ParkingType = "BIKE"
)

// ParkingTypeFromSelection maps the menu selection to a parking type.
func ParkingTypeFromSelection(selection int) (ParkingType, error) {
	switch selection {
	case 1:
		return ParkingTypeCar, nil
	case 2:
		return ParkingTypeBike, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidVehicleType, selection)
	}
}

func (t ParkingType) Valid() bool {
	return t == ParkingTypeCar || t == ParkingTypeBike
}

type ParkingSpot struct {
	ID          int
	ParkingType ParkingType
	IsAvailable bool
}

func NewParkingSpot(id int, parkingType ParkingType, available bool) *ParkingSpot {
	return &ParkingSpot{
		ID:          id,
		ParkingType: parkingType,
		IsAvailable: available,
	}
}

func (s *ParkingSpot) Occupy() {
	s.IsAvailable = false
}

func (s *ParkingSpot) Release() {
	s.IsAvailable = true
}
