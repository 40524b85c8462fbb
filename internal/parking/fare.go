package parking

import (
	"fmt"
	"time"
)

const (
	CarRatePerHour     = 1.5
	BikeRatePerHour    = 1.0
	FreeParkingMinutes = 30
	RecurringDiscount  = 0.95

	millisecondsPerHour = 60 * 60 * 1000
)

type FareCalculator struct {
	rates        map[ParkingType]float64
	freeDuration time.Duration
	discount     float64
}

// NewFareCalculator returns a calculator using the reference tariff.
func NewFareCalculator() *FareCalculator {
	return NewFareCalculatorWithRates(map[ParkingType]float64{
		ParkingTypeCar:  CarRatePerHour,
		ParkingTypeBike: BikeRatePerHour,
	}, FreeParkingMinutes*time.Minute, RecurringDiscount)
}

func NewFareCalculatorWithRates(rates map[ParkingType]float64, freeDuration time.Duration, discount float64) *FareCalculator {
	copied := make(map[ParkingType]float64, len(rates))
	for parkingType, rate := range rates {
		copied[parkingType] = rate
	}

	return &FareCalculator{
		rates:        copied,
		freeDuration: freeDuration,
		discount:     discount,
	}
}

func (fc *FareCalculator) Rate(parkingType ParkingType) (float64, bool) {
	rate, ok := fc.rates[parkingType]
	return rate, ok
}

// CalculateFare sets ticket.Price from the elapsed time between InTime and
// OutTime. The discount factor is applied when discount is true.
func (fc *FareCalculator) CalculateFare(ticket *Ticket, discount bool) error {
	if ticket.OutTime == nil || !ticket.OutTime.After(ticket.InTime) {
		return fmt.Errorf("%w: %v", ErrInvalidOutTime, ticket.OutTime)
	}

	if ticket.ParkingSpot == nil {
		return fmt.Errorf("%w: ticket has no parking spot", ErrUnknownParkingType)
	}

	rate, ok := fc.rates[ticket.ParkingSpot.ParkingType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParkingType, ticket.ParkingSpot.ParkingType)
	}

	elapsed := ticket.OutTime.Sub(ticket.InTime)
	if elapsed < fc.freeDuration {
		ticket.Price = 0
		return nil
	}

	hours := float64(elapsed.Milliseconds()) / millisecondsPerHour
	price := hours * rate
	if discount {
		price *= fc.discount
	}

	ticket.Price = price
	return nil
}
