package mysqlstore

import (
	"time"

	"parking-system/internal/parking"
)

type parkingRow struct {
	Number    int    `gorm:"column:PARKING_NUMBER;primaryKey;autoIncrement:false"`
	Available bool   `gorm:"column:AVAILABLE;not null"`
	Type      string `gorm:"column:TYPE;size:10;not null"`
}

func (parkingRow) TableName() string { return "parking" }

type ticketRow struct {
	ID               int        `gorm:"column:ID;primaryKey;autoIncrement"`
	ParkingNumber    int        `gorm:"column:PARKING_NUMBER;not null"`
	Parking          parkingRow `gorm:"foreignKey:ParkingNumber;references:Number"`
	VehicleRegNumber string     `gorm:"column:VEHICLE_REG_NUMBER;size:10;not null;index"`
	Price            float64    `gorm:"column:PRICE"`
	InTime           time.Time  `gorm:"column:IN_TIME;not null"`
	OutTime          *time.Time `gorm:"column:OUT_TIME"`
}

func (ticketRow) TableName() string { return "ticket" }

func (r *ticketRow) toTicket() *parking.Ticket {
	return &parking.Ticket{
		ID:               r.ID,
		ParkingSpot:      parking.NewParkingSpot(r.Parking.Number, parking.ParkingType(r.Parking.Type), r.Parking.Available),
		VehicleRegNumber: r.VehicleRegNumber,
		Price:            r.Price,
		InTime:           r.InTime,
		OutTime:          r.OutTime,
	}
}
