// Package events publishes ticket lifecycle events to RabbitMQ.
package events

import (
	"time"

	"github.com/google/uuid"

	"parking-system/internal/parking"
)

const (
	QueueCheckedIn  = "parking.ticket.checked_in"
	QueueCheckedOut = "parking.ticket.checked_out"
)

type TicketEvent struct {
	EventID          string     `json:"event_id"`
	Type             string     `json:"type"`
	TicketID         int        `json:"ticket_id"`
	VehicleRegNumber string     `json:"vehicle_reg_number"`
	ParkingNumber    int        `json:"parking_number"`
	ParkingType      string     `json:"parking_type"`
	InTime           time.Time  `json:"in_time"`
	OutTime          *time.Time `json:"out_time,omitempty"`
	Price            float64    `json:"price"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// NewTicketEvent snapshots the ticket so later changes to it do not leak into
// the published message.
func NewTicketEvent(eventType string, ticket *parking.Ticket, occurredAt time.Time) TicketEvent {
	event := TicketEvent{
		EventID:          uuid.NewString(),
		Type:             eventType,
		TicketID:         ticket.ID,
		VehicleRegNumber: ticket.VehicleRegNumber,
		Price:            ticket.Price,
		InTime:           ticket.InTime.UTC(),
		OccurredAt:       occurredAt.UTC(),
	}
	if ticket.ParkingSpot != nil {
		event.ParkingNumber = ticket.ParkingSpot.ID
		event.ParkingType = string(ticket.ParkingSpot.ParkingType)
	}
	if ticket.OutTime != nil {
		out := ticket.OutTime.UTC()
		event.OutTime = &out
	}
	return event
}
