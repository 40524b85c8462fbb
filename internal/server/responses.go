package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"parking-system/internal/parking"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Notices []string `json:"notices,omitempty"`
	Error   string   `json:"error,omitempty"`
	Meta    *Meta    `json:"meta,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type IncomingVehicleRequest struct {
	VehicleType  string `json:"vehicle_type"`
	Registration string `json:"registration"`
}

type ExitingVehicleRequest struct {
	Registration string `json:"registration"`
}

type TicketResponse struct {
	TicketID      int        `json:"ticket_id"`
	Registration  string     `json:"registration"`
	ParkingNumber int        `json:"parking_number"`
	ParkingType   string     `json:"parking_type"`
	InTime        time.Time  `json:"in_time"`
	OutTime       *time.Time `json:"out_time,omitempty"`
	Price         float64    `json:"price"`
	RecurringUser bool       `json:"recurring_user"`
}

func newTicketResponse(ticket *parking.Ticket, recurring bool) *TicketResponse {
	resp := &TicketResponse{
		TicketID:      ticket.ID,
		Registration:  ticket.VehicleRegNumber,
		InTime:        ticket.InTime,
		OutTime:       ticket.OutTime,
		Price:         ticket.Price,
		RecurringUser: recurring,
	}
	if ticket.ParkingSpot != nil {
		resp.ParkingNumber = ticket.ParkingSpot.ID
		resp.ParkingType = string(ticket.ParkingSpot.ParkingType)
	}
	return resp
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, status int, message string, data any, notices []string) {
	WriteJSON(w, status, Response{
		Success: true,
		Message: message,
		Data:    data,
		Notices: notices,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, message string, notices ...string) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
		Notices: notices,
		Meta:    extractMeta(ctx),
	})
}
