package parking

import "errors"

var (
	ErrInvalidVehicleType = errors.New("entered input is invalid")
	ErrInvalidOutTime     = errors.New("out time provided is incorrect")
	ErrUnknownParkingType = errors.New("unknown parking type")
	ErrEmptyRegistration  = errors.New("vehicle registration number is empty")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrUpdateParking      = errors.New("unable to update parking spot")
	ErrSaveTicket         = errors.New("unable to save ticket")
	ErrUpdateTicket       = errors.New("unable to update ticket")
)
