package parking

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// ConsoleInputReader reads one answer per line. The shell and the parking
// service share it so menu choices and vehicle details come from one stream.
type ConsoleInputReader struct {
	scanner *bufio.Scanner
}

func NewConsoleInputReader(r io.Reader) *ConsoleInputReader {
	return &ConsoleInputReader{
		scanner: bufio.NewScanner(r),
	}
}

// ReadSelection returns -1 when the line is not a number.
func (c *ConsoleInputReader) ReadSelection() (int, error) {
	line, err := c.readLine()
	if err != nil {
		return -1, err
	}

	selection, err := strconv.Atoi(line)
	if err != nil {
		return -1, nil
	}
	return selection, nil
}

func (c *ConsoleInputReader) ReadVehicleRegistrationNumber() (string, error) {
	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", ErrEmptyRegistration
	}
	return line, nil
}

func (c *ConsoleInputReader) readLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

// StaticInputReader answers with fixed values. The HTTP API uses it to feed
// request fields into a single transaction.
type StaticInputReader struct {
	Selection        int
	VehicleRegNumber string
}

func (s StaticInputReader) ReadSelection() (int, error) {
	return s.Selection, nil
}

func (s StaticInputReader) ReadVehicleRegistrationNumber() (string, error) {
	if s.VehicleRegNumber == "" {
		return "", ErrEmptyRegistration
	}
	return s.VehicleRegNumber, nil
}

// SelectionFor is the inverse of ParkingTypeFromSelection. Unknown types map to 0.
func SelectionFor(parkingType ParkingType) int {
	switch parkingType {
	case ParkingTypeCar:
		return 1
	case ParkingTypeBike:
		return 2
	default:
		return 0
	}
}
