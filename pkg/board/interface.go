package board

import "fmt"

// HeaterLevel is the heater drive level commanded on the board.
type HeaterLevel byte

const (
	HeaterOff HeaterLevel = '0'
	HeaterOn  HeaterLevel = '1'
	HeaterLow HeaterLevel = 'L'
)

func (h HeaterLevel) String() string {
	switch h {
	case HeaterOff:
		return "off"
	case HeaterOn:
		return "on"
	case HeaterLow:
		return "low"
	default:
		return fmt.Sprintf("HeaterLevel(%q)", byte(h))
	}
}

// Board is an MCU that streams ADC readings of the sensor's load resistor and
// drives the sensor heater.
type Board interface {
	Connect() error
	Close() error
	Latest() (RawSample, error)
	SetHeater(level HeaterLevel) error
	IsConnected() bool
}

// Ensure Serial implements Board.
var _ Board = (*Serial)(nil)

// Ensure Mock implements Board.
var _ Board = (*Mock)(nil)
