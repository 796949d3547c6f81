package board

import (
	"fmt"

	"github.com/itohio/gomq/pkg/mq"
)

// Input exposes the board's ADC stream as an mq.AnalogInput.
type Input struct {
	Board Board
}

var _ mq.AnalogInput = Input{}

// ReadU16 returns the latest reading streamed by the board.
func (in Input) ReadU16() (uint16, error) {
	s, err := in.Board.Latest()
	if err != nil {
		return 0, fmt.Errorf("board input: %w", err)
	}
	return s.Reading, nil
}

// Heater exposes the board's heater as an mq.DigitalOutput with a low power
// level.
type Heater struct {
	Board Board
}

var (
	_ mq.DigitalOutput = Heater{}
	_ mq.LowPowerer    = Heater{}
)

// On switches the heater to full power.
func (h Heater) On() error { return h.Board.SetHeater(HeaterOn) }

// Off switches the heater off.
func (h Heater) Off() error { return h.Board.SetHeater(HeaterOff) }

// LowPower switches the heater to its low power level.
func (h Heater) LowPower() error { return h.Board.SetHeater(HeaterLow) }
