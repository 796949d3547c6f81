package mq

import (
	"fmt"

	"go.uber.org/zap"
)

// HeaterStatus is reported by Advance.
type HeaterStatus int

const (
	// StatusIdle means no cycle is running.
	StatusIdle HeaterStatus = iota
	// StatusHeating means the heating phase has not finished yet.
	StatusHeating
	// StatusCooling means the sensor is in its low power phase.
	StatusCooling
	// StatusReady is returned once, on the call that completes a full cycle.
	StatusReady
)

func (h HeaterStatus) String() string {
	switch h {
	case StatusIdle:
		return "idle"
	case StatusHeating:
		return "heating"
	case StatusCooling:
		return "cooling"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("HeaterStatus(%d)", int(h))
	}
}

// Phase returns the current heater phase as StatusIdle, StatusHeating or
// StatusCooling.
func (s *Sensor) Phase() HeaterStatus {
	switch {
	case s.heaterOn && s.cooling:
		return StatusCooling
	case s.heaterOn:
		return StatusHeating
	default:
		return StatusIdle
	}
}

// StartCycle enters the heating phase from any phase. On a heater error the
// phase is left unchanged.
func (s *Sensor) StartCycle() error {
	if err := s.heaterHigh(); err != nil {
		return err
	}
	s.cooling = false
	s.log.Debug("heating sensor")
	return nil
}

// HeatingComplete reports whether the heating phase has lasted longer than
// HeatingPeriod.
func (s *Sensor) HeatingComplete() bool {
	return s.heaterOn && !s.cooling && s.elapsed() > s.cfg.HeatingPeriod.Milliseconds()
}

// CoolingComplete reports whether the cooling phase has lasted longer than
// CoolingPeriod.
func (s *Sensor) CoolingComplete() bool {
	return s.heaterOn && s.cooling && s.elapsed() > s.cfg.CoolingPeriod.Milliseconds()
}

// Advance moves the duty cycle forward and never blocks. It should be called
// on every control tick. On a heater error the phase is left unchanged.
func (s *Sensor) Advance() (HeaterStatus, error) {
	switch {
	case s.HeatingComplete():
		if err := s.heaterLow(); err != nil {
			return s.Phase(), err
		}
		s.log.Debug("cooling sensor")
		return StatusCooling, nil
	case s.CoolingComplete():
		if err := s.heaterOff(); err != nil {
			return s.Phase(), err
		}
		s.log.Debug("heat cycle complete")
		return StatusReady, nil
	default:
		return s.Phase(), nil
	}
}

func (s *Sensor) elapsed() int64 {
	return int64(TicksDiff(s.clock.Ticks(), s.phaseStart))
}

func (s *Sensor) heaterHigh() error {
	if s.heater != nil {
		if err := s.heater.On(); err != nil {
			return fmt.Errorf("failed to switch heater on: %w", err)
		}
	}
	s.heaterOn = true
	s.phaseStart = s.clock.Ticks()
	return nil
}

func (s *Sensor) heaterLow() error {
	if s.heater != nil {
		var err error
		if lp, ok := s.heater.(LowPowerer); ok {
			err = lp.LowPower()
		} else {
			err = s.heater.Off()
		}
		if err != nil {
			return fmt.Errorf("failed to switch heater to low power: %w", err)
		}
	}
	s.heaterOn = true
	s.cooling = true
	s.phaseStart = s.clock.Ticks()
	return nil
}

func (s *Sensor) heaterOff() error {
	if s.heater != nil {
		if err := s.heater.Off(); err != nil {
			return fmt.Errorf("failed to switch heater off: %w", err)
		}
	}
	s.heaterOn = false
	s.cooling = false
	s.log.Debug("heater off", zap.Bool("managed", s.heater != nil))
	return nil
}
