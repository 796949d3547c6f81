package mq

import (
	"fmt"

	"go.uber.org/zap"
)

// resistance converts a raw ADC code into the sensor resistance using the load
// resistor divider. Codes of 0 (no voltage across the load resistor) and codes
// at or above full scale (clipped input) have no meaningful resistance and are
// rejected.
func (s *Sensor) resistance(raw uint16) (float64, error) {
	if raw == 0 {
		return 0, fmt.Errorf("zero ADC reading: %w", ErrSensorFault)
	}
	if raw >= s.cfg.FullScale {
		return 0, fmt.Errorf("ADC reading %d clipped at full scale %d: %w", raw, s.cfg.FullScale, ErrSensorFault)
	}

	vrl := float64(raw) * (s.cfg.BaseVoltage / float64(s.cfg.FullScale))
	return (s.cfg.BaseVoltage - vrl) / vrl * s.cfg.BoardResistance, nil
}

func (s *Sensor) readResistance() (float64, error) {
	raw, err := s.data.ReadU16()
	if err != nil {
		return 0, fmt.Errorf("failed to read ADC: %w", err)
	}
	return s.resistance(raw)
}

// MeasureResistance measures the current sensor resistance in ohms.
//
// With the accurate strategy this blocks for about SampleCount*SampleInterval
// and marks the result reliable. The fast strategy returns immediately and
// marks the result unreliable.
func (s *Sensor) MeasureResistance() (float64, error) {
	if s.cfg.Strategy != StrategyAccurate {
		rs, err := s.readResistance()
		if err != nil {
			return 0, err
		}
		s.lastResistance = rs
		s.reliable = false
		return rs, nil
	}

	var sum float64
	for i := 0; i < s.cfg.SampleCount; i++ {
		if i > 0 {
			s.clock.Sleep(s.cfg.SampleInterval)
		}
		rs, err := s.readResistance()
		if err != nil {
			return 0, err
		}
		sum += rs
	}

	rs := sum / float64(s.cfg.SampleCount)
	s.lastResistance = rs
	s.reliable = true
	s.lastSampleTicks = s.clock.Ticks()
	s.log.Debug("measured resistance", zap.Float64("rs", rs), zap.Int("samples", s.cfg.SampleCount))

	return rs, nil
}
