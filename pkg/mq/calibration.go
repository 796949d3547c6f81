package mq

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Calibrate measures R0 in clean air. It takes SampleCount+1 readings spaced
// SampleInterval apart, so it blocks for roughly SampleCount*SampleInterval.
// The stored R0 can be saved and passed to CalibrateWith on later runs.
func (s *Sensor) Calibrate() error {
	if s.profile == nil {
		return ErrNotCalibratable
	}
	ratio := s.profile.CleanAirRatio()
	if !(ratio > 0) || math.IsInf(ratio, 0) {
		return fmt.Errorf("clean air ratio %v: %w", ratio, ErrNotCalibratable)
	}

	s.log.Info("calibrating", zap.Int("steps", s.cfg.SampleCount+1))

	var sum float64
	for i := 0; i < s.cfg.SampleCount+1; i++ {
		if i > 0 {
			s.clock.Sleep(s.cfg.SampleInterval)
		}
		rs, err := s.readResistance()
		if err != nil {
			return fmt.Errorf("calibration step %d: %w", i, err)
		}
		s.log.Debug("calibration step", zap.Int("step", i), zap.Float64("rs", rs))
		sum += rs
	}

	ro := sum / (ratio * float64(s.cfg.SampleCount))
	if err := s.setBaseline(ro); err != nil {
		return err
	}
	s.log.Info("calibration completed", zap.Float64("ro", ro))

	return nil
}

// CalibrateWith sets R0 to a previously measured value without touching the
// hardware.
func (s *Sensor) CalibrateWith(ro float64) error {
	return s.setBaseline(ro)
}

func (s *Sensor) setBaseline(ro float64) error {
	if !(ro > 0) || math.IsInf(ro, 0) {
		return fmt.Errorf("%v: %w", ro, ErrInvalidBaseline)
	}
	s.ro = ro
	return nil
}

// Calibrated reports whether R0 is known.
func (s *Sensor) Calibrated() bool {
	return s.ro > 0
}

// Baseline returns R0 and whether the sensor has been calibrated.
func (s *Sensor) Baseline() (float64, bool) {
	return s.ro, s.ro > 0
}

// ReadRatio measures the resistance and returns Rs/R0. It blocks as long as
// MeasureResistance does.
func (s *Sensor) ReadRatio() (float64, error) {
	if !s.Calibrated() {
		return 0, ErrNotCalibrated
	}
	rs, err := s.MeasureResistance()
	if err != nil {
		return 0, err
	}
	return rs / s.ro, nil
}

// ReadScaled reads the ratio and maps it through the log-linear curve
// ln(ratio) = slope*ln(x) + intercept, returning x.
func (s *Sensor) ReadScaled(slope, intercept float64) (float64, error) {
	ratio, err := s.ReadRatio()
	if err != nil {
		return 0, err
	}
	return Scale(ratio, slope, intercept)
}

// Scale solves the log-linear gas curve for the concentration at ratio.
func Scale(ratio, slope, intercept float64) (float64, error) {
	if !(ratio > 0) {
		return 0, fmt.Errorf("ratio %v: %w", ratio, ErrDomain)
	}
	if slope == 0 || math.IsNaN(slope) || math.IsNaN(intercept) {
		return 0, fmt.Errorf("curve slope %v intercept %v: %w", slope, intercept, ErrDomain)
	}
	x := math.Exp((math.Log(ratio) - intercept) / slope)
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return 0, fmt.Errorf("ratio %v out of curve range: %w", ratio, ErrDomain)
	}
	return x, nil
}
