package mq

import "errors"

var (
	// ErrNotCalibrated is returned by ratio and scaled reads before R0 is known.
	ErrNotCalibrated = errors.New("sensor is not calibrated")
	// ErrNotCalibratable is returned when no usable clean air ratio is available.
	ErrNotCalibratable = errors.New("sensor profile does not provide a clean air ratio")
	// ErrDomain is returned when a ratio cannot be mapped through the gas curve.
	ErrDomain = errors.New("value outside curve domain")
	// ErrSensorFault is returned for ADC codes that make the divider formula degenerate.
	ErrSensorFault = errors.New("sensor fault")
	// ErrHardwareUnavailable is returned when a required capability is missing.
	ErrHardwareUnavailable = errors.New("hardware unavailable")
	// ErrInvalidBaseline is returned for a non-positive or non-finite R0.
	ErrInvalidBaseline = errors.New("invalid baseline resistance")
)
