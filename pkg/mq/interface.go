package mq

import "time"

// AnalogInput is a single ADC channel. Codes are scaled to the sensor's
// configured full scale (16-bit by default, 0-65535).
type AnalogInput interface {
	ReadU16() (uint16, error)
}

// DigitalOutput switches the sensor heater.
type DigitalOutput interface {
	On() error
	Off() error
}

// LowPowerer is implemented by heater outputs that support an energy saving
// level between on and off (PWM or a reduced supply, as on the MQ-7).
type LowPowerer interface {
	LowPower() error
}

// Profile supplies the sensor family data needed for calibration.
type Profile interface {
	// CleanAirRatio returns Rs/R0 of the sensor family in clean air.
	CleanAirRatio() float64
}

// Clock is a wrapping millisecond tick counter with a blocking sleep.
type Clock interface {
	Ticks() uint32
	Sleep(d time.Duration)
}

// TicksDiff returns the number of ticks elapsed from then to now. Unsigned
// subtraction keeps the result correct across counter wraparound.
func TicksDiff(now, then uint32) uint32 {
	return now - then
}

// SystemClock is a Clock backed by the monotonic runtime clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock whose tick counter starts at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Ticks returns milliseconds since the clock was created, truncated to 32 bits.
func (c *SystemClock) Ticks() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Sleep blocks the calling goroutine for d.
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

var _ Clock = (*SystemClock)(nil)
