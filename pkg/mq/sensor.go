package mq

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Strategy selects how resistance is measured.
type Strategy int

const (
	// StrategyFast takes a single reading immediately. Suitable for tracking
	// dynamics rather than actual values.
	StrategyFast Strategy = iota + 1
	// StrategyAccurate averages SampleCount readings taken SampleInterval apart.
	StrategyAccurate
)

func (s Strategy) String() string {
	switch s {
	case StrategyFast:
		return "fast"
	case StrategyAccurate:
		return "accurate"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy converts "fast" or "accurate" into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return StrategyFast, nil
	case "accurate", "":
		return StrategyAccurate, nil
	default:
		return 0, fmt.Errorf("unknown measuring strategy %q", s)
	}
}

// Config holds the electrical and timing parameters of a sensor.
type Config struct {
	BoardResistance float64 // Load resistor (ohms). Troyka modules use 10K.
	BaseVoltage     float64 // Supply voltage (V)
	FullScale       uint16  // ADC code at BaseVoltage
	Strategy        Strategy

	SampleCount    int           // Readings averaged by the accurate strategy
	SampleInterval time.Duration // Delay between readings
	HeatingPeriod  time.Duration
	CoolingPeriod  time.Duration
}

// DefaultConfig returns the parameters of a Troyka-style module on a 3.3V board.
func DefaultConfig() Config {
	return Config{
		BoardResistance: 10,
		BaseVoltage:     3.3,
		FullScale:       65535,
		Strategy:        StrategyAccurate,
		SampleCount:     5,
		SampleInterval:  500 * time.Millisecond,
		HeatingPeriod:   60 * time.Second,
		CoolingPeriod:   90 * time.Second,
	}
}

func (c Config) validate() error {
	if !(c.BoardResistance > 0) {
		return fmt.Errorf("board resistance must be positive, got %v", c.BoardResistance)
	}
	if !(c.BaseVoltage > 0) {
		return fmt.Errorf("base voltage must be positive, got %v", c.BaseVoltage)
	}
	if c.FullScale == 0 {
		return fmt.Errorf("full scale must be positive")
	}
	if c.Strategy != StrategyFast && c.Strategy != StrategyAccurate {
		return fmt.Errorf("invalid strategy %v", c.Strategy)
	}
	if c.SampleCount <= 0 {
		return fmt.Errorf("sample count must be positive, got %d", c.SampleCount)
	}
	if c.SampleInterval < 0 || c.HeatingPeriod < 0 || c.CoolingPeriod < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// Sensor is an MQ-series gas sensor attached to an ADC channel through a load
// resistor, with an optional software-controlled heater.
//
// A Sensor has a single owner and is not safe for concurrent use.
type Sensor struct {
	cfg     Config
	data    AnalogInput
	heater  DigitalOutput
	profile Profile
	clock   Clock
	log     *zap.Logger

	ro float64 // R0, zero until calibrated

	lastResistance  float64
	reliable        bool
	lastSampleTicks uint32

	heaterOn   bool
	cooling    bool
	phaseStart uint32
}

// Option configures a Sensor.
type Option func(s *Sensor) error

// WithHeater attaches a software-controlled heater output.
func WithHeater(h DigitalOutput) Option {
	return func(s *Sensor) error {
		s.heater = h
		return nil
	}
}

// WithProfile sets the sensor family profile used by Calibrate.
func WithProfile(p Profile) Option {
	return func(s *Sensor) error {
		s.profile = p
		return nil
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Sensor) error {
		if c == nil {
			return errors.New("nil clock")
		}
		s.clock = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sensor) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// New creates a sensor reading from data. The heater is assumed to be powered
// externally unless WithHeater is given.
func New(data AnalogInput, cfg Config, opts ...Option) (*Sensor, error) {
	if data == nil {
		return nil, fmt.Errorf("analog input: %w", ErrHardwareUnavailable)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor config: %w", err)
	}

	s := &Sensor{
		cfg:   cfg,
		data:  data,
		clock: NewSystemClock(),
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.lastSampleTicks = s.clock.Ticks()

	return s, nil
}

// Close releases the analog input and heater if they implement io.Closer.
// The heater is switched off first.
func (s *Sensor) Close() error {
	var errs []error
	if s.heater != nil {
		if err := s.heater.Off(); err != nil {
			errs = append(errs, fmt.Errorf("heater off: %w", err))
		}
		if c, ok := s.heater.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	if c, ok := s.data.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	s.heaterOn = false
	s.cooling = false
	return errors.Join(errs...)
}

// Config returns the sensor configuration.
func (s *Sensor) Config() Config {
	return s.cfg
}

// Profile returns the sensor family profile, or nil.
func (s *Sensor) Profile() Profile {
	return s.profile
}

// Reliable reports whether the last sample was taken with the accurate strategy.
func (s *Sensor) Reliable() bool {
	return s.reliable
}

// LastResistance returns the most recently measured resistance (0 if none).
func (s *Sensor) LastResistance() float64 {
	return s.lastResistance
}

// LastSampleTicks returns the tick count of the last accurate measurement.
func (s *Sensor) LastSampleTicks() uint32 {
	return s.lastSampleTicks
}

// HasHeater reports whether the heater is software controlled.
func (s *Sensor) HasHeater() bool {
	return s.heater != nil
}
