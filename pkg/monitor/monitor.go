// Package monitor drives a gas sensor: it runs the heater duty cycle,
// calibrates once the sensor is warm and streams gas readings.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itohio/gomq/pkg/mq"
	"github.com/itohio/gomq/pkg/sample"
	"github.com/itohio/gomq/pkg/species"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Mode selects when readings are taken.
type Mode string

const (
	// ModeContinuous warms the sensor up once, calibrates and then reads every
	// ReadInterval with the heater left on.
	ModeContinuous Mode = "continuous"
	// ModeCycle reads once at the end of every heat/cool cycle.
	ModeCycle Mode = "cycle"
)

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeContinuous, ModeCycle:
		return m, nil
	case "":
		return ModeContinuous, nil
	default:
		return "", fmt.Errorf("unknown monitor mode %q", s)
	}
}

// Config contains the control loop parameters.
type Config struct {
	Mode         Mode
	Tick         time.Duration // Heater state machine polling interval
	ReadInterval time.Duration // Minimum delay between continuous reads
	Baseline     float64       // Known R0; 0 calibrates in clean air
}

// Monitor owns a sensor driver and runs its control loop.
type Monitor struct {
	cfg     Config
	driver  *species.Driver
	log     *zap.Logger
	metrics *Metrics
	limit   *rate.Limiter
	now     func() time.Time
}

// Option configures a Monitor.
type Option func(m *Monitor) error

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) error {
		if l != nil {
			m.log = l
		}
		return nil
	}
}

// WithMetrics records readings into metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) error {
		m.metrics = metrics
		return nil
	}
}

// New creates a monitor for driver.
func New(driver *species.Driver, cfg Config, opts ...Option) (*Monitor, error) {
	if driver == nil {
		return nil, errors.New("nil driver")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeContinuous
	}
	if cfg.Mode != ModeContinuous && cfg.Mode != ModeCycle {
		return nil, fmt.Errorf("unknown monitor mode %q", cfg.Mode)
	}
	if cfg.Tick <= 0 {
		return nil, fmt.Errorf("tick must be positive, got %v", cfg.Tick)
	}

	m := &Monitor{
		cfg:    cfg,
		driver: driver,
		log:    zap.L(),
		limit:  rate.NewLimiter(rate.Every(cfg.ReadInterval), 1),
		now:    time.Now,
	}
	if cfg.ReadInterval <= 0 {
		m.limit = rate.NewLimiter(rate.Inf, 1)
	}

	for _, o := range opts {
		if err := o(m); err != nil {
			return nil, err
		}
	}
	m.log = m.log.With(zap.String("model", driver.Model.Name))

	return m, nil
}

// Run drives the sensor until ctx is done and sends every reading to out.
// out is closed when Run returns. Run returns nil when ctx is cancelled, and
// an error when the heater or calibration fails.
//
// Accurate reads and calibration block inside Run, so cancellation is noticed
// between operations.
func (m *Monitor) Run(ctx context.Context, out chan<- sample.Sample) error {
	defer close(out)

	if err := m.driver.StartCycle(); err != nil {
		return err
	}
	m.metrics.SetHeater(m.driver.Phase())

	switch m.cfg.Mode {
	case ModeCycle:
		return m.runCycle(ctx, out)
	default:
		return m.runContinuous(ctx, out)
	}
}

func (m *Monitor) runContinuous(ctx context.Context, out chan<- sample.Sample) error {
	m.log.Info("warming up sensor", zap.Duration("period", m.driver.Config().HeatingPeriod))
	if !m.waitTicks(ctx, m.driver.HeatingComplete) {
		return nil
	}

	if err := m.ensureCalibrated(); err != nil {
		return err
	}

	for {
		if err := m.limit.Wait(ctx); err != nil {
			return nil
		}
		if !m.read(ctx, out) {
			return nil
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context, out chan<- sample.Sample) error {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		status, err := m.driver.Advance()
		if err != nil {
			return err
		}
		m.metrics.SetHeater(status)
		if status != mq.StatusReady {
			continue
		}

		if err := m.ensureCalibrated(); err != nil {
			return err
		}
		if !m.read(ctx, out) {
			return nil
		}
		if err := m.driver.StartCycle(); err != nil {
			return err
		}
		m.metrics.SetHeater(m.driver.Phase())
	}
}

// waitTicks polls done every tick. It returns false if ctx ends first.
func (m *Monitor) waitTicks(ctx context.Context, done func() bool) bool {
	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	for !done() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (m *Monitor) ensureCalibrated() error {
	if m.driver.Calibrated() {
		return nil
	}

	var err error
	if m.cfg.Baseline > 0 {
		err = m.driver.CalibrateWith(m.cfg.Baseline)
	} else {
		err = m.driver.Calibrate()
	}
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}

	ro, _ := m.driver.Baseline()
	m.metrics.SetBaseline(ro)
	m.log.Info("sensor calibrated", zap.Float64("ro", ro))

	return nil
}

// read takes one reading and sends it to out. Read errors are logged and
// skipped. It returns false if ctx ends while sending.
func (m *Monitor) read(ctx context.Context, out chan<- sample.Sample) bool {
	ratio, values, err := m.driver.ReadAll()
	if err != nil {
		m.metrics.ReadError()
		m.log.Warn("sensor read failed", zap.Error(err))
		if len(values) == 0 {
			return ctx.Err() == nil
		}
	}

	s := sample.Sample{
		Timestamp:      m.now(),
		Resistance:     m.driver.LastResistance(),
		Ratio:          ratio,
		Reliable:       m.driver.Reliable(),
		Heater:         m.driver.Phase(),
		Concentrations: values,
	}
	m.metrics.Observe(s)

	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

// Baseline returns the sensor R0 and whether it is known.
func (m *Monitor) Baseline() (float64, bool) {
	return m.driver.Baseline()
}
