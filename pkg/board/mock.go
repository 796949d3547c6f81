package board

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gomq/pkg/config"
	"github.com/itohio/gomq/pkg/species"
)

// Mock simulates a board with an MQ sensor for testing and development.
type Mock struct {
	cfg   *config.MockConfig
	model species.Model
	load  float64 // Load resistor (ohms)
	scale uint16  // ADC full scale

	latest    RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	heater HeaterLevel

	// Simulation state
	startTime time.Time
	lastTime  time.Time
	warmth    float64 // 0 = cold, 1 = fully heated
}

// NewMock creates a simulated board carrying a sensor of the given model
// behind a load resistor of load ohms.
func NewMock(cfg *config.MockConfig, model species.Model, load float64, fullScale uint16) *Mock {
	def := config.Default().Mock
	if cfg == nil {
		cfg = &def
	}
	if cfg.SampleRate <= 0 {
		c := *cfg
		c.SampleRate = def.SampleRate
		cfg = &c
	}
	if load <= 0 {
		load = 10
	}
	if fullScale == 0 {
		fullScale = 65535
	}

	return &Mock{
		cfg:    cfg,
		model:  model,
		load:   load,
		scale:  fullScale,
		heater: HeaterOff,
	}
}

// Connect starts generating samples.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()
	m.lastTime = m.startTime
	m.warmth = 0
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.latest = m.generateSampleLocked(m.startTime)

	go m.generateSamples(m.ctx)

	return nil
}

// Close stops the simulated board.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false

	return nil
}

// Latest returns the most recent simulated sample.
func (m *Mock) Latest() (RawSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return RawSample{}, ErrNotConnected
	}
	return m.latest, nil
}

// SetHeater sets the simulated heater level.
func (m *Mock) SetHeater(level HeaterLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	m.heater = level

	return nil
}

// IsConnected returns whether the simulated board is connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *Mock) generateSamples(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.Lock()
			m.latest = m.generateSampleLocked(now)
			m.mu.Unlock()
		}
	}
}

// generateSampleLocked advances the simulation to now. Callers hold mu.
func (m *Mock) generateSampleLocked(now time.Time) RawSample {
	dt := now.Sub(m.lastTime).Seconds()
	m.lastTime = now

	// First order thermal response towards the heater target.
	target := heaterWarmth(m.heater)
	if tau := m.cfg.WarmupTime.Seconds(); tau > 0 {
		alpha := 1 - math.Exp(-dt/tau)
		m.warmth += alpha * (target - m.warmth)
	} else {
		m.warmth = target
	}

	rs := m.resistance()

	// Deterministic noise
	elapsed := float64(now.Sub(m.startTime).Nanoseconds())
	noise := (math.Sin(elapsed*0.001) + math.Cos(elapsed*0.0013)) * m.cfg.NoiseLevel * 0.5
	rs *= 1 + noise

	return RawSample{
		Timestamp: now,
		Reading:   m.code(rs),
		Heater:    m.heater,
	}
}

// resistance returns the noiseless sensor resistance for the current state.
// A cold sensor reads up to three times its heated resistance.
func (m *Mock) resistance() float64 {
	ratio := m.model.CleanAir
	if m.cfg.Concentration > 0 {
		if c, ok := m.model.Curve(species.Gas(m.cfg.Gas)); ok {
			ratio = math.Exp(c.Slope*math.Log(m.cfg.Concentration) + c.Intercept)
		}
	}
	rs := m.cfg.BaselineResistance * ratio
	return rs * (1 + 2*(1-m.warmth))
}

// code converts a resistance into the ADC code across the load resistor.
func (m *Mock) code(rs float64) uint16 {
	v := m.load / (rs + m.load) * float64(m.scale)
	if v < 1 {
		v = 1
	} else if v > float64(m.scale)-1 {
		v = float64(m.scale) - 1
	}
	return uint16(math.Round(v))
}

func heaterWarmth(level HeaterLevel) float64 {
	switch level {
	case HeaterOn:
		return 1
	case HeaterLow:
		return 0.5
	default:
		return 0
	}
}
