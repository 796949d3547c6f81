package mq

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, or when Sleep is called.
type fakeClock struct {
	ticks  uint32
	slept  time.Duration
	sleeps int
}

func (c *fakeClock) Ticks() uint32 { return c.ticks }

func (c *fakeClock) Sleep(d time.Duration) {
	c.ticks += uint32(d.Milliseconds())
	c.slept += d
	c.sleeps++
}

func (c *fakeClock) advance(ms uint32) { c.ticks += ms }

// scriptedInput returns codes in order, repeating the last one.
type scriptedInput struct {
	codes []uint16
	reads int
	err   error
}

func (in *scriptedInput) ReadU16() (uint16, error) {
	if in.err != nil {
		return 0, in.err
	}
	i := in.reads
	if i >= len(in.codes) {
		i = len(in.codes) - 1
	}
	in.reads++
	return in.codes[i], nil
}

// failingInput fails the test if it is ever read.
type failingInput struct {
	t *testing.T
}

func (in failingInput) ReadU16() (uint16, error) {
	in.t.Fatal("analog input must not be read")
	return 0, errors.New("unexpected read")
}

type recordingHeater struct {
	calls []string
	err   error
}

func (h *recordingHeater) On() error {
	h.calls = append(h.calls, "on")
	return h.err
}

func (h *recordingHeater) Off() error {
	h.calls = append(h.calls, "off")
	return h.err
}

type lowPowerHeater struct {
	recordingHeater
}

func (h *lowPowerHeater) LowPower() error {
	h.calls = append(h.calls, "low")
	return h.err
}

type staticProfile float64

func (p staticProfile) CleanAirRatio() float64 { return float64(p) }

func newTestSensor(t *testing.T, in AnalogInput, strategy Strategy, opts ...Option) (*Sensor, *fakeClock) {
	t.Helper()
	clk := &fakeClock{}
	cfg := DefaultConfig()
	cfg.Strategy = strategy
	s, err := New(in, cfg, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return s, clk
}

// codeFor returns the ADC code that yields resistance rs with the default config.
func codeFor(rs float64) uint16 {
	cfg := DefaultConfig()
	// rs = (V - v)/v * RL  =>  v = V*RL/(rs+RL)
	v := cfg.BaseVoltage * cfg.BoardResistance / (rs + cfg.BoardResistance)
	return uint16(math.Round(v / cfg.BaseVoltage * float64(cfg.FullScale)))
}

func TestNew_RequiresAnalogInput(t *testing.T) {
	s, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrHardwareUnavailable)
	assert.Nil(t, s)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "zero board resistance", modify: func(c *Config) { c.BoardResistance = 0 }},
		{name: "negative voltage", modify: func(c *Config) { c.BaseVoltage = -3.3 }},
		{name: "zero full scale", modify: func(c *Config) { c.FullScale = 0 }},
		{name: "unknown strategy", modify: func(c *Config) { c.Strategy = 0 }},
		{name: "zero sample count", modify: func(c *Config) { c.SampleCount = 0 }},
		{name: "negative interval", modify: func(c *Config) { c.SampleInterval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			s, err := New(&scriptedInput{codes: []uint16{1000}}, cfg)
			assert.Error(t, err)
			assert.Nil(t, s)
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "fast", want: StrategyFast},
		{in: "Accurate", want: StrategyAccurate},
		{in: "", want: StrategyAccurate},
		{in: "slow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResistance_MonotonicallyDecreasing(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{1}}, StrategyFast)

	prev := math.Inf(1)
	for code := 1; code < int(s.cfg.FullScale); code += 97 {
		raw := uint16(code)
		rs, err := s.resistance(raw)
		require.NoError(t, err, "raw=%d", raw)
		assert.Greater(t, rs, 0.0, "raw=%d", raw)
		assert.Less(t, rs, prev, "raw=%d", raw)
		prev = rs
	}
}

func TestResistance_Formula(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{1}}, StrategyFast)

	// Half scale: v = V/2, rs = RL.
	rs, err := s.resistance(32768)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, rs, 0.001)

	// Quarter scale: v = V/4, rs = 3*RL.
	rs, err = s.resistance(16384)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, rs, 0.01)
}

func TestResistance_DegenerateCodes(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{1}}, StrategyFast)

	_, err := s.resistance(0)
	assert.ErrorIs(t, err, ErrSensorFault)

	_, err = s.resistance(65535)
	assert.ErrorIs(t, err, ErrSensorFault)
}

func TestMeasureResistance_Fast(t *testing.T) {
	in := &scriptedInput{codes: []uint16{32768}}
	s, clk := newTestSensor(t, in, StrategyFast)
	startTicks := s.LastSampleTicks()

	rs, err := s.MeasureResistance()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, rs, 0.001)
	assert.Equal(t, 1, in.reads)
	assert.Zero(t, clk.sleeps)
	assert.False(t, s.Reliable())
	assert.Equal(t, rs, s.LastResistance())
	assert.Equal(t, startTicks, s.LastSampleTicks())
}

func TestMeasureResistance_Accurate(t *testing.T) {
	in := &scriptedInput{codes: []uint16{codeFor(10), codeFor(20), codeFor(30), codeFor(40), codeFor(50)}}
	s, clk := newTestSensor(t, in, StrategyAccurate)

	rs, err := s.MeasureResistance()
	require.NoError(t, err)
	assert.InDelta(t, 30.0, rs, 0.05)
	assert.Equal(t, 5, in.reads)
	assert.Equal(t, 4, clk.sleeps)
	assert.LessOrEqual(t, clk.slept, 5*500*time.Millisecond)
	assert.True(t, s.Reliable())
	assert.Equal(t, clk.ticks, s.LastSampleTicks())
}

func TestMeasureResistance_Errors(t *testing.T) {
	boom := errors.New("bus error")
	s, _ := newTestSensor(t, &scriptedInput{err: boom}, StrategyAccurate)
	_, err := s.MeasureResistance()
	assert.ErrorIs(t, err, boom)

	s, _ = newTestSensor(t, &scriptedInput{codes: []uint16{1000, 0}}, StrategyAccurate)
	_, err = s.MeasureResistance()
	assert.ErrorIs(t, err, ErrSensorFault)
	assert.False(t, s.Reliable())
}

func TestCalibrateWith_NoHardwareAccess(t *testing.T) {
	s, _ := newTestSensor(t, failingInput{t: t}, StrategyAccurate)

	require.NoError(t, s.CalibrateWith(500.0))
	ro, ok := s.Baseline()
	assert.True(t, ok)
	assert.Equal(t, 500.0, ro)
}

func TestCalibrateWith_Invalid(t *testing.T) {
	s, _ := newTestSensor(t, failingInput{t: t}, StrategyAccurate)

	for _, ro := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, s.CalibrateWith(ro), ErrInvalidBaseline, "ro=%v", ro)
	}
	assert.False(t, s.Calibrated())
}

func TestCalibrate(t *testing.T) {
	in := &scriptedInput{codes: []uint16{32768}}
	s, clk := newTestSensor(t, in, StrategyAccurate, WithProfile(staticProfile(9.83)))

	require.NoError(t, s.Calibrate())
	assert.Equal(t, 6, in.reads)
	assert.Equal(t, 5, clk.sleeps)

	rs, err := s.resistance(32768)
	require.NoError(t, err)
	ro, ok := s.Baseline()
	require.True(t, ok)
	assert.InDelta(t, 6*rs/(9.83*5), ro, 1e-9)
}

func TestCalibrate_NotCalibratable(t *testing.T) {
	s, _ := newTestSensor(t, failingInput{t: t}, StrategyAccurate)
	assert.ErrorIs(t, s.Calibrate(), ErrNotCalibratable)

	s, _ = newTestSensor(t, failingInput{t: t}, StrategyAccurate, WithProfile(staticProfile(0)))
	assert.ErrorIs(t, s.Calibrate(), ErrNotCalibratable)
	assert.False(t, s.Calibrated())
}

func TestCalibrate_SensorFault(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{1000, 1000, 0}}, StrategyAccurate, WithProfile(staticProfile(9.83)))
	assert.ErrorIs(t, s.Calibrate(), ErrSensorFault)
	assert.False(t, s.Calibrated())
}

func TestReadRatio_NotCalibrated(t *testing.T) {
	s, _ := newTestSensor(t, failingInput{t: t}, StrategyFast)
	_, err := s.ReadRatio()
	assert.ErrorIs(t, err, ErrNotCalibrated)
	_, err = s.ReadScaled(-0.5, 1.0)
	assert.ErrorIs(t, err, ErrNotCalibrated)
}

func TestReadRatio_Unity(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{32768}}, StrategyFast)
	rs, err := s.resistance(32768)
	require.NoError(t, err)

	require.NoError(t, s.CalibrateWith(rs))
	ratio, err := s.ReadRatio()
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestReadScaled_RoundTrip(t *testing.T) {
	s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{32768}}, StrategyFast)
	rs, err := s.resistance(32768)
	require.NoError(t, err)

	// ratio = rs / (rs/e) = e
	require.NoError(t, s.CalibrateWith(rs/math.E))
	x, err := s.ReadScaled(-0.5, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x, 1e-12)
}

func TestReadScaled_Domain(t *testing.T) {
	tests := []struct {
		name     string
		baseline float64
		slope    float64
	}{
		{name: "zero slope", baseline: 10, slope: 0},
		{name: "NaN slope", baseline: 10, slope: math.NaN()},
		{name: "overflow", baseline: 1e300, slope: -0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSensor(t, &scriptedInput{codes: []uint16{32768}}, StrategyFast)
			require.NoError(t, s.CalibrateWith(tt.baseline))

			x, err := s.ReadScaled(tt.slope, 0)
			assert.ErrorIs(t, err, ErrDomain)
			assert.False(t, math.IsNaN(x) || math.IsInf(x, 0))
		})
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name      string
		ratio     float64
		slope     float64
		intercept float64
		want      float64
		wantErr   error
	}{
		{name: "e ratio", ratio: math.E, slope: -0.5, intercept: 1.0, want: 1.0},
		{name: "unit ratio", ratio: 1.0, slope: -0.42, intercept: 3.54, want: math.Exp(3.54 / 0.42)},
		{name: "zero ratio", ratio: 0, slope: -0.5, intercept: 1.0, wantErr: ErrDomain},
		{name: "negative ratio", ratio: -2, slope: -0.5, intercept: 1.0, wantErr: ErrDomain},
		{name: "NaN ratio", ratio: math.NaN(), slope: -0.5, intercept: 1.0, wantErr: ErrDomain},
		{name: "zero slope", ratio: 1.0, slope: 0, intercept: 1.0, wantErr: ErrDomain},
		{name: "overflow", ratio: 1e-300, slope: -0.01, intercept: 0, wantErr: ErrDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Scale(tt.ratio, tt.slope, tt.intercept)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.want*1e-12)
		})
	}
}

func TestHeaterCycle(t *testing.T) {
	heater := &recordingHeater{}
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast, WithHeater(heater))

	status, err := s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)

	require.NoError(t, s.StartCycle())
	assert.Equal(t, []string{"on"}, heater.calls)

	clk.advance(59999)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusHeating, status)

	clk.advance(1)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusHeating, status, "60000ms is not past the heating period")

	clk.advance(1)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusCooling, status)
	assert.Equal(t, StatusCooling, s.Phase())
	assert.Equal(t, []string{"on", "off"}, heater.calls)

	clk.advance(89999)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusCooling, status)

	clk.advance(2)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusReady, status)
	assert.Equal(t, StatusIdle, s.Phase())
	assert.Equal(t, []string{"on", "off", "off"}, heater.calls)

	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, status)
}

func TestHeaterCycle_LowPower(t *testing.T) {
	heater := &lowPowerHeater{}
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast, WithHeater(heater))

	require.NoError(t, s.StartCycle())
	clk.advance(60001)
	status, err := s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusCooling, status)
	assert.Equal(t, []string{"on", "low"}, heater.calls)
}

func TestHeaterCycle_NoHeater(t *testing.T) {
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast)
	assert.False(t, s.HasHeater())

	require.NoError(t, s.StartCycle())
	assert.Equal(t, StatusHeating, s.Phase())

	clk.advance(60001)
	status, err := s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusCooling, status)

	clk.advance(90001)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusReady, status)
}

func TestHeaterCycle_RestartFromCooling(t *testing.T) {
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast)

	require.NoError(t, s.StartCycle())
	clk.advance(60001)
	_, err := s.Advance()
	require.NoError(t, err)
	require.Equal(t, StatusCooling, s.Phase())

	require.NoError(t, s.StartCycle())
	assert.Equal(t, StatusHeating, s.Phase())
	assert.False(t, s.HeatingComplete())
}

func TestHeaterCycle_Wraparound(t *testing.T) {
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast)
	clk.ticks = 0xFFFFFF00

	require.NoError(t, s.StartCycle())
	clk.advance(30000) // wraps
	assert.Less(t, clk.ticks, uint32(0xFFFFFF00))
	assert.False(t, s.HeatingComplete())

	clk.advance(30001)
	assert.True(t, s.HeatingComplete())
}

func TestHeaterCycle_HeaterError(t *testing.T) {
	heater := &recordingHeater{}
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast, WithHeater(heater))
	require.NoError(t, s.StartCycle())

	heater.err = errors.New("pin stuck")
	clk.advance(60001)
	status, err := s.Advance()
	assert.Error(t, err)
	assert.Equal(t, StatusHeating, status)
	assert.Equal(t, StatusHeating, s.Phase())
}

func TestStartCycle_HeaterErrorKeepsPhase(t *testing.T) {
	heater := &recordingHeater{}
	s, clk := newTestSensor(t, failingInput{t: t}, StrategyFast, WithHeater(heater))
	require.NoError(t, s.StartCycle())
	clk.advance(60001)
	status, err := s.Advance()
	require.NoError(t, err)
	require.Equal(t, StatusCooling, status)

	heater.err = errors.New("pin stuck")
	assert.Error(t, s.StartCycle())
	assert.Equal(t, StatusCooling, s.Phase())

	// The cooling timer keeps running from the original phase start.
	heater.err = nil
	clk.advance(90001)
	status, err = s.Advance()
	require.NoError(t, err)
	assert.Equal(t, StatusReady, status)
}

func TestTicksDiff(t *testing.T) {
	assert.Equal(t, uint32(10), TicksDiff(20, 10))
	assert.Equal(t, uint32(0x200), TicksDiff(0x100, 0xFFFFFF00))
}

func TestClose(t *testing.T) {
	heater := &recordingHeater{}
	s, _ := newTestSensor(t, failingInput{t: t}, StrategyFast, WithHeater(heater))
	require.NoError(t, s.StartCycle())

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"on", "off"}, heater.calls)
	assert.Equal(t, StatusIdle, s.Phase())
}
