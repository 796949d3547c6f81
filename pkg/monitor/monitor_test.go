package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gomq/pkg/mq"
	"github.com/itohio/gomq/pkg/sample"
	"github.com/itohio/gomq/pkg/species"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type atomicInput struct {
	code  atomic.Uint32
	reads atomic.Int32
}

func newInput(code uint16) *atomicInput {
	in := &atomicInput{}
	in.code.Store(uint32(code))
	return in
}

func (in *atomicInput) ReadU16() (uint16, error) {
	in.reads.Add(1)
	return uint16(in.code.Load()), nil
}

type countingHeater struct {
	on, off atomic.Int32
}

func (h *countingHeater) On() error  { h.on.Add(1); return nil }
func (h *countingHeater) Off() error { h.off.Add(1); return nil }

func shortConfig() mq.Config {
	cfg := mq.DefaultConfig()
	cfg.SampleCount = 2
	cfg.SampleInterval = 0
	cfg.HeatingPeriod = 5 * time.Millisecond
	cfg.CoolingPeriod = 5 * time.Millisecond
	return cfg
}

func newDriver(t *testing.T, model species.Model, in mq.AnalogInput, opts ...mq.Option) *species.Driver {
	t.Helper()
	d, err := species.New(model, in, shortConfig(), opts...)
	require.NoError(t, err)
	return d
}

// collect reads n samples from out, cancels the run and waits for it to finish.
func collect(t *testing.T, n int, out <-chan sample.Sample, cancel context.CancelFunc, done <-chan error) []sample.Sample {
	t.Helper()
	var samples []sample.Sample
	timeout := time.After(5 * time.Second)
	for len(samples) < n {
		select {
		case s, ok := <-out:
			require.True(t, ok, "output closed early")
			samples = append(samples, s)
		case <-timeout:
			t.Fatalf("timed out after %d samples", len(samples))
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}

	for range out {
	}
	return samples
}

func start(m *Monitor) (<-chan sample.Sample, context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan sample.Sample, 10)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, out) }()
	return out, cancel, done
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("cycle")
	require.NoError(t, err)
	assert.Equal(t, ModeCycle, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeContinuous, m)

	_, err = ParseMode("burst")
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{Tick: time.Millisecond})
	assert.Error(t, err)

	d := newDriver(t, species.MQ2, newInput(32768))
	_, err = New(d, Config{Mode: "burst", Tick: time.Millisecond})
	assert.Error(t, err)

	_, err = New(d, Config{Tick: 0})
	assert.Error(t, err)
}

func TestMonitor_Continuous(t *testing.T) {
	d := newDriver(t, species.MQ2, newInput(32768))
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, "MQ2")
	require.NoError(t, err)

	m, err := New(d, Config{Mode: ModeContinuous, Tick: time.Millisecond, ReadInterval: time.Millisecond},
		WithLogger(zap.NewNop()), WithMetrics(metrics))
	require.NoError(t, err)

	out, cancel, done := start(m)
	samples := collect(t, 3, out, cancel, done)

	for _, s := range samples {
		// Calibrated in the same air: ratio = CleanAir * SampleCount / (SampleCount+1).
		assert.InDelta(t, species.MQ2.CleanAir*2/3, s.Ratio, 1e-9)
		assert.True(t, s.Reliable)
		assert.Equal(t, mq.StatusHeating, s.Heater)
		assert.Len(t, s.Concentrations, 4)
		assert.Contains(t, s.Concentrations, species.Smoke)
	}

	ro, ok := m.Baseline()
	require.True(t, ok)
	assert.InDelta(t, ro, testutil.ToFloat64(metrics.baseline), 1e-12)
	assert.InDelta(t, samples[0].Ratio, testutil.ToFloat64(metrics.ratio), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.reliable))
}

func TestMonitor_KnownBaseline(t *testing.T) {
	in := newInput(32768)
	d := newDriver(t, species.MQ2, in)

	m, err := New(d, Config{Tick: time.Millisecond, Baseline: 2.5}, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	out, cancel, done := start(m)
	samples := collect(t, 1, out, cancel, done)

	ro, ok := d.Baseline()
	require.True(t, ok)
	assert.Equal(t, 2.5, ro)
	assert.InDelta(t, samples[0].Resistance/2.5, samples[0].Ratio, 1e-12)
}

func TestMonitor_Cycle(t *testing.T) {
	heater := &countingHeater{}
	d := newDriver(t, species.MQ7, newInput(32768), mq.WithHeater(heater))

	m, err := New(d, Config{Mode: ModeCycle, Tick: time.Millisecond}, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	out, cancel, done := start(m)
	samples := collect(t, 2, out, cancel, done)

	for _, s := range samples {
		assert.Equal(t, mq.StatusIdle, s.Heater)
		assert.Contains(t, s.Concentrations, species.CarbonMonoxide)
	}
	// One cycle start per reading plus the initial one.
	assert.GreaterOrEqual(t, heater.on.Load(), int32(2))
	assert.GreaterOrEqual(t, heater.off.Load(), int32(4))
}

func TestMonitor_CalibrationFailure(t *testing.T) {
	broken := species.Model{Name: "broken", CleanAir: 0, Curves: species.MQ2.Curves}
	d := newDriver(t, broken, newInput(32768))

	m, err := New(d, Config{Tick: time.Millisecond}, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	out := make(chan sample.Sample, 1)
	err = m.Run(context.Background(), out)
	assert.ErrorIs(t, err, mq.ErrNotCalibratable)

	_, ok := <-out
	assert.False(t, ok)
}

func TestMonitor_ReadErrorsAreSkipped(t *testing.T) {
	in := newInput(0)
	d := newDriver(t, species.MQ2, in)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, "MQ2")
	require.NoError(t, err)

	m, err := New(d, Config{Tick: time.Millisecond, ReadInterval: time.Millisecond, Baseline: 10},
		WithLogger(zap.NewNop()), WithMetrics(metrics))
	require.NoError(t, err)

	out, cancel, done := start(m)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.readErrors) >= 3
	}, 5*time.Second, time.Millisecond)

	// Sensor recovers.
	in.code.Store(32768)
	samples := collect(t, 1, out, cancel, done)
	assert.Greater(t, samples[0].Ratio, 0.0)
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	d := newDriver(t, species.MQ2, newInput(32768))
	m, err := New(d, Config{Mode: ModeCycle, Tick: time.Hour}, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan sample.Sample)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, out) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	_, ok := <-out
	assert.False(t, ok)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe(sample.Sample{Ratio: 1})
		m.SetHeater(mq.StatusCooling)
		m.SetBaseline(1)
		m.ReadError()
	})
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg, "MQ2")
	require.NoError(t, err)
	_, err = NewMetrics(reg, "MQ2")
	assert.Error(t, err)
}
