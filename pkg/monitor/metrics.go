package monitor

import (
	"github.com/itohio/gomq/pkg/mq"
	"github.com/itohio/gomq/pkg/sample"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports the latest reading as prometheus gauges. A nil *Metrics
// records nothing.
type Metrics struct {
	resistance    prometheus.Gauge
	ratio         prometheus.Gauge
	reliable      prometheus.Gauge
	heater        prometheus.Gauge
	baseline      prometheus.Gauge
	concentration *prometheus.GaugeVec
	readErrors    prometheus.Counter
}

// NewMetrics creates the sensor gauges labelled with the sensor model and
// registers them with reg.
func NewMetrics(reg prometheus.Registerer, model string) (*Metrics, error) {
	labels := prometheus.Labels{"model": model}
	m := &Metrics{
		resistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "resistance",
			Help:        "Sensor resistance in load resistor units.",
			ConstLabels: labels,
		}),
		ratio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "ratio",
			Help:        "Sensor resistance divided by the clean air baseline.",
			ConstLabels: labels,
		}),
		reliable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "reliable",
			Help:        "1 if the last reading was averaged, 0 otherwise.",
			ConstLabels: labels,
		}),
		heater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "heater_phase",
			Help:        "Heater phase: 0 idle, 1 heating, 2 cooling, 3 ready.",
			ConstLabels: labels,
		}),
		baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "baseline_resistance",
			Help:        "Calibrated clean air resistance R0.",
			ConstLabels: labels,
		}),
		concentration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "mq",
			Name:        "concentration_ppm",
			Help:        "Gas concentration in ppm.",
			ConstLabels: labels,
		}, []string{"gas"}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mq",
			Name:        "read_errors_total",
			Help:        "Failed sensor reads.",
			ConstLabels: labels,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.resistance, m.ratio, m.reliable, m.heater, m.baseline, m.concentration, m.readErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Observe records a sample.
func (m *Metrics) Observe(s sample.Sample) {
	if m == nil {
		return
	}
	m.resistance.Set(s.Resistance)
	m.ratio.Set(s.Ratio)
	if s.Reliable {
		m.reliable.Set(1)
	} else {
		m.reliable.Set(0)
	}
	for gas, c := range s.Concentrations {
		m.concentration.WithLabelValues(string(gas)).Set(c)
	}
}

// SetHeater records the heater phase.
func (m *Metrics) SetHeater(status mq.HeaterStatus) {
	if m == nil {
		return
	}
	m.heater.Set(float64(status))
}

// SetBaseline records R0.
func (m *Metrics) SetBaseline(ro float64) {
	if m == nil {
		return
	}
	m.baseline.Set(ro)
}

// ReadError counts a failed read.
func (m *Metrics) ReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}
