package species

import (
	"fmt"

	"github.com/itohio/gomq/pkg/mq"
)

// Driver reads named gases from a sensor using the curves of its model.
type Driver struct {
	*mq.Sensor
	Model Model
}

// New creates a sensor for model. WithProfile is applied automatically.
func New(model Model, data mq.AnalogInput, cfg mq.Config, opts ...mq.Option) (*Driver, error) {
	s, err := mq.New(data, cfg, append([]mq.Option{mq.WithProfile(model)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", model.Name, err)
	}
	return &Driver{Sensor: s, Model: model}, nil
}

// Read measures the concentration of gas in ppm.
func (d *Driver) Read(gas Gas) (float64, error) {
	c, ok := d.Model.Curve(gas)
	if !ok {
		return 0, fmt.Errorf("%s has no curve for %s", d.Model.Name, gas)
	}
	return d.ReadScaled(c.Slope, c.Intercept)
}

// ReadAll measures the ratio once and evaluates every curve of the model.
// Gases whose curve cannot map the ratio are reported in the returned error;
// the remaining concentrations are still returned.
func (d *Driver) ReadAll() (float64, map[Gas]float64, error) {
	ratio, err := d.ReadRatio()
	if err != nil {
		return 0, nil, err
	}

	out := make(map[Gas]float64, len(d.Model.Curves))
	var firstErr error
	for _, gas := range d.Model.Gases() {
		x, err := d.Model.Curves[gas].Concentration(ratio)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", gas, err)
			}
			continue
		}
		out[gas] = x
	}

	return ratio, out, firstErr
}

// Gases returns the gases this driver can read.
func (d *Driver) Gases() []Gas {
	return d.Model.Gases()
}

// MQ2Sensor is a flammable gas and smoke sensor.
type MQ2Sensor struct {
	*Driver
}

// NewMQ2 creates an MQ-2 driver.
func NewMQ2(data mq.AnalogInput, cfg mq.Config, opts ...mq.Option) (*MQ2Sensor, error) {
	d, err := New(MQ2, data, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &MQ2Sensor{Driver: d}, nil
}

// ReadLPG returns the LPG concentration in ppm.
func (s *MQ2Sensor) ReadLPG() (float64, error) { return s.Read(LPG) }

// ReadMethane returns the methane concentration in ppm.
func (s *MQ2Sensor) ReadMethane() (float64, error) { return s.Read(Methane) }

// ReadSmoke returns the smoke concentration in ppm.
func (s *MQ2Sensor) ReadSmoke() (float64, error) { return s.Read(Smoke) }

// ReadHydrogen returns the hydrogen concentration in ppm.
func (s *MQ2Sensor) ReadHydrogen() (float64, error) { return s.Read(Hydrogen) }
