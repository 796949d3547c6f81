// Package species holds per-gas curve data for MQ-series sensors and drivers
// that read named gases from a calibrated mq.Sensor.
//
// Coefficients follow the TroykaMQ datasheet fits: for every gas the sensor
// response is approximated by ln(Rs/R0) = Slope*ln(ppm) + Intercept.
package species

import (
	"fmt"
	"sort"
	"strings"

	"github.com/itohio/gomq/pkg/mq"
)

// Gas names a gas species.
type Gas string

const (
	// LPG is liquefied petroleum gas (propane/butane).
	LPG            Gas = "lpg"
	// Methane is natural gas.
	Methane        Gas = "methane"
	// Smoke is combustion smoke.
	Smoke          Gas = "smoke"
	// Hydrogen is H2.
	Hydrogen       Gas = "hydrogen"
	// Alcohol is ethanol vapour.
	Alcohol        Gas = "alcohol"
	// CarbonMonoxide is CO.
	CarbonMonoxide Gas = "co"
	// CO2 is carbon dioxide.
	CO2            Gas = "co2"
)

// Curve is a log-linear fit of Rs/R0 against concentration.
type Curve struct {
	Slope     float64
	Intercept float64
}

// Concentration maps a ratio to a concentration in ppm.
func (c Curve) Concentration(ratio float64) (float64, error) {
	return mq.Scale(ratio, c.Slope, c.Intercept)
}

// Model describes a sensor family.
type Model struct {
	Name     string
	CleanAir float64 // Rs/R0 in clean air
	Curves   map[Gas]Curve
}

var _ mq.Profile = Model{}

// CleanAirRatio implements mq.Profile.
func (m Model) CleanAirRatio() float64 {
	return m.CleanAir
}

// Curve returns the curve for gas.
func (m Model) Curve(gas Gas) (Curve, bool) {
	c, ok := m.Curves[gas]
	return c, ok
}

// Gases returns the gases the model has curves for, sorted by name.
func (m Model) Gases() []Gas {
	gases := make([]Gas, 0, len(m.Curves))
	for g := range m.Curves {
		gases = append(gases, g)
	}
	sort.Slice(gases, func(i, j int) bool { return gases[i] < gases[j] })
	return gases
}

// Supported sensor models. Curve coefficients follow the datasheet plots.
var (
	// MQ2 detects flammable gases and smoke.
	MQ2 = Model{
		Name:     "MQ2",
		CleanAir: 9.83,
		Curves: map[Gas]Curve{
			LPG:      {Slope: -0.45, Intercept: 2.95},
			Methane:  {Slope: -0.38, Intercept: 3.21},
			Smoke:    {Slope: -0.42, Intercept: 3.54},
			Hydrogen: {Slope: -0.48, Intercept: 3.32},
		},
	}
	// MQ3 detects alcohol vapour.
	MQ3 = Model{
		Name:     "MQ3",
		CleanAir: 60,
		Curves: map[Gas]Curve{
			Alcohol: {Slope: -0.66, Intercept: -0.62},
		},
	}
	// MQ4 detects methane.
	MQ4 = Model{
		Name:     "MQ4",
		CleanAir: 4.4,
		Curves: map[Gas]Curve{
			Methane: {Slope: -0.36, Intercept: 2.54},
		},
	}
	// MQ5 detects LPG and natural gas.
	MQ5 = Model{
		Name:     "MQ5",
		CleanAir: 6.5,
		Curves: map[Gas]Curve{
			LPG:     {Slope: -0.39, Intercept: 1.73},
			Methane: {Slope: -0.42, Intercept: 2.91},
		},
	}
	// MQ6 detects LPG.
	MQ6 = Model{
		Name:     "MQ6",
		CleanAir: 10,
		Curves: map[Gas]Curve{
			LPG: {Slope: -0.42, Intercept: 2.91},
		},
	}
	// MQ7 detects carbon monoxide with a heat/cool duty cycle.
	MQ7 = Model{
		Name:     "MQ7",
		CleanAir: 27,
		Curves: map[Gas]Curve{
			CarbonMonoxide: {Slope: -0.77, Intercept: 3.38},
		},
	}
	// MQ8 detects hydrogen.
	MQ8 = Model{
		Name:     "MQ8",
		CleanAir: 70,
		Curves: map[Gas]Curve{
			Hydrogen: {Slope: -1.52, Intercept: 10.49},
		},
	}
	// MQ9 detects carbon monoxide and flammable gases.
	MQ9 = Model{
		Name:     "MQ9",
		CleanAir: 9.8,
		Curves: map[Gas]Curve{
			LPG:            {Slope: -0.48, Intercept: 3.33},
			Methane:        {Slope: -0.38, Intercept: 3.21},
			CarbonMonoxide: {Slope: -0.48, Intercept: 3.10},
		},
	}
	// MQ135 is an air quality sensor, reported as CO2.
	MQ135 = Model{
		Name:     "MQ135",
		CleanAir: 3.6,
		Curves: map[Gas]Curve{
			CO2: {Slope: -0.42, Intercept: 1.92},
		},
	}
)

var models = map[string]Model{}

func init() {
	for _, m := range []Model{MQ2, MQ3, MQ4, MQ5, MQ6, MQ7, MQ8, MQ9, MQ135} {
		models[strings.ToLower(m.Name)] = m
	}
}

// Lookup finds a model by name, ignoring case and dashes ("MQ-2", "mq2").
func Lookup(name string) (Model, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", ""))
	m, ok := models[key]
	if !ok {
		return Model{}, fmt.Errorf("unknown sensor model %q", name)
	}
	return m, nil
}

// Names returns the names of all known models, sorted.
func Names() []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
