package sample

import (
	"time"

	"github.com/itohio/gomq/pkg/mq"
	"github.com/itohio/gomq/pkg/species"
)

// Sample represents one gas reading of a calibrated sensor.
type Sample struct {
	Timestamp      time.Time
	Resistance     float64 // Sensor resistance, in board resistance units
	Ratio          float64 // Rs/R0
	Reliable       bool    // Taken with the accurate strategy
	Heater         mq.HeaterStatus
	Concentrations map[species.Gas]float64 // ppm per gas
}

// Converter transforms a stream of samples.
type Converter func(in <-chan Sample) <-chan Sample
