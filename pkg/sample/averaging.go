package sample

import (
	"github.com/itohio/gomq/pkg/species"
)

// NewAveragingConverter creates a converter that replaces every sample with the
// mean of the last windowSize samples. Timestamp, heater status and
// reliability are taken from the newest sample; an average is reliable only if
// every sample in the window is.
func NewAveragingConverter(windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			buffer := make([]Sample, 0, windowSize+1)
			for s := range in {
				buffer = append(buffer, s)
				if len(buffer) > windowSize {
					buffer = buffer[1:] // Remove oldest
				}
				out <- Average(buffer)
			}
		}()

		return out
	}
}

// Average averages a slice of samples. Concentrations are averaged per gas over
// the samples that carry that gas.
func Average(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	last := samples[len(samples)-1]
	avg := Sample{
		Timestamp:      last.Timestamp,
		Heater:         last.Heater,
		Reliable:       true,
		Concentrations: make(map[species.Gas]float64, len(last.Concentrations)),
	}

	counts := make(map[species.Gas]int, len(last.Concentrations))
	for _, s := range samples {
		avg.Resistance += s.Resistance
		avg.Ratio += s.Ratio
		avg.Reliable = avg.Reliable && s.Reliable
		for gas, c := range s.Concentrations {
			avg.Concentrations[gas] += c
			counts[gas]++
		}
	}

	n := float64(len(samples))
	avg.Resistance /= n
	avg.Ratio /= n
	for gas, count := range counts {
		avg.Concentrations[gas] /= float64(count)
	}

	return avg
}
