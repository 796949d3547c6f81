//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS          = 1  // ADC read interval in milliseconds
	NUM_SAMPLES                 = 20 // Number of samples to average
	IGNORE_SAMPLES_AFTER_CHANGE = 10 // Ignore this many samples after heater level change

	// Low power heater level: on for LOW_DUTY_ON_MS out of every LOW_DUTY_PERIOD_MS.
	LOW_DUTY_ON_MS     = 1
	LOW_DUTY_PERIOD_MS = 4

	// Heater pin (drives the heater MOSFET)
	PIN_HEATER = machine.GP15

	// ADC pin (GP26 = ADC0), sensor AOUT across the load resistor
	PIN_ADC = machine.ADC0

	// Serial configuration
	// Format "unix_micros,reading,heater\n" is ~25 bytes per line at 50 lines/s.
	UART_BAUD_RATE = 115200
)
