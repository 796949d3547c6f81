//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"machine"
	"time"

	"github.com/chewxy/math32"
)

var (
	adcSensor machine.ADC
	uart      = machine.UART0

	// Heater level: '0', '1' or 'L'
	heaterLevel     byte = '0'
	ignoreCountdown int

	// ADC averaging
	sensorSum   uint32
	sensorCount int

	// Timing
	lastADCRead time.Time
	start       time.Time

	// Serial buffer for reading lines
	serialBuffer byte
	serialPos    int
)

func main() {
	PIN_HEATER.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_HEATER.Low()

	machine.InitADC()
	adcSensor = machine.ADC{Pin: PIN_ADC}
	adcSensor.Configure(machine.ADCConfig{})

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	start = time.Now()
	lastADCRead = start

	for {
		now := time.Now()

		processSerial()
		driveHeater(now)

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			readSensorADC()
			lastADCRead = now
		}

		if sensorCount >= NUM_SAMPLES {
			outputAveragedValue()
			sensorSum = 0
			sensorCount = 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// driveHeater applies the heater level. The low level is a slow software PWM.
func driveHeater(now time.Time) {
	switch heaterLevel {
	case '1':
		PIN_HEATER.High()
	case 'L':
		phase := now.Sub(start).Milliseconds() % LOW_DUTY_PERIOD_MS
		PIN_HEATER.Set(phase < LOW_DUTY_ON_MS)
	default:
		PIN_HEATER.Low()
	}
}

func readSensorADC() {
	if ignoreCountdown > 0 {
		ignoreCountdown--
		return
	}

	// Get returns a 16-bit scaled value regardless of ADC resolution.
	sensorSum += uint32(adcSensor.Get())
	sensorCount++
}

func outputAveragedValue() {
	n := sensorCount
	if n == 0 {
		n = 1
	}
	avg := uint16(math32.Round(float32(sensorSum) / float32(n)))

	// Output format: "unix_micros,reading,heater\n"
	// Example: "1234567890123,32768,1\n"
	print(time.Now().UnixMicro())
	print(",")
	print(avg)
	print(",")
	print(string(heaterLevel))
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		switch data {
		case '\n', '\r':
			if serialPos == 1 {
				updateHeaterLevel(serialBuffer)
			}
			serialPos = 0
		case ' ', '\t':
		case '0', '1', 'L':
			if serialPos == 0 {
				serialBuffer = data
			}
			serialPos++
		default:
			// Invalid character - drop the line
			serialPos = 2
		}
	}
}

func updateHeaterLevel(level byte) {
	if level == heaterLevel {
		return
	}
	heaterLevel = level

	// Readings taken while the heater current settles are noisy.
	ignoreCountdown = IGNORE_SAMPLES_AFTER_CHANGE
	sensorSum = 0
	sensorCount = 0
}
