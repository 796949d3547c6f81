package board

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	// DefaultBaudRate is the standard baud rate for the Pico firmware.
	DefaultBaudRate = 115200
)

var (
	// ErrNotConnected is returned when the board is used before Connect.
	ErrNotConnected = errors.New("not connected")
	// ErrNoSample is returned when no reading has arrived yet.
	ErrNoSample = errors.New("no sample received yet")
	// ErrLinkDown is returned once the sample stream from the MCU has stopped.
	ErrLinkDown = errors.New("sample stream stopped")
)

// RawSample represents a raw measurement streamed by the MCU.
type RawSample struct {
	Timestamp time.Time
	Reading   uint16 // ADC reading scaled to 16 bits (0-65535)
	Heater    HeaterLevel
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the sensor MCU.
type Serial struct {
	port     string
	baudRate int
	log      *zap.Logger

	conn      serial.Port
	latest    RawSample
	readErr   error
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial board on the specified port. A zero baud rate
// selects DefaultBaudRate; a nil logger selects zap.L().
func New(port string, baudRate int, log *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if log == nil {
		log = zap.L()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		log:      log.With(zap.String("port", port)),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.latest = RawSample{}
	d.readErr = nil
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.connected = true

	go d.readSamples(d.ctx, port)

	return nil
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	var err error
	if d.conn != nil {
		err = d.conn.Close()
		d.conn = nil
	}
	d.connected = false

	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// Latest returns the most recent sample.
func (d *Serial) Latest() (RawSample, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return RawSample{}, ErrNotConnected
	}
	if d.readErr != nil {
		return RawSample{}, d.readErr
	}
	if d.latest.Timestamp.IsZero() {
		return RawSample{}, ErrNoSample
	}
	return d.latest, nil
}

// SetHeater sends a heater command to the MCU.
func (d *Serial) SetHeater(level HeaterLevel) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := d.conn.Write(formatCommand(level)); err != nil {
		return fmt.Errorf("failed to send heater command: %w", err)
	}

	return nil
}

// IsConnected returns whether the board is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from r and records them as the latest sample.
// When the stream ends the error is kept and served by Latest.
func (d *Serial) readSamples(ctx context.Context, r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("panic in readSamples", zap.Any("panic", rec))
			d.fail(fmt.Errorf("%w: panic: %v", ErrLinkDown, rec))
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			d.log.Error("error reading from serial port", zap.Error(err))
			d.fail(fmt.Errorf("%w: %w", ErrLinkDown, err))
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			d.log.Warn("failed to parse line", zap.String("line", line), zap.Error(err))
			continue
		}

		d.mu.Lock()
		d.latest = sample
		d.mu.Unlock()
	}
}

// fail records the reason the stream stopped and drops the cached sample.
func (d *Serial) fail(err error) {
	d.mu.Lock()
	d.readErr = err
	d.latest = RawSample{}
	d.mu.Unlock()
}

// formatCommand renders a heater command line.
func formatCommand(level HeaterLevel) []byte {
	return []byte{byte(level), '\n'}
}

// parseLine parses a line from the MCU into a RawSample.
// Format: unix_micros,reading,heater
// Example: 1234567890123,32768,1
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	reading, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid reading: %w", err)
	}

	if len(parts[2]) != 1 {
		return RawSample{}, fmt.Errorf("invalid heater state: expected 1 character, got %d", len(parts[2]))
	}
	heater := HeaterLevel(parts[2][0])
	switch heater {
	case HeaterOff, HeaterOn, HeaterLow:
	default:
		return RawSample{}, fmt.Errorf("invalid heater state %q", parts[2])
	}

	return RawSample{
		Timestamp: time.UnixMicro(timestampMicros),
		Reading:   uint16(reading),
		Heater:    heater,
	}, nil
}
